package main

import (
	"os"

	"github.com/Tyrowin/gochat-relay/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
