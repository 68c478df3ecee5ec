// Package cli implements the relay's command line interface.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Tyrowin/gochat-relay/internal/server"
)

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "gochat-relay",
		Short:         "Presence-aware WebSocket chat relay",
		Long:          "gochat-relay accepts authenticated WebSocket connections, tracks who is online, replays recent public messages to new clients and routes public and private messages.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			server.SetDefaults(v)
			if configFile == "" {
				return nil
			}
			v.SetConfigFile(configFile)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("read config file: %w", err)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a config file (yaml, toml or json)")
	rootCmd.PersistentFlags().String("jwt-secret", "", "secret used to sign and verify credentials (env JWT_SECRET)")
	_ = v.BindPFlag(server.KeyJWTSecret, rootCmd.PersistentFlags().Lookup("jwt-secret"))

	rootCmd.AddCommand(
		newServeCmd(v),
		newTokenCmd(v),
	)

	return rootCmd
}
