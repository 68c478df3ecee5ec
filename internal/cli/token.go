package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Tyrowin/gochat-relay/internal/auth"
	"github.com/Tyrowin/gochat-relay/internal/server"
)

func newTokenCmd(v *viper.Viper) *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a credential for a display name",
		Long:  "token signs a credential with the configured secret, the same way POST /api/login does. Useful for scripted clients and smoke tests.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := server.LoadConfig(v)
			if err != nil {
				return err
			}

			cred, err := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL, cfg.TokenIssuer).Issue(username)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), cred.Token)
			return err
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "display name to bind to the credential")
	cmd.Flags().String("ttl", "", "credential lifetime, e.g. 24h (env TOKEN_TTL)")
	_ = cmd.MarkFlagRequired("username")
	_ = v.BindPFlag(server.KeyTokenTTL, cmd.Flags().Lookup("ttl"))

	return cmd
}
