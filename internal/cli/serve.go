package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Tyrowin/gochat-relay/internal/auth"
	"github.com/Tyrowin/gochat-relay/internal/server"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, v)
		},
	}

	flags := cmd.Flags()
	flags.String("port", "", "listen address, e.g. :3000 (env SERVER_PORT)")
	flags.StringSlice("allowed-origins", nil, "origins allowed to connect (env ALLOWED_ORIGINS)")
	flags.Int("history-size", 0, "number of public messages replayed to new clients (env HISTORY_SIZE)")
	flags.String("log-level", "", "debug, info, warn or error (env LOG_LEVEL)")
	flags.String("log-format", "", "text or json (env LOG_FORMAT)")

	_ = v.BindPFlag(server.KeyPort, flags.Lookup("port"))
	_ = v.BindPFlag(server.KeyAllowedOrigins, flags.Lookup("allowed-origins"))
	_ = v.BindPFlag(server.KeyHistorySize, flags.Lookup("history-size"))
	_ = v.BindPFlag(server.KeyLogLevel, flags.Lookup("log-level"))
	_ = v.BindPFlag(server.KeyLogFormat, flags.Lookup("log-format"))

	return cmd
}

func runServe(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := server.LoadConfig(v)
	if err != nil {
		return err
	}

	logger, err := server.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	if cfg.JWTSecret == server.DefaultJWTSecret {
		logger.Warn("using the built-in development JWT secret; set JWT_SECRET")
	}

	hub := server.NewHub(cfg, logger)
	go hub.Run()

	handlers := server.NewHandlers(cfg, hub,
		auth.NewVerifier(cfg.JWTSecret),
		auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL, cfg.TokenIssuer),
		logger,
	)
	httpServer := server.CreateServer(cfg.Port, server.SetupRoutes(handlers))

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Port, "history", cfg.HistorySize, "origins", cfg.AllowedOrigins)
		if err := server.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		cmd.Context(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(_ context.Context) error {
				logger.Info("shutting down HTTP server")
				return server.ShutdownServer(httpServer, cfg.ShutdownTimeout)
			},
			"hub": func(_ context.Context) error {
				return hub.Shutdown(cfg.ShutdownTimeout)
			},
		},
	)

	select {
	case err := <-serveErr:
		_ = hub.Shutdown(cfg.ShutdownTimeout)
		return fmt.Errorf("listen on %s: %w", cfg.Port, err)
	case code := <-wait:
		if code != 0 {
			return fmt.Errorf("shutdown finished with exit code %d", code)
		}
		logger.Info("server stopped")
		return nil
	}
}
