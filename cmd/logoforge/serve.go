package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/logoforge-dev/logoforge"
	"github.com/logoforge-dev/logoforge/internal/observability"
	"github.com/logoforge-dev/logoforge/pkg/config"
	pkgobs "github.com/logoforge-dev/logoforge/pkg/observability"
	"github.com/logoforge-dev/logoforge/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the streaming generation API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			gen, err := logoforge.New(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := observability.InitFromEnv(); err != nil {
				log.Printf("Tracing disabled: %v", err)
			}

			if err := gen.ConnectCache(ctx); err != nil {
				log.Printf("Result cache unavailable, continuing without: %v", err)
			}

			checker := pkgobs.NewHealthChecker()
			checker.RegisterCheck(pkgobs.PingCheck())
			if c := gen.Cache(); c != nil {
				checker.RegisterCheck(pkgobs.RedisCheck(c.Ping))
			}

			obsServer := pkgobs.NewServer(cfg.Server.MetricsPort, checker)
			apiServer := server.New(gen)

			errChan := make(chan error, 2)
			go func() {
				if err := obsServer.Start(); err != nil {
					errChan <- fmt.Errorf("observability server: %w", err)
				}
			}()
			go func() {
				if err := apiServer.Start(cfg.Server.Port); err != nil {
					errChan <- fmt.Errorf("api server: %w", err)
				}
			}()

			select {
			case err := <-errChan:
				log.Printf("Error: %v", err)
			case <-ctx.Done():
				log.Println("Shutting down...")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := apiServer.Shutdown(shutdownCtx); err != nil {
				log.Printf("API server shutdown error: %v", err)
			}
			if err := obsServer.Shutdown(shutdownCtx); err != nil {
				log.Printf("Observability server shutdown error: %v", err)
			}
			if err := observability.Shutdown(shutdownCtx); err != nil {
				log.Printf("Tracing shutdown error: %v", err)
			}
			return nil
		},
	}
	return cmd
}

// loadConfig resolves the configuration from the --config flag, the
// CONFIG_FILE environment variable or defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Root().PersistentFlags()
	path, _ := flags.GetString("config")
	debug, _ := flags.GetBool("debug")

	var cfg *config.Config
	if path == "" {
		cfg = config.Default()
	} else {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if debug {
		cfg.Debug = true
	}
	return cfg, nil
}
