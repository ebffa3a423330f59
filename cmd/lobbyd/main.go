package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openlobby/lobbyd/internal/app"
	"github.com/openlobby/lobbyd/internal/auth"
	"github.com/openlobby/lobbyd/internal/config"
	"github.com/openlobby/lobbyd/internal/log"
	"github.com/openlobby/lobbyd/internal/store"
	"github.com/openlobby/lobbyd/internal/store/sqlite"
)

func newRootCommand() *cobra.Command {
	var (
		configPath string
		overrides  config.Config
		idleSecs   int
	)

	cmd := &cobra.Command{
		Use:   "lobbyd",
		Short: "lobbyd is a multi-user lobby/chat server",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if idleSecs != 0 {
				overrides.IdleTimeout = time.Duration(idleSecs) * time.Second
			}
			return serve(configPath, overrides)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to config.yaml")
	cmd.Flags().StringVarP(&overrides.Addr, "addr", "p", "", "TCP listen address")
	cmd.Flags().StringVarP(&overrides.NATAddr, "nat-addr", "n", "", "UDP listen address for NAT traversal")
	cmd.Flags().StringVar(&overrides.MetricsAddr, "metrics-addr", "", "HTTP address for Prometheus metrics")
	cmd.Flags().IntVar(&overrides.MaxConnections, "max-connections", 0, "maximum concurrent connections")
	cmd.Flags().IntVar(&overrides.MaxLineBytes, "max-line-bytes", 0, "maximum inbound line length")
	cmd.Flags().IntVar(&idleSecs, "idle-timeout", 0, "idle timeout in seconds")
	cmd.Flags().StringVarP(&overrides.DatabasePath, "sqlpath", "s", "", "path to the sqlite database")
	cmd.Flags().StringVar(&overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.Flags().StringVarP(&overrides.LogFile, "output", "o", "", "mirror console output to this file")

	cmd.AddCommand(newAddUserCommand())

	return cmd
}

func serve(configPath string, overrides config.Config) error {
	bootstrap := log.New("info", "")
	cfg, path, err := config.Load(bootstrap, configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.UpdateFrom(overrides)

	logger := log.New(cfg.LogLevel, cfg.LogFile)
	logger.Info().Str("config", path).Msg("starting lobbyd")

	application, err := app.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("server exited: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newAddUserCommand() *cobra.Command {
	var (
		dbPath string
		access string
		email  string
	)

	cmd := &cobra.Command{
		Use:   "adduser <username> <password>",
		Short: "Provision an account in the user database",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			st, err := sqlite.New(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			hash, err := auth.HashPassword(args[1])
			if err != nil {
				return err
			}

			user, err := st.CreateUser(context.Background(), &store.User{
				Username:     args[0],
				PasswordHash: hash,
				Access:       access,
				Email:        email,
			})
			if err != nil {
				return err
			}
			fmt.Printf("created user %s (id %d, access %s)\n", user.Username, user.ID, user.Access)
			return nil
		},
	}

	cmd.Flags().StringVarP(&dbPath, "sqlpath", "s", config.Default().DatabasePath, "path to the sqlite database")
	cmd.Flags().StringVar(&access, "access", "user", "comma-separated access flags")
	cmd.Flags().StringVar(&email, "email", "", "account email")

	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
