// Package cli implements the tutorctl commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tutor_gateway/internal/config"
	"tutor_gateway/internal/httpapi"
	"tutor_gateway/internal/storage"
	"tutor_gateway/internal/utils"
)

var appVersion = "dev"

// NewRootCmd builds the tutorctl command tree.
func NewRootCmd() *cobra.Command {
	var (
		noColor  bool
		logLevel string
	)

	root := &cobra.Command{
		Use:           "tutorctl",
		Short:         "tutorctl manages and talks to the tutor gateway",
		Long:          "tutorctl sends chats through a running gateway, manages configured LLM providers and mints admin tokens.",
		Version:       appVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
			if logLevel != "" {
				utils.SetDefaultLogLevel(utils.ParseLogLevel(logLevel))
			}
		},
	}
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level for internal components (debug, info, warn, error)")

	root.AddCommand(newChatCmd())
	root.AddCommand(newProvidersCmd())
	root.AddCommand(newTokenCmd())
	root.AddCommand(newKeygenCmd())
	return root
}

// SetVersion sets the version reported by --version.
func SetVersion(version string) {
	appVersion = version
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
		os.Exit(1)
	}
}

// store is the database view used by the provider commands.
type store struct {
	db        *storage.DB
	providers *storage.ProviderRepository
	models    *storage.ManagedModelRepository
}

func openStore(ctx context.Context) (*store, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	enc, err := httpapi.NewEncryption(cfg.Encryption)
	if err != nil {
		return nil, nil, err
	}

	db, err := storage.NewDB(ctx, storage.DBConfig{
		Driver:          cfg.Database.Driver,
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, nil, err
	}

	return &store{
		db:        db,
		providers: storage.NewProviderRepository(db, enc),
		models:    storage.NewManagedModelRepository(db),
	}, cfg, nil
}

func (s *store) Close() error {
	return s.db.Close()
}

func printf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}
