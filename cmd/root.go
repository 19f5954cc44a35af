package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/country-directory/internal/app"
	"github.com/JakeFAU/country-directory/internal/config"
	"github.com/JakeFAU/country-directory/internal/country"
	"github.com/JakeFAU/country-directory/internal/logging"
)

// serviceKeyType is the key for storing the Service in the context.
type serviceKeyType string

const serviceKey serviceKeyType = "service"

// Service is what subcommands need from the application. Tests inject a fake.
type Service interface {
	Start(ctx context.Context)
	Serve(ctx context.Context) error
	Lookup(ctx context.Context, q country.Query) ([]country.Record, error)
	Close(ctx context.Context) error
}

// newService is the application factory, swapped out in tests.
var newService = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Service, error) {
	return app.Build(ctx, cfg, logger)
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "countryd",
		Short: "Country directory lookup service.",
		Long: `countryd answers country queries (by name, capital, region, subregion,
language or currency) by fetching from an upstream country directory through a
polite, deduplicating crawl engine.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			zap.ReplaceGlobals(logger)

			svc, err := newService(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), serviceKey, svc))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newLookupCmd())
	return cmd
}

func serviceFrom(cmd *cobra.Command) (Service, error) {
	svc, ok := cmd.Context().Value(serviceKey).(Service)
	if !ok || svc == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return svc, nil
}

func closeService(svc Service) {
	if err := svc.Close(context.Background()); err != nil {
		zap.L().Warn("service close failed", zap.Error(err))
	}
}

// Execute is the main entry point.
func Execute() {
	err := newRootCmd().ExecuteContext(context.Background())
	_ = zap.L().Sync()
	if err != nil {
		os.Exit(1)
	}
}
