package cmd

import (
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and crawl engine until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := serviceFrom(cmd)
			if err != nil {
				return err
			}
			// Serve closes the service on shutdown
			return svc.Serve(cmd.Context())
		},
	}
}
