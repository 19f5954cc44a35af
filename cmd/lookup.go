package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/country-directory/internal/country"
)

func newLookupCmd() *cobra.Command {
	values := make(map[country.Field]*string, len(country.Fields))
	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Answer a single query and print the matching records as JSON.",
		Example: `  countryd lookup --name Poland
  countryd lookup --region Europe`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := serviceFrom(cmd)
			if err != nil {
				return err
			}
			defer closeService(svc)
			q := country.Query{}
			set := func(f country.Field) *string {
				if !cmd.Flags().Changed(string(f)) {
					return nil
				}
				return values[f]
			}
			q.Name = set(country.FieldName)
			q.Capital = set(country.FieldCapital)
			q.Region = set(country.FieldRegion)
			q.Subregion = set(country.FieldSubregion)
			q.Language = set(country.FieldLanguage)
			q.Currency = set(country.FieldCurrency)

			svc.Start(cmd.Context())
			records, err := svc.Lookup(cmd.Context(), q)
			if err != nil {
				var failure *country.Failure
				if errors.As(err, &failure) {
					if body, mErr := json.Marshal(failure); mErr == nil {
						fmt.Fprintln(cmd.ErrOrStderr(), string(body))
					}
				}
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(records); err != nil {
				return fmt.Errorf("write records: %w", err)
			}
			return nil
		},
	}
	for _, f := range country.Fields {
		v := new(string)
		values[f] = v
		cmd.Flags().StringVar(v, string(f), "", fmt.Sprintf("match countries by %s", f))
	}
	return cmd
}
