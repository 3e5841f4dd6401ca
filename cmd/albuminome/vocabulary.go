package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"albuminome/internal/core"
)

func (c *cli) vocabularyCmd() *cobra.Command {
	var asJSON, about bool
	cmd := &cobra.Command{
		Use:   "vocabulary",
		Short: "List the selectable co-removed proteins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := c.loadService(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(c.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"vocabulary": svc.Vocabulary(),
					"defaults":   svc.DefaultParams(),
				})
			}
			if about {
				if _, err := fmt.Fprintf(c.stdout, "%s\n\n", core.AboutText); err != nil {
					return err
				}
			}
			for _, protein := range svc.Vocabulary() {
				if _, err := fmt.Fprintln(c.stdout, protein); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the vocabulary and default parameters as JSON")
	cmd.Flags().BoolVar(&about, "about", false, "print the explorer description first")
	return cmd
}
