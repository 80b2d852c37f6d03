package main

import (
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCmd() *cobra.Command {
	var category, subcategory string

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the content corpus for a diagnosis or topic",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return postJSON("/api/v1/search", map[string]string{
				"queryText":       strings.Join(args, " "),
				"categoryHint":    category,
				"subcategoryHint": subcategory,
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "category hint")
	cmd.Flags().StringVar(&subcategory, "subcategory", "", "subcategory hint")
	return cmd
}
