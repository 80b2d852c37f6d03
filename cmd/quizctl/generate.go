package main

import (
	"strings"

	"github.com/spf13/cobra"
)

func newGenerateCmd() *cobra.Command {
	var category, subcategory, rawPrompt string
	var startIndex int

	cmd := &cobra.Command{
		Use:   "generate [query]",
		Short: "Generate a question for a query or raw prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"queryText":       strings.Join(args, " "),
				"categoryHint":    category,
				"subcategoryHint": subcategory,
				"rawPrompt":       rawPrompt,
			}
			if startIndex > 0 {
				body["startModelIndex"] = startIndex
			}
			return postJSON("/api/v1/generate", body)
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "category hint")
	cmd.Flags().StringVar(&subcategory, "subcategory", "", "subcategory hint")
	cmd.Flags().StringVar(&rawPrompt, "raw-prompt", "", "bypass search and send this prompt directly")
	cmd.Flags().IntVar(&startIndex, "start-model-index", 0, "resume the fallback chain at this backend index")
	return cmd
}
