package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-wizard/internal/history"
	"github.com/sells-group/lead-wizard/internal/model"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect enrichment history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enriched companies, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("history"); err != nil {
			return err
		}

		st, err := initHistoryStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")
		page, _ := cmd.Flags().GetInt("page")
		if page < 0 {
			return eris.New("--page must be >= 0")
		}
		if limit <= 0 || limit > history.MaxPageSize {
			limit = history.DefaultPageSize
		}

		p, err := st.List(ctx, limit, page*limit)
		if err != nil {
			return eris.Wrap(err, "history list")
		}
		if len(p.Records) == 0 {
			fmt.Fprintln(os.Stderr, "No history found.")
			return nil
		}

		formatHistory(os.Stdout, p.Records)
		if p.HasMore {
			fmt.Fprintf(os.Stderr, "More results: --page %d\n", page+1)
		}
		return nil
	},
}

func formatHistory(out io.Writer, records []model.HistoryRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCOMPANY\tCONTACT\tEMAIL\tSCORE\tCREATED")
	for _, r := range records {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.0f\t%s\n",
			id,
			r.CompanyName,
			dash(r.ContactName),
			dash(r.ContactEmail),
			r.Score,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	historyListCmd.Flags().Int("limit", history.DefaultPageSize, "records per page")
	historyListCmd.Flags().Int("page", 0, "zero-based page number")
	historyCmd.AddCommand(historyListCmd)
	rootCmd.AddCommand(historyCmd)
}
