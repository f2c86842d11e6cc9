// Package sessions implements the sessions command, a listing of the local
// session journal.
package sessions

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/emotion-go/cmd/app"
	"github.com/tphakala/emotion-go/internal/datastore"
	"github.com/tphakala/emotion-go/internal/errors"
)

// Command creates the sessions command.
func Command(a *app.App) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions recorded in the local journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			journal, err := a.OpenJournal()
			if err != nil {
				return err
			}
			if journal == nil {
				return errors.Newf("the session journal is disabled, set journal.enabled").
					Component("cli").
					Category(errors.CategoryConfiguration).
					Build()
			}
			defer journal.Close()

			records, err := journal.List(limit)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			return printTable(cmd.OutOrStdout(), records, time.Now())
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of sessions to show, 0 for all")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print records as JSON")

	return cmd
}

func printTable(w io.Writer, records []datastore.SessionRecord, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "LOCAL ID\tSERVER ID\tSTARTED\tDURATION\tEND REASON\tANALYSES\tDETECTION RATE")
	for i := range records {
		r := &records[i]
		reason := r.EndReason
		if r.Open() {
			reason = "open"
		}
		serverID := r.ServerID
		if serverID == "" {
			serverID = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%.1f%%\n",
			r.LocalID,
			serverID,
			r.StartedAt.Local().Format(time.DateTime),
			r.Duration(now).Round(time.Second),
			reason,
			r.TotalAnalyses,
			r.DetectionRate)
	}
	return tw.Flush()
}
