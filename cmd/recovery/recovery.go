// Package recovery implements the recover command.
package recovery

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/emotion-go/cmd/app"
	"github.com/tphakala/emotion-go/internal/session"
)

// Command creates the recover command.
func Command(a *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "End a session left open by a previous run",
		Long: "Ask the analysis service for an active session and end it, then close " +
			"open records in the local journal. Capture does this on its own before the first session.",
		RunE: func(cmd *cobra.Command, args []string) error {
			journal, err := a.OpenJournal()
			if err != nil {
				return err
			}
			if journal != nil {
				defer journal.Close()
			}

			manager := a.NewSessionManager(session.NewAPIClient(&a.Settings.Service), journal, nil)
			if err := manager.RecoverDanglingSession(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "no dangling session remains")
			return nil
		},
	}
}
