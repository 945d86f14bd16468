// cmd/roster-import/sweep_cmd.go
package main

import (
	"github.com/spf13/cobra"

	"github.com/classbridge/roster-import/pkg/audit"
	"github.com/classbridge/roster-import/pkg/flags"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Re-evaluate attention flags across all entities",
		Long: `Runs every flagging rule against every event and person, opening flags
where a condition holds and clearing flags whose condition has lifted.
Imports already scan the entities they touch; sweep covers entities that
drift into a flagged state without being part of a batch, such as draft
sessions whose date has passed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			auditor := audit.NewLogger(app.auditRepo, app.logger)
			scanner := flags.NewScanner(app.entities, app.flagRepo, auditor, app.logger)

			summary, err := scanner.Sweep(cmd.Context())
			if err != nil {
				return err
			}

			cmd.Printf("Scanned:  %d\n", summary.Scanned)
			cmd.Printf("Created:  %d\n", summary.Created)
			cmd.Printf("Resolved: %d\n", summary.Resolved)
			return nil
		},
	}
}
