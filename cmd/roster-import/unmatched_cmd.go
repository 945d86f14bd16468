// cmd/roster-import/unmatched_cmd.go
package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/classbridge/roster-import/pkg/audit"
	"github.com/classbridge/roster-import/pkg/model"
	"github.com/classbridge/roster-import/pkg/unmatched"
)

func newUnmatchedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unmatched",
		Short: "Review rows the import could not place",
	}
	cmd.AddCommand(newUnmatchedListCmd())
	cmd.AddCommand(newUnmatchedSuggestCmd())
	cmd.AddCommand(newUnmatchedResolveCmd())
	cmd.AddCommand(newUnmatchedIgnoreCmd())
	return cmd
}

func newUnmatchedSuggestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suggest <record-id>",
		Short: "Propose candidate entities for a pending record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recordID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid record id %q: %w", args[0], err)
			}

			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			candidates, err := newTracker(app).Suggest(cmd.Context(), recordID)
			if err != nil {
				return err
			}
			if len(candidates) == 0 {
				cmd.Println("No candidates found")
				return nil
			}
			for _, c := range candidates {
				cmd.Printf("%s  [%s]  %s  %s\n", c.ID, c.Kind, c.Name, c.Email)
			}
			cmd.Println("Suggestions are never auto-applied; use 'unmatched resolve' to link one.")
			return nil
		},
	}
}

func newTracker(app *app) *unmatched.Tracker {
	auditor := audit.NewLogger(app.auditRepo, app.logger)
	return unmatched.NewTracker(app.unmatchedRepo, app.entities, auditor, app.logger).
		WithBulkIgnoreCap(app.cfg.BulkIgnoreCap)
}

func actorFromFlags(cmd *cobra.Command) (model.ActorContext, error) {
	actor, _ := cmd.Flags().GetString("actor")
	role, _ := cmd.Flags().GetString("actor-role")
	if strings.TrimSpace(actor) == "" {
		return model.ActorContext{}, errors.New("--actor is required")
	}
	return model.ActorContext{UserID: actor, Role: role}, nil
}

func newUnmatchedListCmd() *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List unmatched records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			records, err := newTracker(app).List(cmd.Context(), model.UnmatchedStatus(status), limit)
			if err != nil {
				return err
			}

			if len(records) == 0 {
				cmd.Println("No unmatched records")
				return nil
			}
			for _, rec := range records {
				cmd.Printf("%s  [%s/%s]  batch=%s row=%d  keys=%s\n",
					rec.ID, rec.Kind, rec.Status, rec.BatchID, rec.Seq,
					strings.Join(rec.AttemptedKeys, "; "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", string(model.UnmatchedPending), "filter by status (pending, resolved, ignored; empty = all)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum records to print (0 = unlimited)")
	return cmd
}

func newUnmatchedResolveCmd() *cobra.Command {
	var (
		entityID string
		notes    string
	)

	cmd := &cobra.Command{
		Use:   "resolve <record-id> --entity <entity-id> --actor <user>",
		Short: "Link an unmatched record to an existing entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recordID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid record id %q: %w", args[0], err)
			}
			target, err := uuid.Parse(entityID)
			if err != nil {
				return fmt.Errorf("invalid entity id %q: %w", entityID, err)
			}
			actor, err := actorFromFlags(cmd)
			if err != nil {
				return err
			}

			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			if err := newTracker(app).Resolve(cmd.Context(), recordID, target, actor, notes); err != nil {
				return err
			}
			cmd.Printf("Resolved %s -> %s\n", recordID, target)
			return nil
		},
	}

	cmd.Flags().StringVar(&entityID, "entity", "", "entity to link the record to")
	cmd.Flags().StringVar(&notes, "notes", "", "free-text resolution notes")
	cmd.Flags().String("actor", "", "reviewer identity")
	cmd.Flags().String("actor-role", "", "reviewer role")
	_ = cmd.MarkFlagRequired("entity")
	return cmd
}

func newUnmatchedIgnoreCmd() *cobra.Command {
	var notes string

	cmd := &cobra.Command{
		Use:   "ignore <record-id> [record-id...] --actor <user>",
		Short: "Dismiss unmatched records",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]uuid.UUID, 0, len(args))
			for _, arg := range args {
				id, err := uuid.Parse(arg)
				if err != nil {
					return fmt.Errorf("invalid record id %q: %w", arg, err)
				}
				ids = append(ids, id)
			}
			actor, err := actorFromFlags(cmd)
			if err != nil {
				return err
			}

			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			tracker := newTracker(app)
			if len(ids) == 1 {
				if err := tracker.Ignore(cmd.Context(), ids[0], actor, notes); err != nil {
					return err
				}
				cmd.Printf("Ignored %s\n", ids[0])
				return nil
			}

			processed, err := tracker.BulkIgnore(cmd.Context(), ids, actor)
			if err != nil {
				return err
			}
			cmd.Printf("Ignored %d of %d records\n", processed, len(ids))
			if processed < len(ids) {
				app.logger.Warn("Some records were not processed",
					zap.Int("requested", len(ids)),
					zap.Int("processed", processed))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&notes, "notes", "", "free-text notes recorded on each record")
	cmd.Flags().String("actor", "", "reviewer identity")
	cmd.Flags().String("actor-role", "", "reviewer role")
	return cmd
}
