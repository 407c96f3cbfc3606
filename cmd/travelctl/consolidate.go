package main

import (
	"fmt"

	"travel-intel/internal/service"

	"github.com/spf13/cobra"
)

func consolidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consolidate [destination]",
		Short: "Merge every session of a destination into a new dataset version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadContainer(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := c.ConsolidationService.Consolidate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(res)
			}

			fmt.Println(heading("Consolidation " + args[0]))
			outcome := good(res.Outcome)
			if res.Outcome == service.OutcomeEmpty {
				outcome = warn(res.Outcome)
			}
			fmt.Printf("  Outcome:   %s\n", outcome)
			fmt.Printf("  Version:   %d\n", res.Dataset.VersionSequence)
			fmt.Printf("  Hash:      %s\n", res.Dataset.DatasetHash)
			fmt.Printf("  Records:   %d (%d below quality threshold)\n", len(res.Dataset.Records), res.Dataset.LowQualityRecords)
			fmt.Printf("  Sessions:  %d\n", len(res.Dataset.DerivedFromSessions))
			if res.Diff != nil {
				fmt.Printf("  Diff:      +%d ~%d -%d (evidence %d)\n",
					len(res.Diff.Added), len(res.Diff.Changed), len(res.Diff.Removed), len(res.Diff.EvidenceChanged))
			}
			for _, s := range res.Skipped {
				fmt.Printf("  %s session %s: %s\n", warn("skipped"), s.SessionID, s.Reason)
			}
			for _, r := range res.Rejected {
				fmt.Printf("  %s %s from %s: %s\n", bad("rejected"), r.EntityID, r.SessionID, r.Reason)
			}
			return nil
		},
	}
}
