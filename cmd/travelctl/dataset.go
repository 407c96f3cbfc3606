package main

import (
	"fmt"
	"sort"

	"travel-intel/internal/entity"

	"github.com/spf13/cobra"
)

func latestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "latest [destination]",
		Short: "Show the latest dataset manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadContainer(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			view, err := c.ExportService.Latest(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(view)
			}

			m := view.Manifest
			fmt.Println(heading("Dataset " + m.DestinationID))
			fmt.Printf("  Version:   %d\n", m.VersionSequence)
			fmt.Printf("  Hash:      %s\n", m.DatasetHash)
			fmt.Printf("  Produced:  %s\n", m.ProducedAt.Format("2006-01-02 15:04:05"))
			fmt.Printf("  Records:   %d\n", m.RecordCount)
			fmt.Printf("  Sessions:  %v\n", m.DerivedFromSessions)
			fmt.Println("\nEntities:")
			for _, id := range view.Dataset.EntityIDs() {
				rec := view.Dataset.Records[id]
				fmt.Printf("  %-32s %-14s q=%.2f evidence=%d\n", id, rec.Kind, rec.QualityScore, len(rec.Evidence))
			}
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [destination]",
		Short: "List the diffs between consecutive dataset versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadContainer(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			diffs, err := c.ConsolidationService.History(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(diffs)
			}
			if len(diffs) == 0 {
				fmt.Println("No history")
				return nil
			}
			for _, d := range diffs {
				fmt.Printf("%s v%d -> v%d  %s %s %s %s\n", heading(d.CreatedAt.Format("2006-01-02 15:04")),
					d.FromVersion, d.ToVersion,
					good(fmt.Sprintf("+%d", len(d.Added))),
					warn(fmt.Sprintf("~%d", len(d.Changed))),
					bad(fmt.Sprintf("-%d", len(d.Removed))),
					fmt.Sprintf("evidence:%d", len(d.EvidenceChanged)))
			}
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 10, "Maximum diffs")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats [destination]",
		Short: "Summarise the session data available for a destination",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadContainer(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			stats, err := c.ConsolidationService.Stats(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(stats)
			}

			fmt.Println(heading("Sessions for " + stats.DestinationID))
			fmt.Printf("  Discovered: %d\n", stats.TotalSessions)
			fmt.Printf("  Loadable:   %d\n", stats.LoadedSessions)
			if stats.OldestRecord != nil {
				fmt.Printf("  Span:       %s .. %s\n", stats.OldestRecord.Format("2006-01-02"), stats.NewestRecord.Format("2006-01-02"))
			}
			kinds := make([]entity.EntityKind, 0, len(stats.QualityRanges))
			for k := range stats.QualityRanges {
				kinds = append(kinds, k)
			}
			sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
			fmt.Println("\nQuality by kind:")
			for _, k := range kinds {
				qr := stats.QualityRanges[k]
				fmt.Printf("  %-16s n=%-4d min=%.2f avg=%.2f max=%.2f\n", k, qr.Count, qr.Min, qr.Avg, qr.Max)
			}
			return nil
		},
	}
}

func regenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "should-regenerate [destination]",
		Short: "Advise whether a producer should run again for a destination",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadContainer(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			advice, err := c.ConsolidationService.ShouldRegenerate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(advice)
			}
			if advice.Regenerate {
				fmt.Printf("%s %s\n", warn("regenerate:"), advice.Reason)
			} else {
				fmt.Printf("%s %s\n", good("up to date:"), advice.Reason)
			}
			return nil
		},
	}
}

func destinationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "destinations",
		Short: "List destinations with a consolidated dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadContainer(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			dests, err := c.ExportService.Destinations(cmd.Context())
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(dests)
			}
			for _, d := range dests {
				fmt.Println(d)
			}
			return nil
		},
	}
}
