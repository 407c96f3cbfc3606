package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the versioned cache",
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show cache counters for this process and the durable tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadContainer(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			s := c.Cache.Stats()
			if wantJSON(cmd) {
				return printJSON(s)
			}
			fmt.Println(heading("Cache"))
			fmt.Printf("  Memory entries: %d\n", s.MemoryEntries)
			fmt.Printf("  Durable tier:   %v\n", s.DurableTier)
			fmt.Printf("  Hit rate:       %.1f%%\n", s.HitRate()*100)
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear [prefix]",
		Short: "Remove cached entries, optionally only one stage (e.g. \"consolidation:\")",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadContainer(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			removed, err := c.Cache.Clear(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			fmt.Printf("%s removed %d entries\n", good("✓"), removed)
			return nil
		},
	}

	cmd.AddCommand(stats, clearCmd)
	return cmd
}
