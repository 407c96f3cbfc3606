package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func logsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Read the structured application log, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadContainer(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			level, _ := cmd.Flags().GetString("level")
			limit, _ := cmd.Flags().GetInt("limit")
			entries, err := c.Logger.GetLogs(level, limit, 0)
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(entries)
			}
			for _, e := range entries {
				lvl := e.Level
				switch lvl {
				case "ERROR":
					lvl = bad(lvl)
				case "WARN":
					lvl = warn(lvl)
				}
				fmt.Printf("%s %-5s [%s] %s\n", e.Timestamp, lvl, e.Module, e.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringP("level", "l", "", "Only this level (DEBUG, INFO, WARN, ERROR)")
	cmd.Flags().IntP("limit", "n", 50, "Maximum entries")
	return cmd
}
