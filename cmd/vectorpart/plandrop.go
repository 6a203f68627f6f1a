package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"vectorpart/internal/drop"
)

func planDropCmd() *cobra.Command {
	var manifestPath string
	var models []string
	var before string
	var after string
	var reason string
	var out string

	cmd := &cobra.Command{
		Use:   "plan-drop",
		Short: "Generate a reviewable plan for retiring record types from the partition tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(models) == 0 {
				return fmt.Errorf("at least one --model is required")
			}
			if out == "" {
				return fmt.Errorf("--out is required")
			}

			var beforeTime, afterTime *time.Time
			if before != "" {
				t, err := time.Parse(time.RFC3339, before)
				if err != nil {
					return fmt.Errorf("--before: %w", err)
				}
				beforeTime = &t
			}
			if after != "" {
				t, err := time.Parse(time.RFC3339, after)
				if err != nil {
					return fmt.Errorf("--after: %w", err)
				}
				afterTime = &t
			}

			plan, err := drop.GeneratePlan(manifestPath, models, beforeTime, afterTime, reason)
			if err != nil {
				return err
			}
			if err := drop.SavePlan(out, plan); err != nil {
				return err
			}

			total := 0
			for _, md := range plan.Models {
				total += len(md.Partitions)
			}
			fmt.Printf("Plan covers %d model(s) across %d partition entries; written to %s\n", len(plan.Models), total, out)
			return nil
		},
	}

	cmd.Flags().StringVar(&manifestPath, "manifest", "", "Path to manifest.json (required)")
	cmd.Flags().StringArrayVar(&models, "model", nil, "Record type to drop (repeatable)")
	cmd.Flags().StringVar(&before, "before", "", "Only partitions created before this RFC3339 timestamp")
	cmd.Flags().StringVar(&after, "after", "", "Only partitions created at or after this RFC3339 timestamp")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded on the plan and the eventual drop audit entry")
	cmd.Flags().StringVar(&out, "out", "", "Path to write the plan JSON (required)")

	_ = cmd.MarkFlagRequired("manifest")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}
