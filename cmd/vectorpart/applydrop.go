package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vectorpart/internal/drop"
)

func applyDropCmd() *cobra.Command {
	var manifestPath string
	var root string
	var planPath string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "apply-drop",
		Short: "Apply a previously generated drop plan: remove files and mark the manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := drop.LoadPlan(planPath)
			if err != nil {
				return err
			}

			result, err := drop.Apply(manifestPath, root, plan, dryRun)
			if err != nil {
				return err
			}

			if result.DryRun {
				fmt.Printf("Dry run: would remove %d file(s) across %d model(s)\n", len(result.RemovedFiles), len(result.UpdatedModels))
			} else {
				fmt.Printf("Removed %d file(s) and marked %d model(s) deleted\n", len(result.RemovedFiles), len(result.UpdatedModels))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&manifestPath, "manifest", "", "Path to manifest.json (required)")
	cmd.Flags().StringVar(&root, "root", "", "Partition root directory (required)")
	cmd.Flags().StringVar(&planPath, "plan", "", "Path to the plan JSON produced by plan-drop (required)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be removed without touching disk or the manifest")

	_ = cmd.MarkFlagRequired("manifest")
	_ = cmd.MarkFlagRequired("root")
	_ = cmd.MarkFlagRequired("plan")

	return cmd
}
