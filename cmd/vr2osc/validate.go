package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vr2osc/internal/actions"
	"vr2osc/internal/input"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the config and every action-set document",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := configFromFlags(cmd)
		if err != nil {
			return err
		}

		groups, err := actions.LoadDir(cfg.ActionSetsDir())
		if err != nil {
			return err
		}

		if len(cfg.Evdev.Bindings) > 0 {
			if _, err := input.NewBinder(input.NewStore(groups), cfg.Evdev.Bindings); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		for _, g := range groups {
			fmt.Fprintf(out, "%s (%s)\n", g.Path(), g.Name)
			for _, a := range g.Actions {
				fmt.Fprintf(out, "  %-40s %-7s %s\n", g.ActionPath(a), a.Kind(), a.Name)
			}
		}
		fmt.Fprintf(out, "config is valid: %d action sets\n", len(groups))
		return nil
	},
}

func init() {
	validateCmd.Flags().String("action-sets", "", "Directory of action-set documents")
	rootCmd.AddCommand(validateCmd)
}
