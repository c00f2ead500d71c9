package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vr2osc/internal/actions"
)

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Write the action manifest for the configured action sets",
	Long: `Generates the action manifest the VR runtime needs to expose the
configured actions. Writes to manifest_path (default "<config>.manifest.json");
use -o - for stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := configFromFlags(cmd)
		if err != nil {
			return err
		}

		groups, err := actions.LoadDir(cfg.ActionSetsDir())
		if err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("output")
		if out == "-" {
			return actions.WriteManifest(cmd.OutOrStdout(), groups)
		}
		if out == "" {
			out = cfg.ManifestFile()
		}
		if err := actions.WriteManifestFile(out, groups); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "manifest written to %s\n", out)
		return nil
	},
}

func init() {
	manifestCmd.Flags().StringP("output", "o", "", "Output file, or - for stdout")
	manifestCmd.Flags().String("action-sets", "", "Directory of action-set documents")
	manifestCmd.Flags().String("manifest-path", "", "Where to write the action manifest")
	rootCmd.AddCommand(manifestCmd)
}
