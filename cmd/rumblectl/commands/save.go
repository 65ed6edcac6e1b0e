package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// save: write current calibration and limits back to the config files.
func saveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Persist current calibration and limits to the configs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var result struct {
				Saved string `json:"saved"`
			}
			if err := postJSON("/api/save", nil, &result); err != nil {
				return err
			}
			fmt.Printf("saved configs to %s\n", result.Saved)
			return nil
		},
	}
}
