package commands

import (
	"github.com/spf13/cobra"

	"github.com/banshee-data/rumble/internal/motor"
)

// preset <name>: drive the polarization axis to a named angle.
func presetCmd() *cobra.Command {
	var noBlock bool

	cmd := &cobra.Command{
		Use:   "preset <name>",
		Short: "Move the polarization axis to a named angle (vertical, horizontal, magic)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{"block": !noBlock}

			var mv motor.Move
			if err := postJSON("/api/presets/"+args[0], body, &mv); err != nil {
				return err
			}
			printMove("polar", mv)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noBlock, "no-block", false, "return before the move completes")
	return cmd
}
