package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/banshee-data/rumble/internal/motor"
)

// goto <axis> <target>: absolute move to a calibrated position, or to a
// raw count target with --counts.
func gotoCmd() *cobra.Command {
	var useCounts bool
	var noBlock bool

	cmd := &cobra.Command{
		Use:   "goto <axis> <target>",
		Short: "Move an axis to an absolute target",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			axis := args[0]
			body := map[string]interface{}{"block": !noBlock}

			if useCounts {
				counts, err := strconv.ParseInt(args[1], 10, 64)
				if err != nil {
					return fmt.Errorf("bad count target %q: %v", args[1], err)
				}
				body["counts"] = counts
			} else {
				target, err := strconv.ParseFloat(args[1], 64)
				if err != nil {
					return fmt.Errorf("bad target %q: %v", args[1], err)
				}
				body["position"] = target
			}

			var mv motor.Move
			if err := postJSON("/api/axes/"+axis+"/goto", body, &mv); err != nil {
				return err
			}
			printMove(axis, mv)
			return nil
		},
	}

	cmd.Flags().BoolVar(&useCounts, "counts", false, "interpret the target as raw counts")
	cmd.Flags().BoolVar(&noBlock, "no-block", false, "return before the move completes")
	return cmd
}
