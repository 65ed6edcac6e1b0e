package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/banshee-data/rumble/internal/motor"
)

// incr <axis> <amount>: relative move by raw steps, or by a calibrated
// delta with --cal.
func incrCmd() *cobra.Command {
	var useCal bool
	var noBlock bool

	cmd := &cobra.Command{
		Use:   "incr <axis> <amount>",
		Short: "Nudge an axis by steps or a calibrated delta",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			axis := args[0]
			body := map[string]interface{}{"block": !noBlock}

			if useCal {
				delta, err := strconv.ParseFloat(args[1], 64)
				if err != nil {
					return fmt.Errorf("bad delta %q: %v", args[1], err)
				}
				body["delta_cal"] = delta
			} else {
				steps, err := strconv.ParseInt(args[1], 10, 64)
				if err != nil {
					return fmt.Errorf("bad step count %q: %v", args[1], err)
				}
				body["steps"] = steps
			}

			var mv motor.Move
			if err := postJSON("/api/axes/"+axis+"/increment", body, &mv); err != nil {
				return err
			}
			printMove(axis, mv)
			return nil
		},
	}

	cmd.Flags().BoolVar(&useCal, "cal", false, "interpret the amount in calibrated units")
	cmd.Flags().BoolVar(&noBlock, "no-block", false, "return before the move completes")
	return cmd
}
