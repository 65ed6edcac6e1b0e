package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/rumble/internal/motor"
)

// limits <axis>: set, capture, or clear the soft travel limits.
func limitsCmd() *cobra.Command {
	var upper, lower float64
	var upperHere, lowerHere bool
	var clearUpper, clearLower bool
	var useCal bool

	cmd := &cobra.Command{
		Use:   "limits <axis>",
		Short: "Set or clear axis travel limits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{}

			if spec := limitSpec(cmd.Flags().Changed("upper"), upper, upperHere, clearUpper, useCal); spec != nil {
				body["upper"] = spec
			}
			if spec := limitSpec(cmd.Flags().Changed("lower"), lower, lowerHere, clearLower, useCal); spec != nil {
				body["lower"] = spec
			}
			if len(body) == 0 {
				return fmt.Errorf("specify at least one of --upper, --lower, --upper-here, --lower-here, --clear-upper, --clear-lower")
			}

			var st motor.Status
			if err := postJSON("/api/axes/"+args[0]+"/limits", body, &st); err != nil {
				return err
			}
			fmt.Printf("%s limits: lower %s, upper %s\n", st.Name,
				formatLimit(st.LimLower, st.Limits.AtLower), formatLimit(st.LimUpper, st.Limits.AtUpper))
			return nil
		},
	}

	cmd.Flags().Float64Var(&upper, "upper", 0, "upper limit value")
	cmd.Flags().Float64Var(&lower, "lower", 0, "lower limit value")
	cmd.Flags().BoolVar(&upperHere, "upper-here", false, "capture the current position as the upper limit")
	cmd.Flags().BoolVar(&lowerHere, "lower-here", false, "capture the current position as the lower limit")
	cmd.Flags().BoolVar(&clearUpper, "clear-upper", false, "remove the upper limit")
	cmd.Flags().BoolVar(&clearLower, "clear-lower", false, "remove the lower limit")
	cmd.Flags().BoolVar(&useCal, "cal", false, "interpret limit values in calibrated units")
	return cmd
}

// limitSpec builds one side of the limits request, nil when the flags
// leave that side untouched.
func limitSpec(hasValue bool, value float64, here, clear, cal bool) map[string]interface{} {
	switch {
	case clear:
		return map[string]interface{}{"clear": true}
	case here:
		return map[string]interface{}{"here": true}
	case hasValue:
		return map[string]interface{}{"value": value, "cal": cal}
	}
	return nil
}
