package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banshee-data/rumble/internal/motor"
)

func calCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cal",
		Short: "Set or fit axis calibration",
	}
	cmd.AddCommand(calSetCmd(), calFitCmd())
	return cmd
}

// cal set <axis>: update the pieces of the calibration named by flags,
// leaving the rest alone.
func calSetCmd() *cobra.Command {
	var zero int64
	var slope float64
	var units string

	cmd := &cobra.Command{
		Use:   "set <axis>",
		Short: "Update calibration zero, slope, or units",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{}
			if cmd.Flags().Changed("zero") {
				body["zero"] = zero
			}
			if cmd.Flags().Changed("slope") {
				body["slope"] = slope
			}
			if cmd.Flags().Changed("units") {
				body["units"] = units
			}
			if len(body) == 0 {
				return fmt.Errorf("specify at least one of --zero, --slope, or --units")
			}

			var st motor.Status
			if err := postJSON("/api/axes/"+args[0]+"/cal", body, &st); err != nil {
				return err
			}
			fmt.Printf("%s: %d counts = %.3f %s\n", st.Name, st.Counts, st.Position, st.Units)
			return nil
		},
	}

	cmd.Flags().Int64Var(&zero, "zero", 0, "counts at the calibrated zero position")
	cmd.Flags().Float64Var(&slope, "slope", 0, "calibrated units per count (must be positive)")
	cmd.Flags().StringVar(&units, "units", "", "display units, e.g. nm or deg")
	return cmd
}

// cal fit <axis> <counts:pos>...: least-squares fit of zero and slope
// from measured samples.
func calFitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fit <axis> <counts:position>...",
		Short: "Fit calibration from measured count/position samples",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			samples := make([][2]float64, 0, len(args)-1)
			for _, arg := range args[1:] {
				pair, err := parseSample(arg)
				if err != nil {
					return err
				}
				samples = append(samples, pair)
			}

			body := map[string]interface{}{"fit": samples}
			var st motor.Status
			if err := postJSON("/api/axes/"+args[0]+"/cal", body, &st); err != nil {
				return err
			}
			fmt.Printf("%s: %d counts = %.3f %s\n", st.Name, st.Counts, st.Position, st.Units)
			return nil
		},
	}
}

func parseSample(s string) ([2]float64, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return [2]float64{}, fmt.Errorf("bad sample %q: want counts:position", s)
	}
	counts, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return [2]float64{}, fmt.Errorf("bad sample counts %q: %v", parts[0], err)
	}
	pos, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return [2]float64{}, fmt.Errorf("bad sample position %q: %v", parts[1], err)
	}
	return [2]float64{counts, pos}, nil
}
