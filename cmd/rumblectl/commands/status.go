package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/rumble/internal/motor"
)

// status [axis]: one line per axis, or the full detail for one axis.
func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [axis]",
		Short: "Show axis positions and limits",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				var st motor.Status
				if err := getJSON("/api/axes/"+args[0], &st); err != nil {
					return err
				}
				printStatusDetail(st)
				return nil
			}

			var statuses []motor.Status
			if err := getJSON("/api/axes", &statuses); err != nil {
				return err
			}
			for _, st := range statuses {
				printStatusLine(st)
			}
			return nil
		},
	}
}

func printStatusDetail(st motor.Status) {
	fmt.Println(st.Name)
	fmt.Printf("  counts:      %d\n", st.Counts)
	fmt.Printf("  position:    %.3f %s\n", st.Position, st.Units)
	fmt.Printf("  pulse clock: %g Hz\n", st.ClockHz)
	fmt.Printf("  home switch: %v\n", st.HasHome)
	if st.Invert {
		fmt.Println("  direction:   inverted")
	}
	fmt.Printf("  lower limit: %s\n", formatLimit(st.LimLower, st.Limits.AtLower))
	fmt.Printf("  upper limit: %s\n", formatLimit(st.LimUpper, st.Limits.AtUpper))
}

func formatLimit(lim *int64, at bool) string {
	if lim == nil {
		return "none"
	}
	if at {
		return fmt.Sprintf("%d counts (here)", *lim)
	}
	return fmt.Sprintf("%d counts", *lim)
}
