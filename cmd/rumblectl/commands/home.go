package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// home <axis>: probe toward the home switch in fixed steps until its
// level flips.
func homeCmd() *cobra.Command {
	var step int64
	var maxTries int

	cmd := &cobra.Command{
		Use:   "home <axis>",
		Short: "Seek an axis home switch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{
				"step":      step,
				"max_tries": maxTries,
			}

			var result struct {
				Found bool `json:"found"`
			}
			if err := postJSON("/api/axes/"+args[0]+"/home", body, &result); err != nil {
				return err
			}
			if result.Found {
				fmt.Println("home switch found")
			} else {
				fmt.Println("home switch not found")
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&step, "step", -10, "probe step in counts (sign sets the direction)")
	cmd.Flags().IntVar(&maxTries, "max-tries", 0, "probe attempts before giving up (0 uses the default)")
	return cmd
}
