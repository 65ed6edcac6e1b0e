package commands

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/banshee-data/rumble/internal/db"
)

// moves: list recorded moves, newest first.
func movesCmd() *cobra.Command {
	var axis string
	var limit int

	cmd := &cobra.Command{
		Use:   "moves",
		Short: "List recorded moves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if axis != "" {
				q.Set("axis", axis)
			}
			q.Set("limit", fmt.Sprintf("%d", limit))

			var moves []db.MoveRecord
			if err := getJSON("/api/moves?"+q.Encode(), &moves); err != nil {
				return err
			}
			if len(moves) == 0 {
				fmt.Println("no moves recorded")
				return nil
			}
			for _, rec := range moves {
				fmt.Println(rec.String())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&axis, "axis", "", "only list moves for this axis")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of moves to list")
	return cmd
}
