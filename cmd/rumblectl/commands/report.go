package commands

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// report: fetch the rendered motion report and write it to a file.
func reportCmd() *cobra.Command {
	var out string
	var axis string
	var limit int
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Fetch the HTML motion report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if axis != "" {
				q.Set("axis", axis)
			}
			if limit > 0 {
				q.Set("limit", fmt.Sprintf("%d", limit))
			}
			if since > 0 {
				q.Set("since", time.Now().Add(-since).UTC().Format(time.RFC3339))
			}
			path := "/api/report"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			resp, err := client.Get(apiURL(path))
			if err != nil {
				return err
			}
			if resp.StatusCode != 200 {
				return decodeResponse(resp, nil)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read report: %w", err)
			}
			if err := os.WriteFile(out, body, 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote report to %s\n", out)
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "report.html", "output file for the report")
	cmd.Flags().StringVar(&axis, "axis", "", "only chart this axis")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of moves to chart")
	cmd.Flags().DurationVar(&since, "since", 0, "only chart moves from this recent window (e.g. 1h)")
	return cmd
}
