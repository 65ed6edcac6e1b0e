package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banshee-data/rumble/internal/httputil"
	"github.com/banshee-data/rumble/internal/motor"
)

var (
	addr   string
	client httputil.HTTPClient
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rumblectl",
		Short: "Control a running rumbled motion daemon",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if client == nil {
				client = httputil.NewStandardClient(nil)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&addr, "addr", "http://localhost:8477", "base URL of the rumbled API")

	root.AddCommand(statusCmd(), incrCmd(), gotoCmd(), homeCmd(), presetCmd(),
		calCmd(), limitsCmd(), movesCmd(), saveCmd(), reportCmd(), migrateCmd(), versionCmd())
	return root
}

func apiURL(path string) string {
	return strings.TrimRight(addr, "/") + path
}

// decodeResponse surfaces the daemon's error message on non-2xx replies
// and otherwise unmarshals the body into out when out is non-nil.
func decodeResponse(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

func getJSON(path string, out interface{}) error {
	resp, err := client.Get(apiURL(path))
	if err != nil {
		return err
	}
	return decodeResponse(resp, out)
}

func postJSON(path string, payload, out interface{}) error {
	buf := &bytes.Buffer{}
	if payload != nil {
		if err := json.NewEncoder(buf).Encode(payload); err != nil {
			return err
		}
	}
	resp, err := client.Post(apiURL(path), "application/json", buf)
	if err != nil {
		return err
	}
	return decodeResponse(resp, out)
}

// printMove writes the one-line summary for a completed move.
func printMove(axis string, mv motor.Move) {
	suffix := ""
	if mv.Clamped {
		suffix = " (clamped)"
	}
	fmt.Printf("%s: %+d counts to %d%s\n", axis, mv.Applied, mv.End, suffix)
}

func printStatusLine(st motor.Status) {
	markers := ""
	if st.Limits.AtLower {
		markers += "  [at lower limit]"
	}
	if st.Limits.AtUpper {
		markers += "  [at upper limit]"
	}
	fmt.Printf("%-8s %10d counts  %12.3f %s%s\n", st.Name, st.Counts, st.Position, st.Units, markers)
}
