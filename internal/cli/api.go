package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/your-username/ehr-console/internal/api"
)

var apiData string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Call the admin REST API with the stored credentials",
}

var apiGetCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "GET a path relative to API_URL",
	Example: `  ehr-console api get /me
  ehr-console api get /metrics.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _ := newSession()
		res, err := api.NewClient(cfg.API.URL, store).Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printResponse(cmd.OutOrStdout(), res)
	},
}

var apiPostCmd = &cobra.Command{
	Use:   "post <path>",
	Short: "POST a JSON body to a path relative to API_URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var payload interface{}
		if apiData != "" {
			if err := json.Unmarshal([]byte(apiData), &payload); err != nil {
				return fmt.Errorf("invalid --data: %w", err)
			}
		}
		store, _ := newSession()
		res, err := api.NewClient(cfg.API.URL, store).Post(cmd.Context(), args[0], payload)
		if err != nil {
			return err
		}
		return printResponse(cmd.OutOrStdout(), res)
	},
}

func init() {
	apiPostCmd.Flags().StringVarP(&apiData, "data", "d", "", "JSON request body")

	apiCmd.AddCommand(apiGetCmd, apiPostCmd)
	rootCmd.AddCommand(apiCmd)
}

// printResponse writes the body, indented when it is JSON, and fails on non-2xx
func printResponse(w io.Writer, res *api.Response) error {
	var out bytes.Buffer
	if err := json.Indent(&out, res.Body, "", "  "); err != nil {
		out.Reset()
		out.Write(res.Body)
	}
	if out.Len() > 0 {
		out.WriteByte('\n')
	}
	if _, err := w.Write(out.Bytes()); err != nil {
		return err
	}

	if res.Status < 200 || res.Status >= 300 {
		return fmt.Errorf("request failed: %d %s", res.Status, http.StatusText(res.Status))
	}
	return nil
}
