package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show provider health from a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("status"); err != nil {
			return err
		}

		addr := statusAddr
		if addr == "" {
			addr = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
		}

		client := &http.Client{Timeout: 5 * time.Second}
		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, addr+"/api/status", nil)
		if err != nil {
			return eris.Wrap(err, "status: build request")
		}
		resp, err := client.Do(req)
		if err != nil {
			return eris.Wrap(err, "status: is the server running?")
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return eris.Errorf("status: server returned %d", resp.StatusCode)
		}

		var pretty json.RawMessage
		if err := json.NewDecoder(resp.Body).Decode(&pretty); err != nil {
			return eris.Wrap(err, "status: decode response")
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(pretty)
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "server address (default http://localhost:<port>)")
	rootCmd.AddCommand(statusCmd)
}
