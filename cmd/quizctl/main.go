// Quizctl is the operator CLI for a running quizd daemon.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	version = "dev"

	daemonAddr string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "quizctl",
		Short:        "Control a running quizd daemon",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&daemonAddr, "addr", "http://localhost:9180", "quizd daemon address")

	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newGenerateCmd())
	rootCmd.AddCommand(newShardsCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the quizctl version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("quizctl %s\n", version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// postJSON posts a request body to the daemon and pretty-prints the JSON
// response to stdout.
func postJSON(path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Post(daemonAddr+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("calling quizd: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("quizd returned %d: %s", resp.StatusCode, string(data))
	}
	if len(data) == 0 {
		fmt.Println("ok")
		return nil
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}
