package client

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var stdout io.Writer = os.Stdout

func wantJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("output")
	return v
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(stdout, string(data))
	return nil
}

// printRaw re-indents a response payload without decoding it into a type.
func printRaw(resp *APIResponse) error {
	var v interface{}
	if err := resp.Decode(&v); err != nil {
		return err
	}
	return printJSON(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
