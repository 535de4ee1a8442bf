// Copyright 2025 AgentSQL Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cryptopatrick/agentsql/internal/storage"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List recorded tool calls",
	Long: `List recorded tool calls, newest first.

Each line shows the call id, tool name, status, start time and, for
completed calls, the duration in milliseconds.

Examples:
  agentsql --db state.db tools
  agentsql --db state.db tools --limit 20`,
	Args: cobra.NoArgs,
	RunE: runTools,
}

var toolsLimit int

func init() {
	toolsCmd.Flags().IntVarP(&toolsLimit, "limit", "n", 50, "maximum number of calls to show (0 = all)")
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	backend, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	calls, err := backend.ListToolCalls(ctx, toolsLimit)
	if err != nil {
		return err
	}
	if len(calls) == 0 {
		fmt.Println("No tool calls recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTOOL\tSTATUS\tSTARTED\tDURATION")
	for _, c := range calls {
		started := time.Unix(c.StartedAt, 0).UTC().Format(time.RFC3339)
		duration := "-"
		if c.Status != storage.ToolCallPending {
			duration = fmt.Sprintf("%dms", c.DurationMs)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Status, started, duration)
	}
	return w.Flush()
}
