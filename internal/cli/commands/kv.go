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
	"time"

	"github.com/spf13/cobra"
)

var kvCmd = &cobra.Command{
	Use:   "kv",
	Short: "Read and write the key/value namespace",
	Long: `Read and write the key/value namespace.

Subcommands:
  get    Print the value stored under a key
  put    Store a value under a key, replacing any previous value
  del    Remove a key
  scan   List entries whose keys start with a prefix

Examples:
  agentsql --db state.db kv put task/1/status running
  agentsql --db state.db kv get task/1/status
  agentsql --db state.db kv scan task/
  agentsql --db state.db kv del task/1/status`,
}

var kvGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the value stored under a key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKVGet,
}

var kvPutCmd = &cobra.Command{
	Use:   "put <key> <value>",
	Short: "Store a value under a key",
	Long: `Store a value under a key.

If the key already exists its value is replaced and its updated_at
timestamp refreshed; created_at is preserved.`,
	Args: cobra.ExactArgs(2),
	RunE: runKVPut,
}

var kvDelCmd = &cobra.Command{
	Use:   "del <key>",
	Short: "Remove a key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKVDel,
}

var kvScanCmd = &cobra.Command{
	Use:   "scan [prefix]",
	Short: "List entries whose keys start with a prefix",
	Long: `List entries whose keys start with a prefix, ordered by key.

An empty prefix lists the whole namespace. LIKE metacharacters in the
prefix are matched literally:
  agentsql kv scan task/       matches task/1, task/2, ...
  agentsql kv scan 'a_b'       matches a_b only, not axb`,
	Args: cobra.MaximumNArgs(1),
	RunE: runKVScan,
}

var kvScanValues bool

func init() {
	kvScanCmd.Flags().BoolVarP(&kvScanValues, "values", "l", false, "print values and timestamps, not just keys")
	kvCmd.AddCommand(kvGetCmd)
	kvCmd.AddCommand(kvPutCmd)
	kvCmd.AddCommand(kvDelCmd)
	kvCmd.AddCommand(kvScanCmd)
	rootCmd.AddCommand(kvCmd)
}

func runKVGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	backend, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	value, ok, err := backend.Get(ctx, args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("key not found: %s", args[0])
	}
	fmt.Println(value)
	return nil
}

func runKVPut(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	backend, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	return backend.Put(ctx, args[0], args[1])
}

func runKVDel(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	backend, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	removed, err := backend.Delete(ctx, args[0])
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("key not found: %s", args[0])
	}
	return nil
}

func runKVScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	backend, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	prefix := ""
	if len(args) > 0 {
		prefix = args[0]
	}

	entries, err := backend.Scan(ctx, prefix)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if kvScanValues {
			updated := time.Unix(e.UpdatedAt, 0).UTC().Format(time.RFC3339)
			fmt.Printf("%s\t%s\t%s\n", e.Key, e.Value, updated)
		} else {
			fmt.Println(e.Key)
		}
	}
	return nil
}
