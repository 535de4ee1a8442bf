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

// Package integration exercises the agentsql CLI and storage backend end to
// end against the embedded engine. The client-server engines need a live
// server and are covered by the package-level tests through the dialect
// descriptors instead.
package integration

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
)

var (
	cliBinary   string
	buildOnce   sync.Once
	buildErr    error
	projectRoot string
)

// TestMain builds the CLI binary once before running all tests
func TestMain(m *testing.M) {
	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get working directory: %v\n", err)
		os.Exit(1)
	}
	projectRoot = filepath.Join(wd, "..", "..")

	os.Exit(m.Run())
}

// buildCLI builds the agentsql binary into a temp dir, once per test run.
func buildCLI(t *testing.T) string {
	t.Helper()

	buildOnce.Do(func() {
		dir, err := os.MkdirTemp("", "agentsql-cli")
		if err != nil {
			buildErr = err
			return
		}
		cliBinary = filepath.Join(dir, "agentsql")

		cmd := exec.Command("go", "build", "-o", cliBinary, "./cmd/agentsql")
		cmd.Dir = projectRoot
		if out, err := cmd.CombinedOutput(); err != nil {
			buildErr = fmt.Errorf("go build: %w\n%s", err, out)
		}
	})
	if buildErr != nil {
		t.Fatalf("failed to build CLI: %v", buildErr)
	}
	return cliBinary
}

// runCLI runs the agentsql binary with the given arguments and returns
// combined stdout/stderr.
func runCLI(t *testing.T, db string, args ...string) (string, error) {
	t.Helper()

	bin := buildCLI(t)
	full := append([]string{"--db", db}, args...)
	cmd := exec.Command(bin, full...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

// runCLIWithoutDB runs the binary with neither --db nor AGENTSQL_DB set.
func runCLIWithoutDB(t *testing.T, args ...string) (string, error) {
	t.Helper()

	bin := buildCLI(t)
	cmd := exec.Command(bin, args...)
	cmd.Env = append(os.Environ(), "AGENTSQL_DB=")

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}
