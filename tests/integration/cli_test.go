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

package integration

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/cryptopatrick/agentsql/internal/storage"
)

func TestCLIInitAndInfo(t *testing.T) {
	g := NewWithT(t)
	dbPath := filepath.Join(t.TempDir(), "cli.db")

	out, err := runCLI(t, dbPath, "init")
	g.Expect(err).NotTo(HaveOccurred(), out)
	g.Expect(out).To(ContainSubstring("Initialized sqlite database"))

	// init is idempotent
	out, err = runCLI(t, dbPath, "init")
	g.Expect(err).NotTo(HaveOccurred(), out)

	out, err = runCLI(t, dbPath, "info")
	g.Expect(err).NotTo(HaveOccurred(), out)
	g.Expect(out).To(ContainSubstring("Engine: sqlite"))
	g.Expect(out).To(ContainSubstring("Schema version: " + storage.SchemaVersion))
	g.Expect(out).To(ContainSubstring("Database ID:"))
}

func TestCLIKeyValueRoundTrip(t *testing.T) {
	g := NewWithT(t)
	dbPath := filepath.Join(t.TempDir(), "cli.db")

	out, err := runCLI(t, dbPath, "kv", "put", "task/1/status", "running")
	g.Expect(err).NotTo(HaveOccurred(), out)

	out, err = runCLI(t, dbPath, "kv", "get", "task/1/status")
	g.Expect(err).NotTo(HaveOccurred(), out)
	g.Expect(strings.TrimSpace(out)).To(Equal("running"))

	out, err = runCLI(t, dbPath, "kv", "put", "task/2/status", "queued")
	g.Expect(err).NotTo(HaveOccurred(), out)

	out, err = runCLI(t, dbPath, "kv", "scan", "task/")
	g.Expect(err).NotTo(HaveOccurred(), out)
	g.Expect(out).To(ContainSubstring("task/1/status"))
	g.Expect(out).To(ContainSubstring("task/2/status"))

	out, err = runCLI(t, dbPath, "kv", "del", "task/1/status")
	g.Expect(err).NotTo(HaveOccurred(), out)

	out, err = runCLI(t, dbPath, "kv", "get", "task/1/status")
	g.Expect(err).To(HaveOccurred())
	g.Expect(out).To(ContainSubstring("key not found"))

	// Deleting twice fails cleanly.
	_, err = runCLI(t, dbPath, "kv", "del", "task/1/status")
	g.Expect(err).To(HaveOccurred())
}

func TestCLIToolListing(t *testing.T) {
	g := NewWithT(t)
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "cli.db")

	// Record calls through the library, then read them with the CLI.
	backend, err := storage.Open(ctx, dbPath)
	g.Expect(err).NotTo(HaveOccurred())
	id, err := backend.BeginToolCall(ctx, "fetch", `{"url":"https://example.com"}`)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(backend.FinishToolCall(ctx, id, "ok")).To(Succeed())
	_, err = backend.BeginToolCall(ctx, "think", "{}")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(backend.Close()).To(Succeed())

	out, err := runCLI(t, dbPath, "tools")
	g.Expect(err).NotTo(HaveOccurred(), out)
	g.Expect(out).To(ContainSubstring("fetch"))
	g.Expect(out).To(ContainSubstring("success"))
	g.Expect(out).To(ContainSubstring("think"))
	g.Expect(out).To(ContainSubstring("pending"))
}

func TestCLIRequiresDatabase(t *testing.T) {
	g := NewWithT(t)

	out, err := runCLIWithoutDB(t, "info")
	g.Expect(err).To(HaveOccurred())
	g.Expect(out).To(ContainSubstring("no database specified"))
}
