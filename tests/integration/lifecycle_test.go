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
	"testing"

	. "github.com/onsi/gomega"

	"github.com/cryptopatrick/agentsql/internal/storage"
)

// TestAgentLifecycle walks one agent session end to end on a fresh embedded
// database: schema install, a working tree with file content, scratch state
// in the KV namespace and an audited tool call.
func TestAgentLifecycle(t *testing.T) {
	g := NewWithT(t)
	ctx := context.Background()

	dbPath := filepath.Join(t.TempDir(), "agent.db")
	backend, err := storage.Open(ctx, dbPath)
	g.Expect(err).NotTo(HaveOccurred())
	defer backend.Close()

	// Fresh database carries its identity and schema version.
	id, err := backend.ConfigValue(ctx, "database_id")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(id).NotTo(BeEmpty())
	ver, err := backend.ConfigValue(ctx, "schema_version")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ver).To(Equal(storage.SchemaVersion))

	// Build /workspace/notes.txt under the root directory.
	workspace, err := backend.Mkdir(ctx, storage.RootIno, "workspace", 0, 0, 0)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(workspace.IsDir()).To(BeTrue())

	notes, err := backend.CreateFile(ctx, workspace.Ino, "notes.txt", 0, 0, 0)
	g.Expect(err).NotTo(HaveOccurred())

	content := []byte("first observation\x00\xffsecond observation")
	g.Expect(backend.WriteChunk(ctx, notes.Ino, 0, content)).To(Succeed())

	chunk, err := backend.ReadChunkAt(ctx, notes.Ino, 0)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(chunk.Data).To(Equal(content))

	got, err := backend.GetInode(ctx, notes.Ino)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(got.Size).To(Equal(int64(len(content))))

	entries, err := backend.ReadDir(ctx, workspace.Ino)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(entries).To(HaveLen(1))
	g.Expect(entries[0].Name).To(Equal("notes.txt"))

	// Scratch state in the KV namespace.
	g.Expect(backend.Put(ctx, "task/current", "summarize")).To(Succeed())
	g.Expect(backend.Put(ctx, "task/current", "summarize-v2")).To(Succeed())
	value, ok, err := backend.Get(ctx, "task/current")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ok).To(BeTrue())
	g.Expect(value).To(Equal("summarize-v2"))

	// One audited tool call, begun and finished.
	callID, err := backend.BeginToolCall(ctx, "search", `{"q":"golang"}`)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(backend.FinishToolCall(ctx, callID, `{"hits":3}`)).To(Succeed())

	call, err := backend.GetToolCall(ctx, callID)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(call.Status).To(Equal(storage.ToolCallSuccess))
	g.Expect(call.Result).To(Equal(`{"hits":3}`))

	// Everything survives a close and reopen of the same file.
	g.Expect(backend.Close()).To(Succeed())
	reopened, err := storage.Open(ctx, dbPath)
	g.Expect(err).NotTo(HaveOccurred())
	defer reopened.Close()

	again, err := reopened.ConfigValue(ctx, "database_id")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(again).To(Equal(id))

	inode, err := reopened.LookupInode(ctx, workspace.Ino, "notes.txt")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(inode.Size).To(Equal(int64(len(content))))

	value, ok, err = reopened.Get(ctx, "task/current")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ok).To(BeTrue())
	g.Expect(value).To(Equal("summarize-v2"))
}

// TestInMemoryDatabaseIsIsolated verifies that :memory: databases start
// empty and do not leave files behind.
func TestInMemoryDatabaseIsIsolated(t *testing.T) {
	g := NewWithT(t)
	ctx := context.Background()

	backend, err := storage.Open(ctx, storage.Memory)
	g.Expect(err).NotTo(HaveOccurred())
	defer backend.Close()

	entries, err := backend.Scan(ctx, "")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(entries).To(BeEmpty())

	dir, err := backend.ReadDir(ctx, storage.RootIno)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(dir).To(BeEmpty())

	g.Expect(backend.Path()).To(BeEmpty())
}
