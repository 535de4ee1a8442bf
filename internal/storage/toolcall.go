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

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cryptopatrick/agentsql/internal/common"
)

// Tool-call audit trail. A record is created pending when an invocation
// begins and mutated exactly once to a terminal state when it ends.
// Records are never deleted by this layer.

// BeginToolCall records the start of a tool invocation and returns the
// record id. params is free-form text, conventionally JSON, never parsed.
func (b *Backend) BeginToolCall(ctx context.Context, name, params string) (int64, error) {
	conn, release, err := b.bunConn(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	opCtx, cancel := b.opCtx(ctx)
	defer cancel()

	m := &ToolCallModel{
		Name:       name,
		Parameters: params,
		Status:     ToolCallPending,
		StartedAt:  nowEpoch(),
	}
	if _, err := conn.NewInsert().Model(m).Exec(opCtx); err != nil {
		return 0, common.Classify("tool.begin", err)
	}
	return m.ID, nil
}

// FinishToolCall moves a pending record to success, deriving completed_at
// and duration_ms on the engine's clock. Both timestamps are epoch
// seconds, so duration_ms has second granularity.
func (b *Backend) FinishToolCall(ctx context.Context, id int64, result string) error {
	return b.completeToolCall(ctx, id, ToolCallSuccess, "result", result)
}

// FailToolCall moves a pending record to error.
func (b *Backend) FailToolCall(ctx context.Context, id int64, errText string) error {
	return b.completeToolCall(ctx, id, ToolCallError, "error", errText)
}

// completeToolCall performs the single pending → terminal transition.
// The status guard makes a second completion a conflict, not an
// overwrite.
func (b *Backend) completeToolCall(ctx context.Context, id int64, status, column, text string) error {
	conn, release, err := b.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	opCtx, cancel := b.opCtx(ctx)
	defer cancel()

	// Both clocks are epoch seconds, so the stored duration_ms is
	// second-granular, in millisecond units.
	now := b.desc.NowEpoch
	stmt := b.desc.Translate(fmt.Sprintf(
		"UPDATE tool_calls SET status = ?, %s = ?, completed_at = %s, "+
			"duration_ms = (%s - started_at) * 1000 WHERE id = ? AND status = ?",
		column, now, now))

	res, err := conn.ExecContext(opCtx, stmt, status, text, id, ToolCallPending)
	if err != nil {
		return common.Classify("tool.complete", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Distinguish a missing record from one already completed.
		existing, err := b.GetToolCall(ctx, id)
		if err != nil {
			return err
		}
		return common.Wrap(common.ErrConflict, "tool.complete",
			fmt.Errorf("record %d already %s", id, existing.Status))
	}
	return nil
}

// GetToolCall returns one record by id.
func (b *Backend) GetToolCall(ctx context.Context, id int64) (*ToolCall, error) {
	conn, release, err := b.bunConn(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	opCtx, cancel := b.opCtx(ctx)
	defer cancel()

	var m ToolCallModel
	err = conn.NewSelect().Model(&m).Where("id = ?", id).Scan(opCtx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.Wrap(common.ErrNotFound, "tool.get", fmt.Errorf("record %d", id))
	}
	if err != nil {
		return nil, common.Classify("tool.get", err)
	}
	return m.ToToolCall(), nil
}

// ListToolCalls returns up to limit records, newest first. limit <= 0
// means no limit.
func (b *Backend) ListToolCalls(ctx context.Context, limit int) ([]ToolCall, error) {
	conn, release, err := b.bunConn(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	opCtx, cancel := b.opCtx(ctx)
	defer cancel()

	var models []ToolCallModel
	q := conn.NewSelect().Model(&models).
		OrderExpr("started_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(opCtx); err != nil {
		return nil, common.Classify("tool.list", err)
	}
	calls := make([]ToolCall, len(models))
	for i := range models {
		calls[i] = *models[i].ToToolCall()
	}
	return calls, nil
}
