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
	"time"

	"github.com/uptrace/bun"

	"github.com/cryptopatrick/agentsql/internal/common"
	"github.com/cryptopatrick/agentsql/internal/util"
)

// Filesystem primitives. Everything that touches more than one table
// runs inside a single transaction: a failure in any member statement
// rolls the whole unit back, so partial application (an inode without
// its dentry) is never observable.

// CreateInode inserts a bare inode and returns it with its generated ino.
func (b *Backend) CreateInode(ctx context.Context, mode, uid, gid uint32) (*Inode, error) {
	conn, release, err := b.bunConn(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	opCtx, cancel := b.opCtx(ctx)
	defer cancel()

	m := newInodeModel(mode, uid, gid)
	if _, err := conn.NewInsert().Model(m).Exec(opCtx); err != nil {
		return nil, common.Classify("fs.create_inode", err)
	}
	return m.ToInode(), nil
}

// GetInode returns the inode numbered ino.
func (b *Backend) GetInode(ctx context.Context, ino int64) (*Inode, error) {
	conn, release, err := b.bunConn(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	opCtx, cancel := b.opCtx(ctx)
	defer cancel()

	var m InodeModel
	err = conn.NewSelect().Model(&m).Where("ino = ?", ino).Scan(opCtx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.Wrap(common.ErrNotFound, "fs.get_inode", fmt.Errorf("ino %d", ino))
	}
	if err != nil {
		return nil, common.Classify("fs.get_inode", err)
	}
	return m.ToInode(), nil
}

// UpdateInode applies the non-nil fields of upd and refreshes ctime.
func (b *Backend) UpdateInode(ctx context.Context, ino int64, upd InodeUpdate) error {
	conn, release, err := b.bunConn(ctx)
	if err != nil {
		return err
	}
	defer release()

	opCtx, cancel := b.opCtx(ctx)
	defer cancel()

	q := conn.NewUpdate().Model((*InodeModel)(nil)).Where("ino = ?", ino)
	if upd.Mode != nil {
		q = q.Set("mode = ?", int64(*upd.Mode))
	}
	if upd.Uid != nil {
		q = q.Set("uid = ?", int64(*upd.Uid))
	}
	if upd.Gid != nil {
		q = q.Set("gid = ?", int64(*upd.Gid))
	}
	if upd.Size != nil {
		q = q.Set("size = ?", *upd.Size)
	}
	if upd.Atime != nil {
		q = q.Set("atime = ?", upd.Atime.Unix())
	}
	if upd.Mtime != nil {
		q = q.Set("mtime = ?", upd.Mtime.Unix())
	}
	q = q.Set("ctime = ?", nowEpoch())

	res, execErr := q.Exec(opCtx)
	if execErr != nil {
		return common.Classify("fs.update_inode", execErr)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.Wrap(common.ErrNotFound, "fs.update_inode", fmt.Errorf("ino %d", ino))
	}
	return nil
}

// Link adds the name under parentIno pointing at ino. A duplicate
// (parent_ino, name) fails with a conflict error; it never silently
// overwrites.
func (b *Backend) Link(ctx context.Context, parentIno int64, name string, ino int64) error {
	conn, release, err := b.bunConn(ctx)
	if err != nil {
		return err
	}
	defer release()

	opCtx, cancel := b.opCtx(ctx)
	defer cancel()

	d := &DentryModel{Name: name, ParentIno: parentIno, Ino: ino}
	_, err = conn.NewInsert().Model(d).Exec(opCtx)
	return common.Classify("fs.link", err)
}

// Unlink removes the name from parentIno. Missing names are ErrNotFound.
func (b *Backend) Unlink(ctx context.Context, parentIno int64, name string) error {
	conn, release, err := b.bunConn(ctx)
	if err != nil {
		return err
	}
	defer release()

	opCtx, cancel := b.opCtx(ctx)
	defer cancel()

	res, err := conn.NewDelete().
		Model((*DentryModel)(nil)).
		Where("parent_ino = ? AND name = ?", parentIno, name).
		Exec(opCtx)
	if err != nil {
		return common.Classify("fs.unlink", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.Wrap(common.ErrNotFound, "fs.unlink",
			fmt.Errorf("%q under ino %d", name, parentIno))
	}
	return nil
}

// Lookup resolves a name within a parent directory to its dentry.
func (b *Backend) Lookup(ctx context.Context, parentIno int64, name string) (*Dentry, error) {
	conn, release, err := b.bunConn(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	opCtx, cancel := b.opCtx(ctx)
	defer cancel()

	var m DentryModel
	err = conn.NewSelect().Model(&m).
		Where("parent_ino = ? AND name = ?", parentIno, name).
		Scan(opCtx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.Wrap(common.ErrNotFound, "fs.lookup",
			fmt.Errorf("%q under ino %d", name, parentIno))
	}
	if err != nil {
		return nil, common.Classify("fs.lookup", err)
	}
	return m.ToDentry(), nil
}

// LookupInode resolves a name within a parent directory straight to the
// target inode.
func (b *Backend) LookupInode(ctx context.Context, parentIno int64, name string) (*Inode, error) {
	d, err := b.Lookup(ctx, parentIno, name)
	if err != nil {
		return nil, err
	}
	return b.GetInode(ctx, d.Ino)
}

// ReadDir lists the entries of a directory, sorted by name.
func (b *Backend) ReadDir(ctx context.Context, parentIno int64) ([]DirEntry, error) {
	conn, release, err := b.bunConn(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	opCtx, cancel := b.opCtx(ctx)
	defer cancel()

	var rows []struct {
		Name  string `bun:"name"`
		Ino   int64  `bun:"ino"`
		Mode  int64  `bun:"mode"`
		Size  int64  `bun:"size"`
		Mtime int64  `bun:"mtime"`
	}
	err = conn.NewSelect().
		TableExpr("fs_dentry AS d").
		ColumnExpr("d.name AS name, d.ino AS ino, i.mode AS mode, i.size AS size, i.mtime AS mtime").
		Join("JOIN fs_inode AS i ON i.ino = d.ino").
		Where("d.parent_ino = ?", parentIno).
		OrderExpr("d.name ASC").
		Scan(opCtx, &rows)
	if err != nil {
		return nil, common.Classify("fs.readdir", err)
	}

	entries := make([]DirEntry, len(rows))
	for i, r := range rows {
		entries[i] = DirEntry{
			Name:  r.Name,
			Ino:   r.Ino,
			Mode:  uint32(r.Mode),
			Size:  r.Size,
			Mtime: timeFromEpoch(r.Mtime),
		}
	}
	return entries, nil
}

// CreateFile creates a regular file: inode plus dentry, atomically. If
// the dentry insert fails (duplicate name) the inode is rolled back with
// it and no orphan is left behind.
func (b *Backend) CreateFile(ctx context.Context, parentIno int64, name string, mode, uid, gid uint32) (*Inode, error) {
	if mode&ModeMask == 0 {
		mode |= ModeFile
	}
	return b.createLinked(ctx, parentIno, name, mode, uid, gid, 1, "")
}

// Mkdir creates a directory under parentIno, atomically.
func (b *Backend) Mkdir(ctx context.Context, parentIno int64, name string, mode, uid, gid uint32) (*Inode, error) {
	if mode&ModeMask == 0 {
		mode |= ModeDir
	}
	return b.createLinked(ctx, parentIno, name, mode, uid, gid, 2, "")
}

// Symlink creates a symbolic link to target under parentIno, atomically.
// The target path is stored as given, never validated against existing
// inodes.
func (b *Backend) Symlink(ctx context.Context, parentIno int64, name, target string, uid, gid uint32) (*Inode, error) {
	return b.createLinked(ctx, parentIno, name, DefaultSymlinkMode, uid, gid, 1, target)
}

// createLinked is the shared transactional insert behind CreateFile,
// Mkdir and Symlink.
func (b *Backend) createLinked(ctx context.Context, parentIno int64, name string, mode, uid, gid uint32, nlink int64, target string) (*Inode, error) {
	return util.RetryWithResult(ctx, func() (*Inode, error) {
		conn, release, err := b.bunConn(ctx)
		if err != nil {
			return nil, err
		}
		defer release()

		opCtx, cancel := b.opCtx(ctx)
		defer cancel()

		var created *Inode
		err = conn.RunInTx(opCtx, nil, func(ctx context.Context, tx bun.Tx) error {
			m := newInodeModel(mode, uid, gid)
			m.Nlink = nlink
			if _, err := tx.NewInsert().Model(m).Exec(ctx); err != nil {
				return err
			}
			d := &DentryModel{Name: name, ParentIno: parentIno, Ino: m.Ino}
			if _, err := tx.NewInsert().Model(d).Exec(ctx); err != nil {
				return err
			}
			if target != "" {
				s := &SymlinkModel{Ino: m.Ino, Target: target}
				if _, err := tx.NewInsert().Model(s).Exec(ctx); err != nil {
					return err
				}
			}
			created = m.ToInode()
			return nil
		})
		if err != nil {
			return nil, common.Classify("fs.create", err)
		}
		return created, nil
	})
}

// ReadSymlink returns the stored target of a symlink inode.
func (b *Backend) ReadSymlink(ctx context.Context, ino int64) (string, error) {
	conn, release, err := b.bunConn(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	opCtx, cancel := b.opCtx(ctx)
	defer cancel()

	var m SymlinkModel
	err = conn.NewSelect().Model(&m).Where("ino = ?", ino).Scan(opCtx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", common.Wrap(common.ErrNotFound, "fs.readlink", fmt.Errorf("ino %d", ino))
	}
	if err != nil {
		return "", common.Classify("fs.readlink", err)
	}
	return m.Target, nil
}

// WriteChunk stores one piece of file content at a byte offset and grows
// the owning inode's size if the chunk extends past it, atomically. No
// alignment is imposed; chunks may be sparse or overlapping as the
// owning layer sees fit.
func (b *Backend) WriteChunk(ctx context.Context, ino, offset int64, data []byte) error {
	return util.Retry(ctx, func() error {
		conn, release, err := b.bunConn(ctx)
		if err != nil {
			return err
		}
		defer release()

		opCtx, cancel := b.opCtx(ctx)
		defer cancel()

		err = conn.RunInTx(opCtx, nil, func(ctx context.Context, tx bun.Tx) error {
			var owner InodeModel
			if err := tx.NewSelect().Model(&owner).Where("ino = ?", ino).Scan(ctx); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return common.Wrap(common.ErrNotFound, "fs.write_chunk", fmt.Errorf("ino %d", ino))
				}
				return err
			}

			c := &ChunkModel{Ino: ino, Offset: offset, Size: int64(len(data)), Data: data}
			if _, err := tx.NewInsert().Model(c).Exec(ctx); err != nil {
				return err
			}

			now := nowEpoch()
			q := tx.NewUpdate().Model((*InodeModel)(nil)).
				Set("mtime = ?", now).
				Set("ctime = ?", now).
				Where("ino = ?", ino)
			if end := offset + int64(len(data)); end > owner.Size {
				q = q.Set("size = ?", end)
			}
			_, err := q.Exec(ctx)
			return err
		})
		return common.Classify("fs.write_chunk", err)
	})
}

// ReadChunkAt returns the most recently written chunk at exactly offset.
func (b *Backend) ReadChunkAt(ctx context.Context, ino, offset int64) (*Chunk, error) {
	conn, release, err := b.bunConn(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	opCtx, cancel := b.opCtx(ctx)
	defer cancel()

	var m ChunkModel
	err = conn.NewSelect().Model(&m).
		Where("ino = ?", ino).
		Where("? = ?", bun.Ident("offset"), offset).
		OrderExpr("id DESC").
		Limit(1).
		Scan(opCtx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.Wrap(common.ErrNotFound, "fs.read_chunk",
			fmt.Errorf("ino %d offset %d", ino, offset))
	}
	if err != nil {
		return nil, common.Classify("fs.read_chunk", err)
	}
	return chunkFromModel(&m), nil
}

// ListChunks returns all chunks of a file ordered by offset, then by
// insertion order so later writes at the same offset win when the owning
// layer folds them.
func (b *Backend) ListChunks(ctx context.Context, ino int64) ([]Chunk, error) {
	conn, release, err := b.bunConn(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	opCtx, cancel := b.opCtx(ctx)
	defer cancel()

	var models []ChunkModel
	err = conn.NewSelect().Model(&models).
		Where("ino = ?", ino).
		OrderExpr("? ASC, id ASC", bun.Ident("offset")).
		Scan(opCtx)
	if err != nil {
		return nil, common.Classify("fs.list_chunks", err)
	}
	chunks := make([]Chunk, len(models))
	for i := range models {
		chunks[i] = *chunkFromModel(&models[i])
	}
	return chunks, nil
}

// TruncateChunks deletes content at or past size and shrinks the inode,
// atomically.
func (b *Backend) TruncateChunks(ctx context.Context, ino, size int64) error {
	return util.Retry(ctx, func() error {
		conn, release, err := b.bunConn(ctx)
		if err != nil {
			return err
		}
		defer release()

		opCtx, cancel := b.opCtx(ctx)
		defer cancel()

		err = conn.RunInTx(opCtx, nil, func(ctx context.Context, tx bun.Tx) error {
			if _, err := tx.NewDelete().Model((*ChunkModel)(nil)).
				Where("ino = ?", ino).
				Where("? >= ?", bun.Ident("offset"), size).
				Exec(ctx); err != nil {
				return err
			}
			now := nowEpoch()
			res, err := tx.NewUpdate().Model((*InodeModel)(nil)).
				Set("size = ?", size).
				Set("mtime = ?", now).
				Set("ctime = ?", now).
				Where("ino = ?", ino).
				Exec(ctx)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return common.Wrap(common.ErrNotFound, "fs.truncate", fmt.Errorf("ino %d", ino))
			}
			return nil
		})
		return common.Classify("fs.truncate", err)
	})
}

func newInodeModel(mode, uid, gid uint32) *InodeModel {
	now := nowEpoch()
	return &InodeModel{
		Mode:  int64(mode),
		UID:   int64(uid),
		GID:   int64(gid),
		Atime: now,
		Mtime: now,
		Ctime: now,
		Nlink: 1,
	}
}

func chunkFromModel(m *ChunkModel) *Chunk {
	return &Chunk{ID: m.ID, Ino: m.Ino, Offset: m.Offset, Size: m.Size, Data: m.Data}
}

func timeFromEpoch(s int64) time.Time {
	return time.Unix(s, 0)
}
