package storage

import "time"

// Inode is the metadata record for a filesystem object.
type Inode struct {
	Ino   int64
	Mode  uint32
	Uid   uint32
	Gid   uint32
	Size  int64
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
	Nlink int32
}

// IsDir returns true if the inode is a directory
func (i *Inode) IsDir() bool {
	return i.Mode&ModeMask == ModeDir
}

// IsFile returns true if the inode is a regular file
func (i *Inode) IsFile() bool {
	return i.Mode&ModeMask == ModeFile
}

// IsSymlink returns true if the inode is a symbolic link
func (i *Inode) IsSymlink() bool {
	return i.Mode&ModeMask == ModeSymlink
}

// Permissions returns the permission bits
func (i *Inode) Permissions() uint32 {
	return i.Mode & 0777
}

// Dentry is a named edge from a parent directory inode to a target inode.
type Dentry struct {
	ID        int64
	ParentIno int64
	Name      string
	Ino       int64
}

// DirEntry is a directory entry with enough inode info for listing.
type DirEntry struct {
	Name  string
	Ino   int64
	Mode  uint32
	Size  int64
	Mtime time.Time
}

// Chunk is one piece of a file's content at a byte offset. A file's
// content is the ordered union of its chunks; the engine imposes no
// alignment invariant on offsets.
type Chunk struct {
	ID     int64
	Ino    int64
	Offset int64
	Size   int64
	Data   []byte
}

// KVEntry is one key-value row, timestamps in epoch seconds.
type KVEntry struct {
	Key       string
	Value     string
	CreatedAt int64
	UpdatedAt int64
}

// Tool call states.
const (
	ToolCallPending = "pending"
	ToolCallSuccess = "success"
	ToolCallError   = "error"
)

// ToolCall is one recorded tool invocation. Parameters, Result and Error
// are free-form text (conventionally JSON) and never parsed here.
type ToolCall struct {
	ID          int64
	Name        string
	Parameters  string
	Result      string
	Error       string
	Status      string
	StartedAt   int64
	CompletedAt int64
	// DurationMs is in millisecond units but second-granular, derived
	// from the engine's epoch-second clock.
	DurationMs int64
}

// InodeUpdate carries the fields to change on an inode; nil fields are
// left untouched.
type InodeUpdate struct {
	Mode  *uint32
	Uid   *uint32
	Gid   *uint32
	Size  *int64
	Atime *time.Time
	Mtime *time.Time
}
