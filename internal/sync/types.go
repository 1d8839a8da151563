// Package sync turns local filesystem changes into remote operations: a
// Watcher produces ChangeEvents, a WorkGate bounds how many are in flight,
// and a Resolver routes each one to the matching drive operation.
package sync

import (
	"time"

	"github.com/tonimelisma/onedrive-push/internal/driveops"
)

// Action is the kind of local change.
type Action string

const (
	ActionAdd    Action = "add"
	ActionChange Action = "change"
	ActionMove   Action = "move"
	ActionCopy   Action = "copy"
	ActionRemove Action = "remove"
)

// ChangeEvent is one local change. Name, OldName and From are slash-separated
// paths relative to the watched root. Events are immutable once issued.
type ChangeEvent struct {
	Action   Action
	Type     driveops.ItemType
	Name     string
	Hash     driveops.Hashes // files only
	Modified time.Time       // zero when unknown
	Size     int64
	Content  driveops.RangeFunc

	OldName string // move source
	From    string // copy source
}
