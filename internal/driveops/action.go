package driveops

import (
	"encoding/json"
	"time"
)

// Phase is the lifecycle stage an ActionRecord reports.
type Phase string

// Record phases. End, Cancel and Error are terminal.
const (
	PhaseStart    Phase = "start"
	PhaseProgress Phase = "progress"
	PhaseEnd      Phase = "end"
	PhaseCancel   Phase = "cancel"
	PhaseError    Phase = "error"
)

// Terminal reports whether no further records follow this phase.
func (p Phase) Terminal() bool {
	return p == PhaseEnd || p == PhaseCancel || p == PhaseError
}

// Op names the remote operation a record belongs to.
type Op string

const (
	OpCreate Op = "create"
	OpUpload Op = "upload"
	OpMove   Op = "move"
	OpRemove Op = "remove"
	OpIgnore Op = "ignore"
)

// ItemType distinguishes files from folders.
type ItemType string

const (
	TypeFile   ItemType = "file"
	TypeFolder ItemType = "folder"
)

// Progress steps carried in ActionRecord.Step.
const (
	StepSending  = "sending"
	StepSent     = "sent"
	StepSkipped  = "skipped"
	StepUploaded = "uploaded"
	StepCreated  = "created"
	StepMoved    = "moved"
	StepRemoved  = "removed"
	StepAbsent   = "absent"
)

// ActionRecord is one observation of an in-progress operation. Records for
// one operation arrive in order and end with exactly one terminal phase.
type ActionRecord struct {
	Phase Phase    `json:"phase"`
	Op    Op       `json:"op"`
	Type  ItemType `json:"type"`
	Name  string   `json:"name"`

	// Extra is [chunkIndex, totalChunks] (1-based) on upload progress.
	Extra []int  `json:"extra,omitempty"`
	Step  string `json:"step,omitempty"`
	From  string `json:"from,omitempty"`

	Err    error     `json:"-"`
	Cancel func()    `json:"-"` // set on upload start records
	Time   time.Time `json:"time"`
}

// MarshalJSON adds the error text as "error".
func (r ActionRecord) MarshalJSON() ([]byte, error) {
	type plain ActionRecord

	out := struct {
		plain
		Error string `json:"error,omitempty"`
	}{plain: plain(r)}

	if r.Err != nil {
		out.Error = r.Err.Error()
	}

	return json.Marshal(out)
}

// nowFunc is swapped in tests.
var nowFunc = time.Now

// NewRecord builds a record stamped with the current time.
func NewRecord(phase Phase, op Op, typ ItemType, name string) ActionRecord {
	return ActionRecord{
		Phase: phase,
		Op:    op,
		Type:  typ,
		Name:  name,
		Time:  nowFunc(),
	}
}

// WithStep returns a copy of r carrying step.
func (r ActionRecord) WithStep(step string) ActionRecord {
	r.Step = step
	return r
}

// WithChunk returns a copy of r carrying the chunk position (1-based index).
func (r ActionRecord) WithChunk(index, total int) ActionRecord {
	r.Extra = []int{index, total}
	return r
}

// WithErr returns a copy of r carrying err.
func (r ActionRecord) WithErr(err error) ActionRecord {
	r.Err = err
	return r
}

// WithFrom returns a copy of r carrying the copy/move source path.
func (r ActionRecord) WithFrom(from string) ActionRecord {
	r.From = from
	return r
}
