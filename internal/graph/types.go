package graph

import "time"

// Item represents a OneDrive drive item (file or folder).
// Fields are normalized from the Graph API response; callers never see raw API data.
type Item struct {
	ID           string
	Name         string
	DriveID      string // normalized: lowercase (Graph API casing is inconsistent)
	ParentID     string
	Size         int64
	ETag         string
	IsFolder     bool
	QuickXorHash string // base64-encoded
	SHA1Hash     string // hex (Personal accounts only)
	SHA256Hash   string // hex (Business accounts, sometimes)
	ModifiedAt   time.Time
}

// UploadSession is a pre-authenticated resumable upload target for one file.
// ParentDriveID and ParentItemID identify the folder the session writes into.
type UploadSession struct {
	UploadURL      string
	ExpirationTime time.Time
	ParentDriveID  string
	ParentItemID   string
}
