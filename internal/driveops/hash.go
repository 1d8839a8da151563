package driveops

import (
	"crypto/sha1" //nolint:gosec // OneDrive exposes sha1Hash for content comparison
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tonimelisma/onedrive-push/internal/graph"
	"github.com/tonimelisma/onedrive-push/pkg/quickxorhash"
)

// Hashes are the local digests of a file's content. Personal drives report
// sha1Hash, Business and SharePoint drives only quickXorHash.
type Hashes struct {
	SHA1     string // lowercase hex
	QuickXor string // base64
}

// IsZero reports whether no digest is known.
func (h Hashes) IsZero() bool {
	return h.SHA1 == "" && h.QuickXor == ""
}

// ComputeHashes reads the file once and returns both digests.
func ComputeHashes(fsPath string) (Hashes, error) {
	f, err := os.Open(fsPath)
	if err != nil {
		return Hashes{}, fmt.Errorf("opening %s for hashing: %w", fsPath, err)
	}
	defer f.Close()

	sh := sha1.New() //nolint:gosec // see import
	qx := quickxorhash.New()

	if _, err := io.Copy(io.MultiWriter(sh, qx), f); err != nil {
		return Hashes{}, fmt.Errorf("hashing %s: %w", fsPath, err)
	}

	return Hashes{
		SHA1:     hex.EncodeToString(sh.Sum(nil)),
		QuickXor: base64.StdEncoding.EncodeToString(qx.Sum(nil)),
	}, nil
}

// HashMatches reports whether the remote item carries a digest equal to the
// matching local one. Hex compares case-insensitively, base64 exactly.
func HashMatches(item *graph.Item, local Hashes) bool {
	if item == nil {
		return false
	}

	if local.QuickXor != "" && item.QuickXorHash != "" {
		return item.QuickXorHash == local.QuickXor
	}

	return local.SHA1 != "" && item.SHA1Hash != "" && strings.EqualFold(item.SHA1Hash, local.SHA1)
}
