package driveops

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tonimelisma/onedrive-push/internal/graph"
)

// ShouldUpload decides whether the local file at remotePath needs sending.
//
//   - empty files are never uploaded and cause no remote call;
//   - a remote item with a matching digest is already in sync;
//   - a missing remote item must be uploaded;
//   - a remote item modified strictly after localModified wins.
//
// A zero localModified is treated as unknown and never loses to the remote
// timestamp. Any lookup failure other than 404 is returned as-is.
func ShouldUpload(
	ctx context.Context, items ItemFetcher, driveID, remotePath string, local Hashes,
	localModified time.Time, size int64,
) (bool, error) {
	if size == 0 {
		return false, nil
	}

	item, err := items.GetItemByPath(ctx, driveID, remotePath)
	if err == nil && HashMatches(item, local) {
		return false, nil
	}

	if err != nil {
		if errors.Is(err, graph.ErrNotFound) {
			return true, nil
		}

		return false, fmt.Errorf("driveops: checking %s: %w", remotePath, err)
	}

	if !localModified.IsZero() && item.ModifiedAt.After(localModified) {
		return false, nil
	}

	return true, nil
}
