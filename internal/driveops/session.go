package driveops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/tonimelisma/onedrive-push/internal/graph"
)

// ErrNotFolder is returned when a path that must be a folder holds a file.
var ErrNotFolder = errors.New("driveops: not a folder")

// CleanRemotePath normalizes a remote path: forward slashes, no leading or
// trailing slash, no "." or ".." segments. The drive root is "".
func CleanRemotePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.Trim(path.Clean("/"+p), "/")
}

// JoinRemote places a relative name under the remote root.
func JoinRemote(root, name string) string {
	return CleanRemotePath(path.Join(root, name))
}

// splitRemote returns the parent path and leaf name of a cleaned path.
func splitRemote(remotePath string) (parent, leaf string) {
	i := strings.LastIndexByte(remotePath, '/')
	if i < 0 {
		return "", remotePath
	}

	return remotePath[:i], remotePath[i+1:]
}

type folderClient interface {
	ItemFetcher
	FolderCreator
}

// folderResolver maps remote folder paths to items, creating missing folders
// (and their ancestors) on demand.
type folderResolver struct {
	client  folderClient
	driveID string
	logger  *slog.Logger
}

// Ensure returns the folder at remotePath, creating it if absent. A 409 from
// a concurrent create resolves to the folder that won.
func (r *folderResolver) Ensure(ctx context.Context, remotePath string) (*graph.Item, error) {
	item, err := r.client.GetItemByPath(ctx, r.driveID, remotePath)
	if err == nil {
		if !item.IsFolder {
			return nil, fmt.Errorf("%w: %s", ErrNotFolder, remotePath)
		}

		return item, nil
	}

	if !errors.Is(err, graph.ErrNotFound) || remotePath == "" {
		return nil, fmt.Errorf("driveops: resolving folder %q: %w", remotePath, err)
	}

	parentPath, leaf := splitRemote(remotePath)

	parent, err := r.Ensure(ctx, parentPath)
	if err != nil {
		return nil, err
	}

	created, err := r.client.CreateFolder(ctx, r.driveOf(parent), parent.ID, leaf)
	if err == nil {
		r.logger.Debug("created folder", slog.String("path", remotePath), slog.String("id", created.ID))
		return created, nil
	}

	if !errors.Is(err, graph.ErrConflict) {
		return nil, fmt.Errorf("driveops: creating folder %q: %w", remotePath, err)
	}

	existing, err := r.client.GetItemByPath(ctx, r.driveID, remotePath)
	if err != nil {
		return nil, fmt.Errorf("driveops: resolving existing folder %q: %w", remotePath, err)
	}

	return existing, nil
}

// driveOf returns the drive that owns item, falling back to the configured
// drive when the response carried no parent reference.
func (r *folderResolver) driveOf(item *graph.Item) string {
	if item.DriveID != "" {
		return item.DriveID
	}

	return r.driveID
}

// OpenSession resolves the parent folder of remotePath and opens an upload
// session for its leaf name with conflict behavior "replace".
func (r *folderResolver) OpenSession(
	ctx context.Context, sessions SessionOpener, remotePath string,
) (*graph.UploadSession, error) {
	parentPath, leaf := splitRemote(remotePath)

	parent, err := r.Ensure(ctx, parentPath)
	if err != nil {
		return nil, err
	}

	session, err := sessions.CreateUploadSession(ctx, r.driveOf(parent), parent.ID, leaf)
	if err != nil {
		return nil, fmt.Errorf("driveops: opening upload session for %q: %w", remotePath, err)
	}

	return session, nil
}
