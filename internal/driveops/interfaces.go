package driveops

import (
	"context"
	"io"

	"github.com/tonimelisma/onedrive-push/internal/graph"
)

// ItemFetcher looks up remote metadata by path. Satisfied by *graph.Client.
type ItemFetcher interface {
	GetItemByPath(ctx context.Context, driveID, remotePath string) (*graph.Item, error)
}

// FolderCreator creates a single folder under a parent.
type FolderCreator interface {
	CreateFolder(ctx context.Context, driveID, parentID, name string) (*graph.Item, error)
}

// SessionOpener requests a resumable upload session.
type SessionOpener interface {
	CreateUploadSession(ctx context.Context, driveID, parentID, name string) (*graph.UploadSession, error)
}

// ChunkPutter sends one inclusive byte range to an upload session. It returns
// the finished item on the final chunk, nil before that.
type ChunkPutter interface {
	UploadChunk(
		ctx context.Context, session *graph.UploadSession, chunk io.Reader, start, end, total int64,
	) (*graph.Item, error)
}

// UploadClient is everything the Uploader needs from the Graph client.
type UploadClient interface {
	ItemFetcher
	FolderCreator
	SessionOpener
	ChunkPutter
}

// ItemClient adds the single-shot mutations used by Operations.
type ItemClient interface {
	UploadClient
	MoveItem(ctx context.Context, driveID, itemID, newParentID, newName string) (*graph.Item, error)
	DeleteItem(ctx context.Context, driveID, itemID string) error
}
