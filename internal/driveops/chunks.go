package driveops

import (
	"context"
	"errors"
	"fmt"

	"github.com/tonimelisma/onedrive-push/internal/graph"
)

// ErrUploadCanceled is the result of an upload stopped at a chunk boundary
// or by context cancellation.
var ErrUploadCanceled = errors.New("driveops: upload canceled")

// ErrIncompleteUpload is returned when the final chunk is accepted without
// the server returning the finished item.
var ErrIncompleteUpload = errors.New("driveops: final chunk accepted without completed item")

// chunkSender PUTs a planned chunk sequence one request at a time. Chunk
// i+1 is never read or sent before chunk i's response has been observed.
type chunkSender struct {
	putter  ChunkPutter
	session *graph.UploadSession
	content RangeFunc
	size    int64

	// canceled reports a cooperative cancel request. It is consulted before
	// every chunk except the final one: once only the final chunk remains,
	// the upload runs to completion.
	canceled func() bool

	// progress is called with the 0-based chunk index before and after
	// each PUT.
	progress func(index int, step string)
}

func (s *chunkSender) send(ctx context.Context, chunks []Chunk) (*graph.Item, error) {
	n := len(chunks)

	for i, c := range chunks {
		last := i == n-1

		if !last && s.canceled() {
			return nil, ErrUploadCanceled
		}

		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUploadCanceled, err)
		}

		s.progress(i, StepSending)

		item, err := s.put(ctx, c)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrUploadCanceled, ctx.Err())
			}

			return nil, fmt.Errorf("driveops: chunk %d/%d: %w", i+1, n, err)
		}

		s.progress(i, StepSent)

		if last {
			if item == nil {
				return nil, ErrIncompleteUpload
			}

			return item, nil
		}
	}

	return nil, ErrIncompleteUpload
}

func (s *chunkSender) put(ctx context.Context, c Chunk) (*graph.Item, error) {
	body, err := s.content(c.Start, c.End)
	if err != nil {
		return nil, fmt.Errorf("reading bytes %d-%d: %w", c.Start, c.End, err)
	}
	defer body.Close()

	return s.putter.UploadChunk(ctx, s.session, body, c.Start, c.End, s.size)
}
