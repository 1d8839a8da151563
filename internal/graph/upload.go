package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ChunkAlignment is the required granularity for upload chunk sizes (320 KiB).
// All chunks except the final one must be a multiple of this value.
const ChunkAlignment = 320 * 1024

// Upload session request/response types for Graph API JSON serialization.
type createUploadSessionRequest struct {
	Item uploadSessionItem `json:"item"`
}

type uploadSessionItem struct {
	ConflictBehavior string `json:"@microsoft.graph.conflictBehavior"` //nolint:tagliatelle // Graph API annotation key
	Name             string `json:"name"`
}

type uploadSessionResponse struct {
	UploadURL          string `json:"uploadUrl"`
	ExpirationDateTime string `json:"expirationDateTime"`
}

// CreateUploadSession opens a resumable upload session for name inside the
// parent folder (driveID, parentID). Existing items are replaced.
func (c *Client) CreateUploadSession(
	ctx context.Context, driveID, parentID, name string,
) (*UploadSession, error) {
	c.logger.Info("creating upload session",
		slog.String("drive_id", driveID),
		slog.String("parent_id", parentID),
		slog.String("name", name),
	)

	path := fmt.Sprintf("/drives/%s/items/%s:/%s:/createUploadSession", driveID, parentID, EscapeComponent(name))

	bodyBytes, err := json.Marshal(createUploadSessionRequest{
		Item: uploadSessionItem{ConflictBehavior: "replace", Name: name},
	})
	if err != nil {
		return nil, fmt.Errorf("graph: marshaling upload session request: %w", err)
	}

	resp, err := c.Do(ctx, http.MethodPost, path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var usr uploadSessionResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&usr); decErr != nil {
		return nil, fmt.Errorf("graph: decoding upload session response: %w", decErr)
	}

	if usr.UploadURL == "" {
		return nil, fmt.Errorf("graph: upload session response for %q has no uploadUrl", name)
	}

	session := &UploadSession{
		UploadURL:     usr.UploadURL,
		ParentDriveID: driveID,
		ParentItemID:  parentID,
	}

	if usr.ExpirationDateTime != "" {
		exp, parseErr := time.Parse(time.RFC3339, usr.ExpirationDateTime)
		if parseErr != nil {
			c.logger.Warn("invalid upload session expiration, using zero time",
				slog.String("raw", usr.ExpirationDateTime),
				slog.String("error", parseErr.Error()),
			)
		}

		session.ExpirationTime = exp
	}

	return session, nil
}

// UploadChunk PUTs the inclusive byte range [start, end] of a total-byte file
// to the session URL. The session URL is pre-authenticated, so no
// Authorization header is sent. Returns the completed Item when the server
// reports the upload finished (200/201), nil for accepted intermediate
// chunks (202). Non-2xx responses return a *GraphError that carries the
// request headers and the response body.
func (c *Client) UploadChunk(
	ctx context.Context, session *UploadSession, chunk io.Reader, start, end, total int64,
) (*Item, error) {
	length := end - start + 1

	reqHeader := http.Header{}
	reqHeader.Set("Content-Length", strconv.FormatInt(length, 10))
	reqHeader.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, total))

	c.logger.Debug("uploading chunk",
		slog.Int64("start", start),
		slog.Int64("end", end),
		slog.Int64("total", total),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, session.UploadURL, chunk)
	if err != nil {
		return nil, fmt.Errorf("graph: creating chunk upload request: %w", err)
	}

	// net/http writes Content-Length from the field, not the header map.
	req.ContentLength = length
	req.Header.Set("Content-Range", reqHeader.Get("Content-Range"))
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("graph: chunk upload canceled: %w", ctx.Err())
		}

		c.logger.Error("chunk upload request failed",
			slog.String("content_range", reqHeader.Get("Content-Range")),
			slog.String("error", err.Error()),
		)

		return nil, fmt.Errorf("graph: chunk upload: %w: %w", ErrTransport, err)
	}

	switch resp.StatusCode {
	case http.StatusAccepted:
		defer resp.Body.Close()

		// Drain to reuse the connection.
		if _, drainErr := io.Copy(io.Discard, resp.Body); drainErr != nil {
			return nil, fmt.Errorf("graph: draining chunk response body: %w", drainErr)
		}

		return nil, nil

	case http.StatusOK, http.StatusCreated:
		item, decErr := c.decodeItem(resp, "final chunk")
		if decErr != nil {
			return nil, decErr
		}

		c.logger.Debug("upload complete",
			slog.String("item_id", item.ID),
			slog.String("item_name", item.Name),
		)

		return item, nil

	default:
		graphErr := newGraphError(resp, reqHeader)

		c.logger.Error("chunk upload failed",
			slog.Int("status", resp.StatusCode),
			slog.String("content_range", reqHeader.Get("Content-Range")),
		)

		return nil, graphErr
	}
}

// EscapeComponent percent-encodes s the way OneDrive clients address a leaf
// name in a path-based URL: every byte outside A-Z a-z 0-9 and -_.!~*'() is
// escaped, including '/', '+', '&', '=', ':' and '@'.
func EscapeComponent(s string) string {
	const hex = "0123456789ABCDEF"

	var b strings.Builder
	b.Grow(len(s))

	for i := range len(s) {
		ch := s[i]
		if isUnreservedComponent(ch) {
			b.WriteByte(ch)
			continue
		}

		b.WriteByte('%')
		b.WriteByte(hex[ch>>4])
		b.WriteByte(hex[ch&0x0f])
	}

	return b.String()
}

func isUnreservedComponent(ch byte) bool {
	switch {
	case ch >= 'A' && ch <= 'Z', ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9':
		return true
	}

	return strings.IndexByte("-_.!~*'()", ch) >= 0
}
