package preupload

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/ncatbot/ncatbot-go/errors"
	"github.com/ncatbot/ncatbot-go/gateway"
	"github.com/ncatbot/ncatbot-go/logger"
)

// ActionSender is the subset of gateway.Client the stream-upload
// protocol needs, kept narrow so tests can fake it without a socket.
type ActionSender interface {
	Send(ctx context.Context, action string, params map[string]any, timeout time.Duration) (*gateway.InboundFrame, error)
}

// UploadResult is the outcome of staging one file or byte blob through
// the stream-upload sub-protocol.
type UploadResult struct {
	Success  bool
	FilePath string
	Error    string
}

type beginResponse struct {
	StreamID string `json:"stream_id"`
}

type endResponse struct {
	FilePath string `json:"file_path"`
}

// StreamUploadClient splits a file or byte blob into fixed-size chunks
// and stages it server-side through a begin/chunk/end action sequence,
// keyed by a client-generated stream id.
type StreamUploadClient struct {
	sender    ActionSender
	chunkSize int
	retention time.Duration
	timeout   time.Duration
}

// NewStreamUploadClient constructs a client. chunkSize and retention
// fall back to their defaults when zero.
func NewStreamUploadClient(sender ActionSender, chunkSize int, retention time.Duration) *StreamUploadClient {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if retention <= 0 {
		retention = DefaultFileRetention
	}
	return &StreamUploadClient{
		sender:    sender,
		chunkSize: chunkSize,
		retention: retention,
		timeout:   DefaultActionTimeout,
	}
}

// UploadFile reads path and stages its contents.
func (c *StreamUploadClient) UploadFile(ctx context.Context, path string) (UploadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return UploadResult{Success: false, Error: err.Error()}, errors.Wrapf(err, "preupload: read %s", path)
	}
	return c.UploadBytes(ctx, data, filenameOf(path))
}

// UploadBytes stages data under filename, returning the server-side
// path the gateway can reference for c.retention.
func (c *StreamUploadClient) UploadBytes(ctx context.Context, data []byte, filename string) (UploadResult, error) {
	streamID, err := c.begin(ctx, filename, len(data))
	if err != nil {
		return UploadResult{Success: false, Error: err.Error()}, err
	}

	if err := c.sendChunks(ctx, streamID, data); err != nil {
		logger.Errorw("preupload: aborting stream after chunk failure", logger.FieldError, err, "stream_id", streamID)
		c.abort(ctx, streamID)
		return UploadResult{Success: false, Error: err.Error()}, err
	}

	path, err := c.end(ctx, streamID)
	if err != nil {
		return UploadResult{Success: false, Error: err.Error()}, err
	}
	return UploadResult{Success: true, FilePath: path}, nil
}

func (c *StreamUploadClient) begin(ctx context.Context, filename string, size int) (string, error) {
	resp, err := c.sender.Send(ctx, ActionStreamUploadBegin, map[string]any{
		"filename":      filename,
		"size":          size,
		"retention_ms":  c.retention.Milliseconds(),
		"client_stream": uuid.NewString(),
	}, c.timeout)
	if err != nil {
		return "", errors.Wrap(err, "preupload: begin stream")
	}

	var begun beginResponse
	if err := json.Unmarshal(resp.Data, &begun); err != nil {
		return "", errors.Wrap(err, "preupload: decode begin response")
	}
	if begun.StreamID == "" {
		return "", errors.New("preupload: begin response missing stream_id")
	}
	return begun.StreamID, nil
}

func (c *StreamUploadClient) sendChunks(ctx context.Context, streamID string, data []byte) error {
	for seq, offset := 0, 0; offset < len(data); seq, offset = seq+1, offset+c.chunkSize {
		end := offset + c.chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[offset:end]
		_, err := c.sender.Send(ctx, ActionStreamUploadChunk, map[string]any{
			"stream_id": streamID,
			"seq":       seq,
			"data":      base64.StdEncoding.EncodeToString(chunk),
		}, c.timeout)
		if err != nil {
			return errors.Wrapf(err, "preupload: send chunk %d", seq)
		}
	}
	return nil
}

// abort notifies the gateway to release a stream whose chunk sequence
// failed partway through, so a half-uploaded blob doesn't sit pinned
// server-side until its retention window expires. Best-effort: the
// stream is already failed from the caller's perspective, so an abort
// failure is logged, not returned.
func (c *StreamUploadClient) abort(ctx context.Context, streamID string) {
	_, err := c.sender.Send(ctx, ActionStreamUploadEnd, map[string]any{
		"stream_id": streamID,
		"abort":     true,
	}, c.timeout)
	if err != nil {
		logger.Errorw("preupload: abort notification failed", logger.FieldError, err, "stream_id", streamID)
	}
}

func (c *StreamUploadClient) end(ctx context.Context, streamID string) (string, error) {
	resp, err := c.sender.Send(ctx, ActionStreamUploadEnd, map[string]any{
		"stream_id": streamID,
	}, c.timeout)
	if err != nil {
		return "", errors.Wrap(err, "preupload: end stream")
	}

	var ended endResponse
	if err := json.Unmarshal(resp.Data, &ended); err != nil {
		return "", errors.Wrap(err, "preupload: decode end response")
	}
	if ended.FilePath == "" {
		return "", errors.New("preupload: end response missing file_path")
	}
	return ended.FilePath, nil
}

func filenameOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}
