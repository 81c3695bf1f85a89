package preupload

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncatbot/ncatbot-go/gateway"
)

// fakeSender is a minimal ActionSender that drives a fake server
// through the begin/chunk/end sequence, recording every chunk it sees.
type fakeSender struct {
	streamID    string
	chunks      [][]byte
	failOnChunk int // -1 disables
	finalPath   string
}

func newFakeSender() *fakeSender {
	return &fakeSender{streamID: "stream-1", failOnChunk: -1, finalPath: "/staged/abc.bin"}
}

func (f *fakeSender) Send(ctx context.Context, action string, params map[string]any, timeout time.Duration) (*gateway.InboundFrame, error) {
	switch action {
	case ActionStreamUploadBegin:
		data, _ := json.Marshal(beginResponse{StreamID: f.streamID})
		return &gateway.InboundFrame{Status: "ok", Data: data}, nil
	case ActionStreamUploadChunk:
		seq := int(params["seq"].(int))
		if f.failOnChunk >= 0 && seq == f.failOnChunk {
			return &gateway.InboundFrame{Status: "failed", RetCode: 1, Message: "chunk rejected"}, assertErr("chunk failed")
		}
		encoded := params["data"].(string)
		f.chunks = append(f.chunks, []byte(encoded))
		return &gateway.InboundFrame{Status: "ok"}, nil
	case ActionStreamUploadEnd:
		data, _ := json.Marshal(endResponse{FilePath: f.finalPath})
		return &gateway.InboundFrame{Status: "ok", Data: data}, nil
	default:
		return nil, assertErr("unknown action " + action)
	}
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func TestUploadBytesSplitsIntoChunksAndResolvesPath(t *testing.T) {
	sender := newFakeSender()
	client := NewStreamUploadClient(sender, 4, time.Minute)

	result, err := client.UploadBytes(context.Background(), []byte("0123456789"), "a.bin")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, sender.finalPath, result.FilePath)
	assert.Len(t, sender.chunks, 3) // 4 + 4 + 2 bytes
}

func TestUploadBytesAbortsOnChunkFailure(t *testing.T) {
	sender := newFakeSender()
	sender.failOnChunk = 1
	client := NewStreamUploadClient(sender, 4, time.Minute)

	result, err := client.UploadBytes(context.Background(), []byte("0123456789"), "a.bin")
	require.Error(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestUploadFileReadsFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "source.bin")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))

	sender := newFakeSender()
	client := NewStreamUploadClient(sender, DefaultChunkSize, 0)

	result, err := client.UploadFile(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, sender.finalPath, result.FilePath)
}
