// Package preupload resolves message attachments (local paths, base64
// blobs, remote URLs) to server-side paths the gateway can send,
// staging local content through a chunked stream-upload sub-protocol.
package preupload

import "time"

// Wire actions of the stream-upload sub-protocol.
const (
	ActionStreamUploadBegin = "stream_upload_begin"
	ActionStreamUploadChunk = "stream_upload_chunk"
	ActionStreamUploadEnd   = "stream_upload_end"
)

// DefaultChunkSize sits inside the 64KiB-1MiB band: large enough to
// keep the begin/chunk/end exchange short, small enough that one
// dropped frame doesn't have to be retried as a multi-megabyte blob.
const DefaultChunkSize = 256 * 1024

// DefaultFileRetention is how long the gateway guarantees a staged
// upload stays resolvable before it may be garbage collected.
const DefaultFileRetention = 5 * time.Minute

// DefaultActionTimeout bounds each begin/chunk/end round trip.
const DefaultActionTimeout = 30 * time.Second

// uploadableSegmentTypes are the OneBot message segment types whose
// "file" field may need pre-upload resolution.
var uploadableSegmentTypes = map[string]bool{
	"image":  true,
	"record": true,
	"video":  true,
	"file":   true,
}
