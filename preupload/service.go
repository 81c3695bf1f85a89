package preupload

import (
	"context"
	"sync"
	"time"

	"github.com/ncatbot/ncatbot-go/errors"
	"github.com/ncatbot/ncatbot-go/logger"
)

// Result is the outcome of resolving one attachment value to a
// gateway-sendable path.
type Result struct {
	Success      bool
	FilePath     string
	OriginalPath string
	Error        string
}

// Uploaded reports whether staging actually ran, as opposed to value
// already being a URL or unrecognized passthrough.
func (r Result) Uploaded() bool {
	return r.Success && r.FilePath != r.OriginalPath
}

// Service is the process-wide entry point for resolving message
// attachments (local paths, base64 blobs, remote URLs) to server-side
// paths, implementing service.Service for the manager.
type Service struct {
	sender    ActionSender
	chunkSize int
	retention time.Duration

	mu        sync.Mutex
	client    *StreamUploadClient
	processor *MessagePreUploadProcessor
}

// New constructs a Service bound to sender (typically a *gateway.Client).
// A nil sender is valid, but leaves the service unavailable: Load then
// wires no upload client.
func New(sender ActionSender, chunkSize int, retention time.Duration) *Service {
	return &Service{sender: sender, chunkSize: chunkSize, retention: retention}
}

// Load implements service.Service, wiring the internal stream client
// and message processor once a sender is available.
func (s *Service) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sender == nil {
		logger.Infow("preupload: no gateway sender configured, service will stay unavailable")
		return nil
	}
	s.client = NewStreamUploadClient(s.sender, s.chunkSize, s.retention)
	s.processor = NewMessagePreUploadProcessor(s)
	logger.Infow("preupload service loaded")
	return nil
}

// Close implements service.Service.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = nil
	s.processor = nil
	logger.Infow("preupload service closed")
	return nil
}

// Available reports whether the service can actually stage uploads.
func (s *Service) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil
}

// Preupload resolves value to a gateway-sendable path:
//   - a remote URL is returned unchanged
//   - a local file is streamed through the upload client
//   - a base64 data URI or raw base64 blob is decoded and uploaded under a
//     generated name derived from fileType
//   - anything else is returned unchanged, left to the caller
func (s *Service) Preupload(ctx context.Context, value, fileType string) (Result, error) {
	if value == "" {
		return Result{Success: false, Error: "empty file value"}, errors.New("preupload: empty file value")
	}

	if isRemoteURL(value) {
		return Result{Success: true, FilePath: value, OriginalPath: value}, nil
	}

	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return Result{Success: false, OriginalPath: value, Error: "preupload service unavailable"},
			errors.New("preupload: service unavailable")
	}

	if isLocalFile(value) {
		return s.uploadLocal(ctx, client, value)
	}

	if isBase64Data(value) {
		return s.uploadBase64(ctx, client, value, fileType)
	}

	return Result{Success: true, FilePath: value, OriginalPath: value}, nil
}

// PreuploadIfNeeded resolves value and returns just the final path,
// surfacing a failure as an error instead of a Result.
func (s *Service) PreuploadIfNeeded(ctx context.Context, value, fileType string) (string, error) {
	result, err := s.Preupload(ctx, value, fileType)
	if err != nil {
		return "", err
	}
	if !result.Success {
		return "", errors.Newf("preupload: failed: %s", result.Error)
	}
	return result.FilePath, nil
}

func (s *Service) uploadLocal(ctx context.Context, client *StreamUploadClient, value string) (Result, error) {
	localPath := getLocalPath(value)
	uploaded, err := client.UploadFile(ctx, localPath)
	if err != nil || !uploaded.Success {
		return Result{Success: false, OriginalPath: value, Error: uploaded.Error}, err
	}
	logger.Debugw("preupload: local file staged", "original", localPath, "path", uploaded.FilePath)
	return Result{Success: true, FilePath: uploaded.FilePath, OriginalPath: value}, nil
}

func (s *Service) uploadBase64(ctx context.Context, client *StreamUploadClient, value, fileType string) (Result, error) {
	data, err := extractBase64Data(value)
	if err != nil {
		return Result{Success: false, OriginalPath: value, Error: "base64 decode failed"}, errors.Wrap(err, "preupload: decode base64")
	}

	filename := generateFilenameFromType(fileType)
	uploaded, err := client.UploadBytes(ctx, data, filename)
	if err != nil || !uploaded.Success {
		return Result{Success: false, OriginalPath: value, Error: uploaded.Error}, err
	}
	logger.Debugw("preupload: base64 payload staged", "path", uploaded.FilePath)
	return Result{Success: true, FilePath: uploaded.FilePath, OriginalPath: value}, nil
}

// ProcessMessage resolves every uploadable segment in a single
// serialized message.
func (s *Service) ProcessMessage(ctx context.Context, data map[string]any) ProcessResult {
	s.mu.Lock()
	processor := s.processor
	s.mu.Unlock()
	if processor == nil {
		return ProcessResult{Success: false, Errors: []string{"preupload service unavailable"}}
	}
	return processor.Process(ctx, data)
}

// ProcessMessageArray resolves every uploadable segment across a whole
// message array.
func (s *Service) ProcessMessageArray(ctx context.Context, messages []map[string]any) ProcessResult {
	s.mu.Lock()
	processor := s.processor
	s.mu.Unlock()
	if processor == nil {
		return ProcessResult{Success: false, Errors: []string{"preupload service unavailable"}}
	}
	return processor.ProcessMessageArray(ctx, messages)
}
