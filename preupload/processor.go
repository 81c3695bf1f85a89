package preupload

import (
	"context"

	"github.com/ncatbot/ncatbot-go/errors"
)

// Uploader is the narrow surface MessagePreUploadProcessor needs from
// Service, so it can be tested against a fake.
type Uploader interface {
	Preupload(ctx context.Context, value, fileType string) (Result, error)
}

// ProcessResult summarizes a message or message-array walk: success is
// false if any segment failed to resolve, with one entry in Errors per
// failure.
type ProcessResult struct {
	Success bool
	Errors  []string
}

// MessagePreUploadProcessor walks a serialized OneBot-style message,
// resolving every image/record/video/file segment's "file" field in
// place.
type MessagePreUploadProcessor struct {
	uploader Uploader
}

// NewMessagePreUploadProcessor constructs a processor bound to uploader.
func NewMessagePreUploadProcessor(uploader Uploader) *MessagePreUploadProcessor {
	return &MessagePreUploadProcessor{uploader: uploader}
}

// Process resolves the single message segment in data, if it is an
// uploadable type.
func (p *MessagePreUploadProcessor) Process(ctx context.Context, data map[string]any) ProcessResult {
	if err := p.processSegment(ctx, data); err != nil {
		return ProcessResult{Success: false, Errors: []string{err.Error()}}
	}
	return ProcessResult{Success: true}
}

// ProcessMessageArray resolves every uploadable segment across
// messages, continuing past individual failures and reporting all of
// them.
func (p *MessagePreUploadProcessor) ProcessMessageArray(ctx context.Context, messages []map[string]any) ProcessResult {
	var errs []string
	for i, segment := range messages {
		if err := p.processSegment(ctx, segment); err != nil {
			errs = append(errs, errors.Wrapf(err, "segment %d", i).Error())
		}
	}
	return ProcessResult{Success: len(errs) == 0, Errors: errs}
}

func (p *MessagePreUploadProcessor) processSegment(ctx context.Context, segment map[string]any) error {
	segType, _ := segment["type"].(string)
	if !uploadableSegmentTypes[segType] {
		return nil
	}

	fields, ok := segment["data"].(map[string]any)
	if !ok {
		return nil
	}

	file, ok := fields["file"].(string)
	if !ok || file == "" {
		return nil
	}

	result, err := p.uploader.Preupload(ctx, file, segType)
	if err != nil {
		return err
	}
	if !result.Success {
		return errors.Newf("preupload failed for %s: %s", file, result.Error)
	}

	fields["file"] = result.FilePath
	return nil
}
