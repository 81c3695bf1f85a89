package preupload

import (
	"encoding/base64"
	"os"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// extensionByType maps a message segment type to the file extension
// generated filenames get when no other hint is available.
var extensionByType = map[string]string{
	"image":  ".png",
	"record": ".silk",
	"video":  ".mp4",
	"file":   ".bin",
}

// base64Pattern matches the body of a data URI or a bare base64 blob:
// alphabet plus padding, no path separators.
var base64Pattern = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,2}$`)

// minBase64Len guards against treating short, plausible-looking
// strings (e.g. a 4-character filename) as base64 payloads.
const minBase64Len = 32

// isRemoteURL reports whether value is already a gateway-resolvable
// remote location that needs no pre-upload.
func isRemoteURL(value string) bool {
	return strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://")
}

// isLocalFile reports whether value names a regular file on disk,
// accepting an optional file:// scheme.
func isLocalFile(value string) bool {
	path := strings.TrimPrefix(value, "file://")
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// getLocalPath strips a file:// scheme if present, returning the path
// isLocalFile already validated.
func getLocalPath(value string) string {
	return strings.TrimPrefix(value, "file://")
}

// isBase64Data reports whether value looks like a base64 data URI or a
// bare base64 blob, as opposed to a path or URL.
func isBase64Data(value string) bool {
	if strings.HasPrefix(value, "data:") && strings.Contains(value, ";base64,") {
		return true
	}
	if len(value) < minBase64Len {
		return false
	}
	return base64Pattern.MatchString(value)
}

// extractBase64Data decodes a data URI or bare base64 string into raw
// bytes.
func extractBase64Data(value string) ([]byte, error) {
	body := value
	if idx := strings.Index(value, ";base64,"); idx != -1 {
		body = value[idx+len(";base64,"):]
	}
	return base64.StdEncoding.DecodeString(body)
}

// generateFilenameFromType produces a collision-free filename for
// decoded base64 payloads, using fileType to pick a plausible
// extension.
func generateFilenameFromType(fileType string) string {
	ext, ok := extensionByType[fileType]
	if !ok {
		ext = ".bin"
	}
	return uuid.NewString() + ext
}
