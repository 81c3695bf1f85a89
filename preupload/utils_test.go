package preupload

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRemoteURLAcceptsHTTPAndHTTPS(t *testing.T) {
	assert.True(t, isRemoteURL("http://example.com/a.png"))
	assert.True(t, isRemoteURL("https://example.com/a.png"))
	assert.False(t, isRemoteURL("/tmp/a.png"))
}

func TestIsLocalFileChecksDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.bin")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	assert.True(t, isLocalFile(path))
	assert.True(t, isLocalFile("file://"+path))
	assert.False(t, isLocalFile(filepath.Join(t.TempDir(), "missing.bin")))
}

func TestIsBase64DataDetectsDataURIAndRawBlob(t *testing.T) {
	raw := base64.StdEncoding.EncodeToString([]byte("a reasonably long payload for testing"))
	assert.True(t, isBase64Data("data:image/png;base64,"+raw))
	assert.True(t, isBase64Data(raw))
	assert.False(t, isBase64Data("short"))
	assert.False(t, isBase64Data("/tmp/not/base64/path.png"))
}

func TestExtractBase64DataDecodesDataURIAndRawBlob(t *testing.T) {
	want := []byte("hello world")
	encoded := base64.StdEncoding.EncodeToString(want)

	got, err := extractBase64Data("data:image/png;base64," + encoded)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = extractBase64Data(encoded)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestGenerateFilenameFromTypePicksExtension(t *testing.T) {
	assert.Contains(t, generateFilenameFromType("image"), ".png")
	assert.Contains(t, generateFilenameFromType("record"), ".silk")
	assert.Contains(t, generateFilenameFromType("unknown"), ".bin")
}
