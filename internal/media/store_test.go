package media

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nviv/nviv/internal/log"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := range 4 {
		for y := range 4 {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 60), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestStore(t *testing.T, retention time.Duration) *Store {
	t.Helper()
	s, err := New(Config{
		Dir:       filepath.Join(t.TempDir(), "generated_images"),
		BaseURL:   "https://example.com",
		Retention: retention,
		Logger:    log.NewNop(),
	})
	require.NoError(t, err)
	return s
}

func TestSaveJPEGTranscodes(t *testing.T) {
	s := newTestStore(t, 0)

	filename, err := s.SaveJPEG(testPNG(t))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(filename, ".jpg"))

	path, err := s.Path(filename)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	_, format, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestSaveDataURI(t *testing.T) {
	s := newTestStore(t, 0)

	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(testPNG(t))
	url, err := s.SaveDataURI(uri)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "https://example.com/static/generated_images/"), url)
	assert.True(t, strings.HasSuffix(url, ".jpg"))
}

func TestSaveDataURIPassesThroughPlainURLs(t *testing.T) {
	s := newTestStore(t, 0)

	url, err := s.SaveDataURI("https://cdn.example.com/image.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/image.png", url)
}

func TestSaveDataURIRejectsMalformed(t *testing.T) {
	s := newTestStore(t, 0)

	_, err := s.SaveDataURI("data:image/png;base64")
	assert.Error(t, err)

	_, err = s.SaveDataURI("data:image/png;base64,!!!not-base64!!!")
	assert.Error(t, err)
}

func TestPathRejectsTraversal(t *testing.T) {
	s := newTestStore(t, 0)

	for _, name := range []string{"", "../secret.txt", "a/b.jpg", "missing.jpg"} {
		_, err := s.Path(name)
		assert.ErrorIs(t, err, ErrNotFound, name)
	}
}

func TestCleanupExpired(t *testing.T) {
	s := newTestStore(t, time.Hour)

	oldFile, err := s.SaveJPEG(testPNG(t))
	require.NoError(t, err)
	freshFile, err := s.SaveJPEG(testPNG(t))
	require.NoError(t, err)

	oldPath, err := s.Path(oldFile)
	require.NoError(t, err)
	stale := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(oldPath, stale, stale))

	require.NoError(t, s.CleanupExpired())

	_, err = s.Path(oldFile)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Path(freshFile)
	assert.NoError(t, err)
}

func TestCleanupLifecycle(t *testing.T) {
	s := newTestStore(t, time.Hour)

	s.StartCleanup()
	s.StartCleanup() // second start is a no-op
	s.StopCleanup()
	s.StopCleanup() // safe after stop
}
