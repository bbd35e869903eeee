// Package media stores generated images on disk and serves them by public
// URL. Images are transcoded to JPEG for WhatsApp/Twilio compatibility and
// reaped on a schedule once older than the configured retention.
package media

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "image/gif"
	_ "image/png"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/nviv/nviv/internal/log"
)

// jpegQuality balances size against quality for chat channels.
const jpegQuality = 85

// urlPrefix is the public route images are served under.
const urlPrefix = "/static/generated_images/"

// ErrNotFound indicates the requested image does not exist.
var ErrNotFound = errors.New("media: image not found")

// Config holds image store parameters.
type Config struct {
	// Dir is the on-disk image directory, created if absent.
	Dir string

	// BaseURL prefixes public image URLs; empty yields relative URLs.
	BaseURL string

	// Retention is how long images are kept; <= 0 disables cleanup.
	Retention time.Duration

	Logger log.Logger
}

// Store is the on-disk image store.
type Store struct {
	dir       string
	baseURL   string
	retention time.Duration
	logger    log.Logger
	cron      *cron.Cron
}

// New creates the store and its directory.
func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.New("media: image directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating image directory: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		dir:       cfg.Dir,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		retention: cfg.Retention,
		logger:    logger,
	}, nil
}

// SaveJPEG transcodes raw image bytes (PNG, GIF, or JPEG) to a JPEG file
// and returns its filename.
func (s *Store) SaveJPEG(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decoding image: %w", err)
	}

	filename := uuid.NewString() + ".jpg"
	f, err := os.Create(filepath.Join(s.dir, filename))
	if err != nil {
		return "", fmt.Errorf("creating image file: %w", err)
	}
	defer f.Close()

	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", fmt.Errorf("encoding image: %w", err)
	}

	s.logger.Info("image saved", "filename", filename)
	return filename, nil
}

// SaveDataURI stores a base64 data URI as a JPEG and returns its public
// URL. Values that are not data URIs pass through unchanged, so already
// public URLs survive.
func (s *Store) SaveDataURI(dataURI string) (string, error) {
	if !strings.HasPrefix(dataURI, "data:image") {
		return dataURI, nil
	}
	_, encoded, found := strings.Cut(dataURI, ",")
	if !found {
		return "", errors.New("media: malformed data URI")
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding data URI: %w", err)
	}
	filename, err := s.SaveJPEG(raw)
	if err != nil {
		return "", err
	}
	return s.PublicURL(filename), nil
}

// PublicURL returns the serving URL for a stored filename.
func (s *Store) PublicURL(filename string) string {
	return s.baseURL + urlPrefix + filename
}

// Path resolves a filename to its on-disk path, rejecting traversal.
func (s *Store) Path(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) {
		return "", ErrNotFound
	}
	path := filepath.Join(s.dir, filename)
	if _, err := os.Stat(path); err != nil {
		return "", ErrNotFound
	}
	return path, nil
}

// StartCleanup schedules an hourly reaper for expired images. No-op when
// retention is disabled.
func (s *Store) StartCleanup() {
	if s.retention <= 0 || s.cron != nil {
		return
	}
	s.cron = cron.New()
	_, _ = s.cron.AddFunc("@hourly", func() {
		if err := s.CleanupExpired(); err != nil {
			s.logger.Error("image cleanup failed", "error", err)
		}
	})
	s.cron.Start()
	s.logger.Info("image cleanup scheduled", "retention", s.retention)
}

// StopCleanup halts the reaper and waits for a running pass to finish.
func (s *Store) StopCleanup() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
}

// CleanupExpired removes images older than the retention window.
func (s *Store) CleanupExpired() error {
	if s.retention <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-s.retention)

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("reading image directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
				s.logger.Warn("removing expired image", "filename", entry.Name(), "error", err)
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("expired images removed", "count", removed)
	}
	return nil
}
