// Package artifacts persists the diagnostic files a run leaves behind.
package artifacts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

const timestampLayout = "20060102_150405"

// maxSuffix bounds the collision search for a single stage and second.
const maxSuffix = 1000

// ScreenshotStore writes PNG screenshots named <stage>_<YYYYMMDD_HHMMSS>.png.
// When that name is taken it appends _1, _2, ... so an earlier file is never overwritten.
type ScreenshotStore struct {
	dir      string
	logger   *zap.Logger
	now      func() time.Time
	openFile func(name string, flag int, perm os.FileMode) (*os.File, error)
}

// NewScreenshotStore returns a store rooted at dir. The directory is not
// created until EnsureDir or Save is called.
func NewScreenshotStore(dir string, logger *zap.Logger) *ScreenshotStore {
	return &ScreenshotStore{
		dir:      dir,
		logger:   logger.Named("screenshots"),
		now:      time.Now,
		openFile: os.OpenFile,
	}
}

// Dir returns the directory screenshots are written to.
func (s *ScreenshotStore) Dir() string {
	return s.dir
}

// EnsureDir creates the screenshot directory if it does not exist.
func (s *ScreenshotStore) EnsureDir() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create screenshot directory %q: %w", s.dir, err)
	}
	return nil
}

// Save writes png under a name derived from stage and the current time and
// returns the path written.
func (s *ScreenshotStore) Save(stage string, png []byte) (string, error) {
	if len(png) == 0 {
		return "", fmt.Errorf("refusing to write empty screenshot for stage %q", stage)
	}
	// The directory may have been removed since start up.
	if err := s.EnsureDir(); err != nil {
		return "", err
	}

	base := fmt.Sprintf("%s_%s", stage, s.now().Format(timestampLayout))
	for i := 0; i < maxSuffix; i++ {
		name := base + ".png"
		if i > 0 {
			name = fmt.Sprintf("%s_%d.png", base, i)
		}
		path := filepath.Join(s.dir, name)

		f, err := s.openFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create screenshot %q: %w", path, err)
		}

		// Never leave a truncated PNG behind.
		if _, err := f.Write(png); err != nil {
			f.Close()
			s.discard(path)
			return "", fmt.Errorf("failed to write screenshot %q: %w", path, err)
		}
		if err := f.Close(); err != nil {
			s.discard(path)
			return "", fmt.Errorf("failed to close screenshot %q: %w", path, err)
		}

		s.logger.Info("Screenshot saved.", zap.String("stage", stage), zap.String("path", path))
		return path, nil
	}
	return "", fmt.Errorf("no free screenshot name for %q after %d attempts", base, maxSuffix)
}

func (s *ScreenshotStore) discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("Failed to remove partial screenshot.", zap.String("path", path), zap.Error(err))
	}
}
