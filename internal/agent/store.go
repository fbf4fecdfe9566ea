// internal/agent/store.go
package agent

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"droidpilot/internal/config"
)

// screenshotStore persists per-step screenshots when retention is "keep".
// With "discard" retention every call is a no-op and nothing touches disk.
type screenshotStore struct {
	dir     string
	keep    bool
	logger  *zap.Logger
	created bool
}

func newScreenshotStore(cfg config.ScreenshotConfig, logger *zap.Logger) *screenshotStore {
	return &screenshotStore{
		dir:    cfg.Dir,
		keep:   cfg.Retention == "keep",
		logger: logger.Named("screenshots"),
	}
}

// save writes one step's screenshot. Failures are logged and swallowed; a
// full disk must not kill the episode.
func (s *screenshotStore) save(step int, png []byte) {
	if !s.keep || len(png) == 0 {
		return
	}
	if !s.created {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			s.logger.Warn("Cannot create screenshot directory", zap.String("dir", s.dir), zap.Error(err))
			return
		}
		s.created = true
	}

	path := filepath.Join(s.dir, fmt.Sprintf("step_%03d.png", step))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		s.logger.Warn("Cannot write screenshot", zap.String("path", path), zap.Error(err))
		return
	}
	s.logger.Debug("Screenshot saved", zap.String("path", path))
}

// finish logs where the episode's screenshots ended up.
func (s *screenshotStore) finish(status EpisodeStatus) {
	if s.keep && s.created {
		s.logger.Info("Screenshots retained",
			zap.String("dir", s.dir),
			zap.String("status", string(status)),
		)
	}
}
