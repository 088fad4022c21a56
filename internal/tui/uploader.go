package tui

import (
	"context"
	"fmt"
	"sync"

	"github.com/zarlcorp/zpass/internal/artifact"
	"github.com/zarlcorp/zpass/internal/passport"
	"github.com/zarlcorp/zpass/internal/settings"
)

// storageUploader builds the configured backend on each upload, so storage
// settings saved mid-session apply to the next attempt.
type storageUploader struct {
	mu    sync.Mutex
	cfg   settings.Storage
	build func(ctx context.Context, s settings.Storage) (settings.Uploader, error)
}

func (u *storageUploader) set(s settings.Storage) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.cfg = s
}

func (u *storageUploader) Upload(ctx context.Context, a artifact.Artifact) (passport.Locator, error) {
	u.mu.Lock()
	cfg := u.cfg
	build := u.build
	u.mu.Unlock()

	if !cfg.Configured() {
		return "", fmt.Errorf("upload: %w: storage not configured", passport.ErrStorageAuth)
	}
	if build == nil {
		build = func(ctx context.Context, s settings.Storage) (settings.Uploader, error) {
			return s.NewUploader(ctx)
		}
	}

	up, err := build(ctx, cfg)
	if err != nil {
		if passport.KindOf(err) != passport.KindStorage {
			return "", fmt.Errorf("upload: %w: %v", passport.ErrStorageUnavailable, err)
		}
		return "", fmt.Errorf("upload: %w", err)
	}
	return up.Upload(ctx, a)
}
