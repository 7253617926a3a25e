package upload

import (
	"context"
	"os"
	"time"
)

// StartCleaner sweeps once immediately, then on every interval until ctx is done.
func (s *Store) StartCleaner(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTempFileCleanupInterval
	}
	if _, err := s.CleanupExpired(ctx); err != nil {
		s.log.WithError(err).Error("cleanup temp files error")
	}
	go s.cleanupLoop(ctx, interval)
}

func (s *Store) cleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.CleanupExpired(ctx); err != nil {
				s.log.WithError(err).Error("cleanup temp files error")
			}
		}
	}
}

// CleanupExpired removes files whose ledger entries outlived their TTL and
// returns how many entries were cleared.
func (s *Store) CleanupExpired(ctx context.Context) (int, error) {
	files, err := s.ledger.Expired(ctx, s.now())
	if err != nil {
		return 0, err
	}

	cleared := 0
	for _, f := range files {
		if err := os.Remove(f.StoredPath); err != nil && !os.IsNotExist(err) {
			s.log.WithError(err).WithField("path", f.StoredPath).Warn("remove temp file failed")
			continue
		}
		if err := s.ledger.Forget(ctx, f.ID); err != nil {
			s.log.WithError(err).WithField("file_id", f.ID).Warn("delete temp file record failed")
			continue
		}
		cleared++
	}
	if cleared > 0 {
		s.log.WithField("count", cleared).Info("removed expired temp files")
	}
	return cleared, nil
}
