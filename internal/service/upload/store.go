package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sadam-codes/smart-pdf-summarizer/internal/models"
)

const (
	DefaultTempFileTTL             = 15 * time.Minute
	DefaultTempFileCleanupInterval = 5 * time.Minute
)

// ReleaseFunc removes a temp file and its ledger entry. Calling it more than
// once is a no-op.
type ReleaseFunc func()

// Store writes uploads to a scratch directory and hands back a release func.
type Store struct {
	dir    string
	ttl    time.Duration
	ledger Ledger
	log    logrus.FieldLogger
	now    func() time.Time
}

// NewStore builds a Store rooted at dir. A nil ledger disables recording.
func NewStore(dir string, ttl time.Duration, ledger Ledger, log logrus.FieldLogger) *Store {
	if ttl <= 0 {
		ttl = DefaultTempFileTTL
	}
	if ledger == nil {
		ledger = NopLedger{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{dir: dir, ttl: ttl, ledger: ledger, log: log, now: time.Now}
}

// Dir returns the scratch directory.
func (s *Store) Dir() string { return s.dir }

// Acquire copies r into a new temp file. On success the caller must defer the
// returned release; on failure nothing is left on disk.
func (s *Store) Acquire(ctx context.Context, fileName, mimeType string, r io.Reader) (*models.TempFile, ReleaseFunc, error) {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("create upload dir: %w", err)
	}
	id := uuid.NewString()
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		ext = ".pdf"
	}
	out, err := os.CreateTemp(s.dir, "upload-"+id+"-*"+ext)
	if err != nil {
		return nil, nil, fmt.Errorf("create temp file: %w", err)
	}
	path := out.Name()

	size, copyErr := io.Copy(out, r)
	closeErr := out.Close()
	if copyErr != nil || closeErr != nil {
		s.remove(path)
		return nil, nil, fmt.Errorf("write temp file: %w", errors.Join(copyErr, closeErr))
	}

	now := s.now().UTC()
	tf := &models.TempFile{
		ID:         id,
		FileName:   filepath.Base(fileName),
		StoredPath: path,
		MimeType:   mimeType,
		Size:       size,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.ttl),
	}
	if err := s.ledger.Record(ctx, tf); err != nil {
		// the file still gets removed by release, the ledger only guards crashes
		s.log.WithError(err).WithField("file_id", id).Warn("record temp file failed")
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			s.remove(path)
			if err := s.ledger.Forget(context.Background(), id); err != nil {
				s.log.WithError(err).WithField("file_id", id).Warn("forget temp file failed")
			}
		})
	}
	return tf, release, nil
}

func (s *Store) remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.log.WithError(err).WithField("path", path).Error("remove temp file failed")
	}
}
