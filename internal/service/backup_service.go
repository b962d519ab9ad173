package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mauriciomholiveira/cobranca-api/internal/models"
	appErrors "github.com/mauriciomholiveira/cobranca-api/pkg/errors"
	"github.com/mauriciomholiveira/cobranca-api/pkg/storage"
)

type backupRepository interface {
	Snapshot(ctx context.Context) (*models.BackupSnapshot, error)
}

// BackupService writes full JSON snapshots of the billing tables to local
// storage and issues signed download tokens for them.
type BackupService struct {
	repo    backupRepository
	storage *storage.LocalStorage
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	now     func() time.Time
}

// NewBackupService constructs the backup service.
func NewBackupService(repo backupRepository, store *storage.LocalStorage, signer *storage.SignedURLSigner, logger *zap.Logger) *BackupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BackupService{repo: repo, storage: store, signer: signer, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Create snapshots every table into one JSON file and returns its metadata
// with a signed download token.
func (s *BackupService) Create(ctx context.Context) (*models.BackupResult, error) {
	snapshot, err := s.repo.Snapshot(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to snapshot tables")
	}
	now := s.now()
	snapshot.GeneratedAt = now

	payload, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode snapshot")
	}

	fileName := fmt.Sprintf("backup_%s.json", now.Format("20060102_150405"))
	if _, err := s.storage.Save(fileName, payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store snapshot")
	}

	size, err := s.storage.Stat(fileName)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat snapshot")
	}

	token, expiresAt, err := s.signer.Generate(fileName)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download token")
	}

	s.logger.Info("backup created", zap.String("file", fileName), zap.Int64("size_bytes", size))
	return &models.BackupResult{
		FileName:      fileName,
		SizeBytes:     size,
		DownloadToken: token,
		ExpiresAt:     expiresAt,
		CreatedAt:     now,
	}, nil
}

// Resolve validates a signed token and returns the absolute file path to
// serve. Expired or tampered tokens are rejected.
func (s *BackupService) Resolve(token string) (string, error) {
	fileName, _, err := s.signer.Parse(token)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	if _, err := s.storage.Stat(fileName); err != nil {
		return "", appErrors.Clone(appErrors.ErrNotFound, "backup file not found")
	}
	return s.storage.Path(fileName), nil
}

// Cleanup removes snapshots older than the retention window.
func (s *BackupService) Cleanup(retention time.Duration) (int, error) {
	removed, err := s.storage.CleanupOlderThan(retention)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clean up backups")
	}
	if len(removed) > 0 {
		s.logger.Info("removed expired backups", zap.Int("count", len(removed)))
	}
	return len(removed), nil
}
