package runs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingInstanceID = errors.New("room instance identifier is required")
	errInvalidRecord     = errors.New("run record is incomplete")
	noOpLogger           = zap.NewNop()
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "runs.service.new"
	opRecord     = "runs.record"
	opListRecent = "runs.list_recent"
	opPurge      = "runs.purge_instance"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

type IDProvider interface {
	NewID() (string, error)
}

// Service stores and lists execution audit records.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Record persists one run. A zero StartedAt is replaced by the service clock.
func (s *Service) Record(ctx context.Context, record RunRecord) (ExecutionRun, error) {
	roomID := strings.TrimSpace(record.RoomID)
	instanceID := strings.TrimSpace(record.RoomInstanceID)
	language := strings.TrimSpace(record.Language)
	if roomID == "" || instanceID == "" || language == "" || len(roomID) > maxIdentifierLength {
		s.logError(opRecord, "invalid_record", errInvalidRecord, zap.String("room_id", roomID))
		return ExecutionRun{}, newServiceError(opRecord, "invalid_record", errInvalidRecord)
	}

	runID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opRecord, "id_generation_failed", err, zap.String("room_id", roomID))
		return ExecutionRun{}, newServiceError(opRecord, "id_generation_failed", err)
	}

	startedAt := record.StartedAt
	if startedAt.IsZero() {
		startedAt = s.clock()
	}
	run := ExecutionRun{
		RunID:            runID,
		RoomID:           roomID,
		RoomInstanceID:   instanceID,
		ConnID:           record.ConnID,
		Username:         record.Username,
		Language:         language,
		Succeeded:        record.Succeeded,
		StatusCode:       record.StatusCode,
		DurationMillis:   record.Duration.Milliseconds(),
		StartedAtSeconds: startedAt.UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&run).Error; err != nil {
		s.logError(opRecord, "insert_failed", err, zap.String("room_id", roomID), zap.String("run_id", runID))
		return ExecutionRun{}, newServiceError(opRecord, "insert_failed", err)
	}
	return run, nil
}

// ListRecent returns the most recent runs of one room instance, newest first.
// A limit outside (0, 100] falls back to the default page size.
func (s *Service) ListRecent(ctx context.Context, roomInstanceID string, limit int) ([]ExecutionRun, error) {
	if strings.TrimSpace(roomInstanceID) == "" {
		s.logError(opListRecent, "missing_instance_id", errMissingInstanceID)
		return nil, newServiceError(opListRecent, "missing_instance_id", errMissingInstanceID)
	}
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}

	var runs []ExecutionRun
	if err := s.db.WithContext(ctx).
		Where("room_instance_id = ?", roomInstanceID).
		Order("started_at_s DESC").
		Order("run_id DESC").
		Limit(limit).
		Find(&runs).Error; err != nil {
		s.logError(opListRecent, "query_failed", err, zap.String("instance_id", roomInstanceID))
		return nil, newServiceError(opListRecent, "query_failed", err)
	}
	return runs, nil
}

// PurgeInstance deletes every run of a destroyed room instance and reports
// how many were removed.
func (s *Service) PurgeInstance(ctx context.Context, roomInstanceID string) (int64, error) {
	if strings.TrimSpace(roomInstanceID) == "" {
		s.logError(opPurge, "missing_instance_id", errMissingInstanceID)
		return 0, newServiceError(opPurge, "missing_instance_id", errMissingInstanceID)
	}
	result := s.db.WithContext(ctx).
		Where("room_instance_id = ?", roomInstanceID).
		Delete(&ExecutionRun{})
	if result.Error != nil {
		s.logError(opPurge, "delete_failed", result.Error, zap.String("instance_id", roomInstanceID))
		return 0, newServiceError(opPurge, "delete_failed", result.Error)
	}
	if result.RowsAffected > 0 {
		s.logger.Info("execution runs purged",
			zap.String("instance_id", roomInstanceID),
			zap.Int64("runs", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("runs service error", attrs...)
}
