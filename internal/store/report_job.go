package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cortap/cortap-rpt/internal/store/model"
	"gorm.io/gorm"
)

const (
	AnnotationCallbackStatus   = "callback_status"
	AnnotationCallbackAttempts = "callback_attempts"
	AnnotationCallbackError    = "callback_error"
)

var annotations = map[string]struct{}{
	AnnotationCallbackStatus:   {},
	AnnotationCallbackAttempts: {},
	AnnotationCallbackError:    {},
}

type Job interface {
	Create(ctx context.Context, job model.ReportJob) (*model.ReportJob, error)
	Get(ctx context.Context, id string) (*model.ReportJob, error)
	UpdateProgress(ctx context.Context, id string, progress string) error
	CompareAndSetTerminal(ctx context.Context, id string, expected model.JobStatus, state model.TerminalState) (bool, error)
	Annotate(ctx context.Context, id string, field string, value any) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type JobStore struct {
	db  *gorm.DB
	now func() time.Time
}

// Make sure we conform to Job interface
var _ Job = (*JobStore)(nil)

func NewJobStore(db *gorm.DB) Job {
	return &JobStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *JobStore) Create(ctx context.Context, job model.ReportJob) (*model.ReportJob, error) {
	if job.Status == "" {
		job.Status = model.JobStatusProcessing
	}
	if result := s.getDB(ctx).Create(&job); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("creating report job: %w", result.Error)
	}
	return &job, nil
}

// Get returns ErrRecordNotFound for unknown and expired jobs alike.
func (s *JobStore) Get(ctx context.Context, id string) (*model.ReportJob, error) {
	var job model.ReportJob
	result := s.getDB(ctx).Where("id = ? AND expires_at > ?", id, s.now()).First(&job)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying report job: %w", result.Error)
	}
	return &job, nil
}

// UpdateProgress records an advisory marker. It is silently ignored once the
// job is terminal.
func (s *JobStore) UpdateProgress(ctx context.Context, id string, progress string) error {
	result := s.getDB(ctx).Model(&model.ReportJob{}).
		Where("id = ? AND status = ?", id, model.JobStatusProcessing).
		Updates(map[string]any{"progress": progress, "updated_at": s.now()})
	if result.Error != nil {
		return fmt.Errorf("updating report job progress: %w", result.Error)
	}
	return nil
}

// CompareAndSetTerminal moves the job from expected to the terminal state in a
// single conditional update. It reports false when another writer got there
// first or the job does not exist.
func (s *JobStore) CompareAndSetTerminal(ctx context.Context, id string, expected model.JobStatus, state model.TerminalState) (bool, error) {
	if !state.Status.IsTerminal() {
		return false, fmt.Errorf("status %q is not terminal", state.Status)
	}

	updates := map[string]any{
		"status":       state.Status,
		"completed_at": state.CompletedAt,
		"updated_at":   s.now(),
	}
	if state.Result != nil {
		updates["result"] = model.MakeJSONField(*state.Result)
	}
	if state.Error != nil {
		updates["error"] = model.MakeJSONField(*state.Error)
	}

	result := s.getDB(ctx).Model(&model.ReportJob{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("finalizing report job: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Annotate writes one of the callback delivery fields. The job status is never
// part of an annotation.
func (s *JobStore) Annotate(ctx context.Context, id string, field string, value any) error {
	if _, ok := annotations[field]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAnnotation, field)
	}
	result := s.getDB(ctx).Model(&model.ReportJob{}).
		Where("id = ?", id).
		Updates(map[string]any{field: value, "updated_at": s.now()})
	if result.Error != nil {
		return fmt.Errorf("annotating report job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *JobStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.getDB(ctx).Where("expires_at <= ?", now).Delete(&model.ReportJob{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting expired report jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *JobStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}
