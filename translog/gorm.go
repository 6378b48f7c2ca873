package translog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MustfainTariq/Jama-Translator/retry"
)

type transcriptRow struct {
	SessionID  string    `gorm:"column:session_id;primaryKey;size:64"`
	Sequence   int64     `gorm:"column:sequence;primaryKey"`
	Language   string    `gorm:"column:language;primaryKey;size:16"`
	SourceText string    `gorm:"column:source_text"`
	Text       string    `gorm:"column:text"`
	Skipped    bool      `gorm:"column:skipped"`
	Timestamp  time.Time `gorm:"column:timestamp"`
}

func (transcriptRow) TableName() string { return "transcripts" }

type lifecycleRow struct {
	ID        uint      `gorm:"primaryKey"`
	SessionID string    `gorm:"column:session_id;index;size:64"`
	State     string    `gorm:"column:state;size:16"`
	Timestamp time.Time `gorm:"column:timestamp"`
}

func (lifecycleRow) TableName() string { return "session_events" }

// GormStore persists records to postgres through gorm.
type GormStore struct {
	db *gorm.DB
}

// Open connects to postgres, retrying while the database comes up.
func Open(ctx context.Context, dsn string, logger *zap.SugaredLogger) (*GormStore, error) {
	policy := retry.Policy{MaxAttempts: 10, BaseDelay: 2 * time.Second, MaxDelay: 10 * time.Second}

	var db *gorm.DB
	err := policy.Do(ctx, func(context.Context) error {
		conn, err := gorm.Open(postgres.Open(dsn))
		if err != nil {
			logger.Warnw("database connection failed, retrying", "error", err)
			return err
		}
		db = conn
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	return &GormStore{db: db}, nil
}

// NewGormStore wraps an existing connection, used by tests.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate ensures the transcript and lifecycle tables exist.
func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&transcriptRow{}, &lifecycleRow{}); err != nil {
		return fmt.Errorf("migrate translog schema: %w", err)
	}
	return nil
}

// UpsertTranscript inserts the record or updates the existing row for its
// (session, sequence, language) key.
func (s *GormStore) UpsertTranscript(ctx context.Context, rec TranscriptRecord) error {
	row := transcriptRow{
		SessionID:  rec.SessionID,
		Sequence:   rec.Sequence,
		Language:   rec.Language,
		SourceText: rec.SourceText,
		Text:       rec.Text,
		Skipped:    rec.Skipped,
		Timestamp:  rec.Timestamp,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "session_id"}, {Name: "sequence"}, {Name: "language"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"source_text", "text", "skipped", "timestamp"}),
	}).Create(&row).Error
	if err != nil {
		return classifyStorageError(fmt.Errorf("upsert transcript: %w", err))
	}
	return nil
}

// RecordLifecycle appends a session state transition row.
func (s *GormStore) RecordLifecycle(ctx context.Context, rec LifecycleRecord) error {
	row := lifecycleRow{
		SessionID: rec.SessionID,
		State:     rec.State,
		Timestamp: rec.Timestamp,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return classifyStorageError(fmt.Errorf("record lifecycle event: %w", err))
	}
	return nil
}

// TranscriptCount returns the number of stored records for a session.
func (s *GormStore) TranscriptCount(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&transcriptRow{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	if err != nil {
		return 0, classifyStorageError(fmt.Errorf("count transcripts: %w", err))
	}
	return count, nil
}

// classifyStorageError separates outages worth retrying from errors that will
// never succeed. Postgres error classes 08 (connection), 53 (resources) and
// 57 (operator intervention) are transient; other classified errors are
// permanent.
func classifyStorageError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "08", "53", "57":
			return err
		}
		return retry.Permanent(err)
	}
	// Unclassified errors are usually the driver failing to reach the
	// server; treat them as transient.
	return err
}
