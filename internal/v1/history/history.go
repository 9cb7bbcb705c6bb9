// Package history persists a best-effort game record to Postgres. Every
// write is fire-and-forget: a down database never fails a room command.
// The service is disabled (nil) when no DATABASE_URL is configured.
package history

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/waustin14/StoryFill/internal/v1/logging"
)

// RoomSession is one room's lifetime record.
type RoomSession struct {
	ID          uint   `gorm:"primaryKey"`
	RoomID      string `gorm:"uniqueIndex;size:64"`
	RoomCode    string `gorm:"size:8;index"`
	TemplateID  string `gorm:"size:64"`
	PlayerCount int
	RoundCount  int
	CreatedAt   time.Time
	ExpiredAt   *time.Time
}

// Round is one revealed story.
type Round struct {
	ID         uint   `gorm:"primaryKey"`
	RoomID     string `gorm:"size:64;index"`
	RoundID    string `gorm:"uniqueIndex;size:64"`
	RoundIndex int
	Story      string `gorm:"type:text"`
	RevealedAt time.Time
}

// ShareRecord is a minted share token, kept for auditing.
type ShareRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Token     string `gorm:"uniqueIndex;size:64"`
	RoomID    string `gorm:"size:64;index"`
	RoundID   string `gorm:"size:64"`
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Service wraps the database handle. All methods are nil-receiver safe.
type Service struct {
	db *gorm.DB
}

// Open connects and migrates. Returns an error only for a malformed DSN;
// the caller decides whether history is mandatory.
func Open(dsn string) (*Service, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&RoomSession{}, &Round{}, &ShareRecord{}); err != nil {
		return nil, err
	}
	logging.Info(context.Background(), "history persistence enabled")
	return &Service{db: db}, nil
}

// RecordRoomCreated inserts the session row.
func (s *Service) RecordRoomCreated(ctx context.Context, roomID, roomCode, templateID string, createdAt time.Time) {
	if s == nil || s.db == nil {
		return
	}
	go func() {
		err := s.db.WithContext(context.WithoutCancel(ctx)).Create(&RoomSession{
			RoomID:     roomID,
			RoomCode:   roomCode,
			TemplateID: templateID,
			CreatedAt:  createdAt,
		}).Error
		if err != nil {
			logging.Warn(ctx, "history write failed", zap.String("table", "room_sessions"), zap.Error(err))
		}
	}()
}

// RecordReveal stores the revealed story and refreshes session counters.
func (s *Service) RecordReveal(ctx context.Context, roomID, roundID string, roundIndex, playerCount int, story string, revealedAt time.Time) {
	if s == nil || s.db == nil {
		return
	}
	go func() {
		dbctx := context.WithoutCancel(ctx)
		err := s.db.WithContext(dbctx).Create(&Round{
			RoomID:     roomID,
			RoundID:    roundID,
			RoundIndex: roundIndex,
			Story:      story,
			RevealedAt: revealedAt,
		}).Error
		if err != nil {
			logging.Warn(ctx, "history write failed", zap.String("table", "rounds"), zap.Error(err))
			return
		}
		s.db.WithContext(dbctx).Model(&RoomSession{}).
			Where("room_id = ?", roomID).
			Updates(map[string]any{
				"round_count":  roundIndex + 1,
				"player_count": playerCount,
			})
	}()
}

// RecordShare stores a minted share token.
func (s *Service) RecordShare(ctx context.Context, token, roomID, roundID string, createdAt, expiresAt time.Time) {
	if s == nil || s.db == nil {
		return
	}
	go func() {
		err := s.db.WithContext(context.WithoutCancel(ctx)).Create(&ShareRecord{
			Token:     token,
			RoomID:    roomID,
			RoundID:   roundID,
			CreatedAt: createdAt,
			ExpiresAt: expiresAt,
		}).Error
		if err != nil {
			logging.Warn(ctx, "history write failed", zap.String("table", "share_records"), zap.Error(err))
		}
	}()
}

// RecordExpiry stamps the session's end.
func (s *Service) RecordExpiry(ctx context.Context, roomID string, expiredAt time.Time) {
	if s == nil || s.db == nil {
		return
	}
	go func() {
		err := s.db.WithContext(context.WithoutCancel(ctx)).Model(&RoomSession{}).
			Where("room_id = ?", roomID).
			Update("expired_at", expiredAt).Error
		if err != nil {
			logging.Warn(ctx, "history write failed", zap.String("table", "room_sessions"), zap.Error(err))
		}
	}()
}
