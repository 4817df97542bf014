package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"shadowpay/core/events"
	"shadowpay/core/types"
)

// DefaultLimit caps ListByAddress when the caller passes no limit.
const DefaultLimit = 100

// Record is one committed pay request event.
type Record struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Type       string    `gorm:"size:64;index" json:"type"`
	Address    string    `gorm:"size:64;index" json:"address"`
	Attributes string    `gorm:"type:text" json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (Record) TableName() string { return "payrequest_events" }

// Event decodes the stored attributes back into a ledger event.
func (r Record) Event() (*types.Event, error) {
	attrs := map[string]string{}
	if r.Attributes != "" {
		if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
			return nil, fmt.Errorf("index: decode attributes of event %d: %w", r.ID, err)
		}
	}
	return &types.Event{Type: r.Type, Attributes: attrs}, nil
}

// Open connects to the SQL database named by driver ("sqlite" or "postgres").
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("index: unsupported driver %q", driver)
	}
	return gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
}

// Store persists events handed to it by the ledger and serves them back per
// pay request address.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// New migrates the schema and returns a store writing to db.
func New(db *gorm.DB, log *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("index: database must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("index: migrate: %w", err)
	}
	return &Store{db: db, logger: log, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Emit implements events.Emitter. Write failures are logged; the ledger has
// already committed the event by the time it reaches the index.
func (s *Store) Emit(evt events.Event) {
	if s == nil || evt == nil {
		return
	}
	if err := s.Record(context.Background(), evt); err != nil {
		s.logger.Error("index event", slog.String("type", evt.EventType()), slog.String("error", err.Error()))
	}
}

// Record stores a single event.
func (s *Store) Record(ctx context.Context, evt events.Event) error {
	payload := evt.Event()
	if payload == nil {
		return nil
	}
	attrs, err := json.Marshal(payload.Attributes)
	if err != nil {
		return err
	}
	rec := Record{
		Type:       payload.Type,
		Address:    payload.Attributes["address"],
		Attributes: string(attrs),
		CreatedAt:  s.now(),
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

// ListByAddress returns the events of one pay request in commit order.
func (s *Store) ListByAddress(ctx context.Context, address string, limit int) ([]Record, error) {
	if limit <= 0 || limit > DefaultLimit {
		limit = DefaultLimit
	}
	var out []Record
	err := s.db.WithContext(ctx).
		Where("address = ?", strings.TrimSpace(address)).
		Order("id ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
