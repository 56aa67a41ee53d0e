// Package journal keeps an append-only, hash-chained record of every domain
// event emitted by the loyalty components. Each entry's digest covers the
// previous digest, so rewriting any stored row breaks verification from that
// row onwards.
package journal

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"lukechampine.com/blake3"

	"loyaltyledger/core/events"
)

var (
	// ErrChainBroken reports an entry whose digest does not match its contents
	// or predecessor.
	ErrChainBroken = errors.New("journal: hash chain broken")
	ErrNilEvent    = errors.New("journal: nil event")
)

const verifyPageSize = 500

// Entry is one persisted event.
type Entry struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence   int64     `gorm:"uniqueIndex;not null"`
	Type       string    `gorm:"index;not null"`
	Subject    string    `gorm:"index"`
	Attributes string    `gorm:"type:text;not null"`
	PrevDigest string    `gorm:"size:64"`
	Digest     string    `gorm:"size:64;uniqueIndex;not null"`
	CreatedAt  time.Time
}

func (Entry) TableName() string { return "loyalty_journal" }

// Journal appends events to a gorm-backed table.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sequence int64
	head     string
}

// Open connects to dsn and prepares the journal table. DSNs with a postgres://
// or postgresql:// scheme use Postgres; anything else is handed to sqlite.
func Open(dsn string) (*Journal, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("journal: dsn required")
	}
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	var dialector gorm.Dialector
	if isPostgres(dsn) {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	return New(db)
}

// New wraps an existing connection, migrating the schema and loading the
// current chain head.
func New(db *gorm.DB) (*Journal, error) {
	if db == nil {
		return nil, fmt.Errorf("journal: nil database")
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	j := &Journal{db: db, logger: slog.Default(), now: time.Now}
	var last Entry
	err := db.Order("sequence desc").Limit(1).Take(&last).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return nil, fmt.Errorf("journal: load head: %w", err)
	default:
		j.sequence = last.Sequence
		j.head = last.Digest
	}
	return j, nil
}

func isPostgres(dsn string) bool {
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://")
}

// SetLogger overrides the logger used to report Emit failures.
func (j *Journal) SetLogger(l *slog.Logger) {
	if l != nil {
		j.logger = l
	}
}

// Append persists evt as the next entry in the chain.
func (j *Journal) Append(ctx context.Context, evt events.Event) (*Entry, error) {
	if evt == nil {
		return nil, ErrNilEvent
	}
	attrs := evt.Attributes()
	payload, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("journal: encode attributes: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	entry := &Entry{
		ID:         uuid.New(),
		Sequence:   j.sequence + 1,
		Type:       evt.EventType(),
		Subject:    subjectOf(attrs),
		Attributes: string(payload),
		PrevDigest: j.head,
		CreatedAt:  j.now().UTC(),
	}
	entry.Digest = digest(entry)
	if err := j.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, fmt.Errorf("journal: append: %w", err)
	}
	j.sequence = entry.Sequence
	j.head = entry.Digest
	return entry, nil
}

// Emit implements events.Emitter. Failures are logged; the ledger operation
// that produced the event has already committed.
func (j *Journal) Emit(evt events.Event) {
	if _, err := j.Append(context.Background(), evt); err != nil {
		j.logger.Error("journal append failed", "error", err)
	}
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Entry
	if err := j.db.WithContext(ctx).Order("sequence desc").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	return out, nil
}

// Verify walks the whole chain in sequence order and returns the number of
// entries checked.
func (j *Journal) Verify(ctx context.Context) (int, error) {
	var (
		checked int
		prev    string
		lastSeq int64
	)
	for {
		var page []Entry
		err := j.db.WithContext(ctx).
			Where("sequence > ?", lastSeq).
			Order("sequence asc").
			Limit(verifyPageSize).
			Find(&page).Error
		if err != nil {
			return checked, fmt.Errorf("journal: verify: %w", err)
		}
		for i := range page {
			entry := &page[i]
			if entry.Sequence != lastSeq+1 {
				return checked, fmt.Errorf("%w: gap before sequence %d", ErrChainBroken, entry.Sequence)
			}
			if entry.PrevDigest != prev {
				return checked, fmt.Errorf("%w: sequence %d does not link to its predecessor", ErrChainBroken, entry.Sequence)
			}
			if digest(entry) != entry.Digest {
				return checked, fmt.Errorf("%w: sequence %d digest mismatch", ErrChainBroken, entry.Sequence)
			}
			prev = entry.Digest
			lastSeq = entry.Sequence
			checked++
		}
		if len(page) < verifyPageSize {
			return checked, nil
		}
	}
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func digest(e *Entry) string {
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], uint64(e.Sequence))
	h := blake3.New(32, nil)
	h.Write([]byte(e.PrevDigest))
	h.Write(seq[:])
	h.Write([]byte(e.Type))
	h.Write([]byte{0})
	h.Write([]byte(e.Attributes))
	return hex.EncodeToString(h.Sum(nil))
}

func subjectOf(attrs map[string]string) string {
	for _, key := range []string{"user", "recipient", "business"} {
		if v := attrs[key]; v != "" {
			return v
		}
	}
	if tier := attrs["tier"]; tier != "" {
		return "tier:" + tier
	}
	return ""
}
