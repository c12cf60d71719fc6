package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"powerup-economy/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ObjectPutter is the part of *s3.Client the archiver needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// LedgerArchiver copies new ledger entries to object storage as JSON lines.
type LedgerArchiver struct {
	// Settle keeps each window this far behind the clock. Entries are
	// stamped before their transaction commits, so the window must not close
	// while a transaction that stamped inside it can still commit.
	Settle time.Duration

	store  *Store
	putter ObjectPutter
	bucket string
	clock  clockwork.Clock
	log    *zap.Logger

	mu     sync.Mutex
	cursor time.Time
}

func NewLedgerArchiver(store *Store, putter ObjectPutter, bucket string, clock clockwork.Clock, logger *zap.Logger) *LedgerArchiver {
	tries := max(store.MaxTries, 1)
	return &LedgerArchiver{
		Settle: store.Timeout * time.Duration(tries),
		store:  store,
		putter: putter,
		bucket: bucket,
		clock:  clock,
		log:    logger.Named("archive"),
	}
}

// Run archives everything from the last successful run up to Settle ago.
// The cursor only advances when the upload succeeds, so a failed window is
// retried next time.
func (a *LedgerArchiver) Run(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	until := a.clock.Now().Add(-a.Settle)
	if !until.After(a.cursor) {
		return 0, nil
	}
	key, n, err := a.ArchiveWindow(ctx, a.cursor, until)
	if err != nil {
		a.log.Error("❌ ledger archive failed", zap.Time("since", a.cursor), zap.Error(err))
		return 0, err
	}
	a.cursor = until
	if n > 0 {
		a.log.Info("📦 ledger archived", zap.String("key", key), zap.Int("entries", n))
	}
	return n, nil
}

// ArchiveWindow uploads entries created in (since, until]. Empty windows
// upload nothing.
func (a *LedgerArchiver) ArchiveWindow(ctx context.Context, since, until time.Time) (string, int, error) {
	var entries []models.LedgerEntry
	err := a.store.Read(ctx, "archive.window", func(db *gorm.DB) error {
		return db.Where("created_at > ? AND created_at <= ?", since, until).
			Order("created_at ASC").
			Find(&entries).Error
	})
	if err != nil {
		return "", 0, err
	}
	if len(entries) == 0 {
		return "", 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return "", 0, fmt.Errorf("encode ledger entry %s: %w", e.ID, err)
		}
	}

	key := ArchiveKey(until)
	_, err = a.putter.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to upload to R2: %w", err)
	}
	return key, len(entries), nil
}

// ArchiveKey is the object key for a window ending at t.
func ArchiveKey(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("ledger/%s/%s.jsonl", t.Format("2006/01/02"), t.Format("150405.000000000"))
}
