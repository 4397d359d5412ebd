package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrypool/contest-service/internal/model"
	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrValidation is returned for ledger appends with non-positive amounts or
// unsupported currencies.
var ErrValidation = errors.New("validation failed")

// ErrStaleTransition means a compare-and-set found a different stored state
// than expected; the caller retries on the next sweep cycle.
var ErrStaleTransition = errors.New("stale state transition")

// RepositoryInterface restricts Repo methods (mockable in unit tests).
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB

	// wallet / ledger
	LockWalletAccount(ctx context.Context, tx *gorm.DB, ownerID uint64, currency string) (*model.WalletAccount, error)
	AppendLedgerEntry(ctx context.Context, tx *gorm.DB, e *model.LedgerEntry) error
	LedgerBalance(ctx context.Context, tx *gorm.DB, ownerID uint64) (int64, error)
	LedgerEntriesPage(ctx context.Context, ownerID uint64, page, limit int) ([]model.LedgerEntry, error)

	// reservations
	ActiveReservationSum(ctx context.Context, tx *gorm.DB, ownerID uint64) (int64, error)
	FindReservationByEntry(ctx context.Context, tx *gorm.DB, ownerID, contestEntryID uint64) (*model.Reservation, error)
	CreateReservation(ctx context.Context, tx *gorm.DB, r *model.Reservation) error
	LockReservation(ctx context.Context, tx *gorm.DB, id string) (*model.Reservation, error)
	SetReservationStatus(ctx context.Context, tx *gorm.DB, id, from, to string) error

	// contests
	GetContest(ctx context.Context, tx *gorm.DB, id uint64) (*model.ContestInstance, error)
	LockContest(ctx context.Context, tx *gorm.DB, id uint64) (*model.ContestInstance, error)
	ContestsInStates(ctx context.Context, states []string) ([]model.ContestInstance, error)
	CASContestState(ctx context.Context, tx *gorm.DB, id uint64, from, to string) error
	AppendContestAudit(ctx context.Context, tx *gorm.DB, contestID uint64, from, to string) error
	MarkContestSettled(ctx context.Context, tx *gorm.DB, id uint64, at time.Time) error
	GetTemplate(ctx context.Context, tx *gorm.DB, id uint64) (*model.ContestTemplate, error)
	CountEntries(ctx context.Context, tx *gorm.DB, contestID uint64) (int64, error)
	FindEntry(ctx context.Context, tx *gorm.DB, contestID, userID uint64) (*model.ContestEntry, error)
	CreateEntry(ctx context.Context, tx *gorm.DB, e *model.ContestEntry) error
	SetEntryReservation(ctx context.Context, tx *gorm.DB, entryID uint64, reservationID string) error
	EntriesForContest(ctx context.Context, tx *gorm.DB, contestID uint64) ([]model.ContestEntry, error)
	SetEntryRank(ctx context.Context, tx *gorm.DB, entryID uint64, rank int) error

	// payouts
	CreatePayout(ctx context.Context, tx *gorm.DB, p *model.PayoutRecord) error
	PayoutsForContest(ctx context.Context, tx *gorm.DB, contestID uint64) ([]model.PayoutRecord, error)
	SetPayoutLedgerEntry(ctx context.Context, tx *gorm.DB, payoutID string, ledgerEntryID uint64) error

	// idempotency
	GetIdempotencyKey(ctx context.Context, tx *gorm.DB, key string) (*model.IdempotencyKey, error)
	CreateIdempotencyKey(ctx context.Context, tx *gorm.DB, rec *model.IdempotencyKey) error
	DeleteIdempotencyKey(ctx context.Context, tx *gorm.DB, key string) error
	AcquireInflight(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseInflight(ctx context.Context, key string) error

	// payments
	GetPaymentIntent(ctx context.Context, tx *gorm.DB, id string) (*model.PaymentIntent, error)
	CreatePaymentIntent(ctx context.Context, tx *gorm.DB, pi *model.PaymentIntent) error
	ConfirmPaymentIntent(ctx context.Context, tx *gorm.DB, id string) error
	PaymentEventExists(ctx context.Context, tx *gorm.DB, eventID string) (bool, error)
	CreatePaymentEvent(ctx context.Context, tx *gorm.DB, evt *model.PaymentEvent) error

	// outbox
	CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
	PublishEvent(ctx context.Context, evt model.OutboxEvent) error
}

// Repository implements RepositoryInterface.
type Repository struct {
	db         *gorm.DB
	rdb        *redis.Client
	writer     *kafka.Writer
	currencies map[string]bool
	log        *zap.SugaredLogger
}

// NewRepository constructs repo.
func NewRepository(db *gorm.DB, rdb *redis.Client, w *kafka.Writer, currencies []string, logger *zap.SugaredLogger) *Repository {
	cur := make(map[string]bool, len(currencies))
	for _, c := range currencies {
		cur[c] = true
	}
	return &Repository{db: db, rdb: rdb, writer: w, currencies: cur, log: logger}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// forUpdate adds a row lock. sqlite (tests only) has no FOR UPDATE; its
// single-writer model covers the same guarantee there.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// LockWalletAccount locks the owner's anchor row, creating it on first use.
func (r *Repository) LockWalletAccount(ctx context.Context, tx *gorm.DB, ownerID uint64, currency string) (*model.WalletAccount, error) {
	var w model.WalletAccount
	err := forUpdate(tx.WithContext(ctx)).Where("owner_id = ?", ownerID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		w = model.WalletAccount{OwnerID: ownerID, Currency: currency}
		if err := tx.WithContext(ctx).Create(&w).Error; err != nil {
			return nil, err
		}
		return &w, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// AppendLedgerEntry is the single write path for financial truth.
func (r *Repository) AppendLedgerEntry(ctx context.Context, tx *gorm.DB, e *model.LedgerEntry) error {
	if e.AmountCents <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %d", ErrValidation, e.AmountCents)
	}
	if !r.currencies[e.Currency] {
		return fmt.Errorf("%w: unsupported currency %q", ErrValidation, e.Currency)
	}
	if e.Direction != model.DirectionCredit && e.Direction != model.DirectionDebit {
		return fmt.Errorf("%w: bad direction %q", ErrValidation, e.Direction)
	}
	return tx.WithContext(ctx).Create(e).Error
}

// LedgerBalance folds CREDIT-DEBIT inside the caller's transaction so the
// read is consistent with any locks the caller holds.
func (r *Repository) LedgerBalance(ctx context.Context, tx *gorm.DB, ownerID uint64) (int64, error) {
	var bal *int64
	err := tx.WithContext(ctx).Model(&model.LedgerEntry{}).
		Select("SUM(CASE WHEN direction = ? THEN amount_cents ELSE -amount_cents END)", model.DirectionCredit).
		Where("owner_id = ?", ownerID).
		Scan(&bal).Error
	if err != nil {
		return 0, err
	}
	if bal == nil {
		return 0, nil
	}
	return *bal, nil
}

// LedgerEntriesPage returns entries in append order.
func (r *Repository) LedgerEntriesPage(ctx context.Context, ownerID uint64, page, limit int) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("id").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&entries).Error
	return entries, err
}
