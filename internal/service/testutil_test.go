package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/entrypool/contest-service/internal/logger"
	"github.com/entrypool/contest-service/internal/model"
	"github.com/entrypool/contest-service/internal/repo"
	"github.com/go-redis/redismock/v8"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	db           *gorm.DB
	redisMock    redismock.ClientMock
	repo         *repo.Repository
	wallet       *WalletService
	reservations *ReservationService
	lifecycle    *LifecycleService
	webhooks     *WebhookService
	idempotency  *IdempotencyStore
}

func newTestEnv(t *testing.T) (*testEnv, context.Context) {
	// one shared in-memory DB per test
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.WalletAccount{}, &model.LedgerEntry{}, &model.Reservation{},
		&model.ContestTemplate{}, &model.ContestInstance{}, &model.ContestEntry{},
		&model.ContestAudit{}, &model.PayoutRecord{}, &model.PaymentIntent{},
		&model.PaymentEvent{}, &model.IdempotencyKey{}, &model.OutboxEvent{},
	))

	rdb, mock := redismock.NewClientMock()
	log, err := logger.NewLogger("error")
	require.NoError(t, err)

	repository := repo.NewRepository(db, rdb, &kafka.Writer{}, []string{"USD"}, log)
	reservations := NewReservationService(repository, log)

	env := &testEnv{
		db:           db,
		redisMock:    mock,
		repo:         repository,
		wallet:       NewWalletService(repository, "USD", log),
		reservations: reservations,
		lifecycle:    NewLifecycleService(repository, reservations, log),
		webhooks:     NewWebhookService(repository, "test-secret", log),
		idempotency:  NewIdempotencyStore(repository, 30*time.Second, 24*time.Hour, log),
	}
	return env, context.Background()
}

// credit seeds funds by appending a deposit CREDIT, the same way a confirmed
// payment would.
func (e *testEnv) credit(t *testing.T, userID uint64, cents int64) {
	ctx := context.Background()
	err := e.repo.AppendLedgerEntry(ctx, e.repo.DB(ctx), &model.LedgerEntry{
		OwnerID:       userID,
		Direction:     model.DirectionCredit,
		AmountCents:   cents,
		Currency:      "USD",
		ReferenceType: model.RefDeposit,
		ReferenceID:   fmt.Sprintf("seed-%d", userID),
	})
	require.NoError(t, err)
}

func (e *testEnv) newContest(t *testing.T, feeCents int64, maxPlayers int, payoutSpec string, lockIn, startIn, endIn time.Duration) *model.ContestInstance {
	now := time.Now()
	tmpl := &model.ContestTemplate{
		Name:          "test template",
		EntryFeeCents: feeCents,
		MaxPlayers:    maxPlayers,
		PayoutSpec:    payoutSpec,
	}
	require.NoError(t, e.db.Create(tmpl).Error)
	c := &model.ContestInstance{
		OwnerID:       1,
		TemplateID:    tmpl.ID,
		EntryFeeCents: feeCents,
		Currency:      "USD",
		MaxPlayers:    maxPlayers,
		State:         model.ContestScheduled,
		LockTime:      now.Add(lockIn),
		StartTime:     now.Add(startIn),
		EndTime:       now.Add(endIn),
	}
	require.NoError(t, e.db.Create(c).Error)
	return c
}

func (e *testEnv) setScore(t *testing.T, contestID, userID uint64, score int64) {
	res := e.db.Model(&model.ContestEntry{}).
		Where("contest_instance_id = ? AND user_id = ?", contestID, userID).
		Update("final_score", score)
	require.NoError(t, res.Error)
	require.EqualValues(t, 1, res.RowsAffected)
}

func (e *testEnv) contestState(t *testing.T, id uint64) string {
	var c model.ContestInstance
	require.NoError(t, e.db.First(&c, id).Error)
	return c.State
}

func (e *testEnv) assertBalance(t *testing.T, userID uint64, available, reserved int64) {
	bal, err := e.wallet.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, available, bal.AvailableCents, "available for user %d", userID)
	assert.Equal(t, reserved, bal.ReservedCents, "reserved for user %d", userID)
}
