package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/entrypool/contest-service/internal/logger"
	"github.com/entrypool/contest-service/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestRepo(t *testing.T) (*Repository, *gorm.DB) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.WalletAccount{}, &model.LedgerEntry{}, &model.Reservation{},
		&model.ContestInstance{}, &model.ContestAudit{},
	))
	log, err := logger.NewLogger("error")
	require.NoError(t, err)
	return NewRepository(db, nil, &kafka.Writer{}, []string{"USD"}, log), db
}

func TestCASContestState_StaleTransition(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, db.Create(&model.ContestInstance{
		OwnerID: 1, TemplateID: 1, EntryFeeCents: 100, Currency: "USD",
		MaxPlayers: 2, State: model.ContestScheduled,
		LockTime: now, StartTime: now, EndTime: now,
	}).Error)

	// first writer wins
	require.NoError(t, repo.CASContestState(ctx, db, 1, model.ContestScheduled, model.ContestLocked))

	// a second writer still expecting SCHEDULED loses the race
	err := repo.CASContestState(ctx, db, 1, model.ContestScheduled, model.ContestLocked)
	assert.ErrorIs(t, err, ErrStaleTransition)

	var c model.ContestInstance
	require.NoError(t, db.First(&c, 1).Error)
	assert.Equal(t, model.ContestLocked, c.State, "exactly one transition applied")
}

func TestAppendLedgerEntry_Validation(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	err := repo.AppendLedgerEntry(ctx, db, &model.LedgerEntry{
		OwnerID: 1, Direction: model.DirectionCredit, AmountCents: 0,
		Currency: "USD", ReferenceType: model.RefDeposit, ReferenceID: "x",
	})
	assert.ErrorIs(t, err, ErrValidation)

	err = repo.AppendLedgerEntry(ctx, db, &model.LedgerEntry{
		OwnerID: 1, Direction: model.DirectionCredit, AmountCents: -5,
		Currency: "USD", ReferenceType: model.RefDeposit, ReferenceID: "x",
	})
	assert.ErrorIs(t, err, ErrValidation)

	err = repo.AppendLedgerEntry(ctx, db, &model.LedgerEntry{
		OwnerID: 1, Direction: model.DirectionCredit, AmountCents: 100,
		Currency: "XRP", ReferenceType: model.RefDeposit, ReferenceID: "x",
	})
	assert.ErrorIs(t, err, ErrValidation)

	err = repo.AppendLedgerEntry(ctx, db, &model.LedgerEntry{
		OwnerID: 1, Direction: "SIDEWAYS", AmountCents: 100,
		Currency: "USD", ReferenceType: model.RefDeposit, ReferenceID: "x",
	})
	assert.ErrorIs(t, err, ErrValidation)

	var n int64
	db.Model(&model.LedgerEntry{}).Count(&n)
	assert.EqualValues(t, 0, n, "rejected appends write nothing")
}

func TestLedgerBalance_FoldsDirections(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	entries := []model.LedgerEntry{
		{OwnerID: 1, Direction: model.DirectionCredit, AmountCents: 5000, Currency: "USD", ReferenceType: model.RefDeposit, ReferenceID: "a"},
		{OwnerID: 1, Direction: model.DirectionDebit, AmountCents: 1200, Currency: "USD", ReferenceType: model.RefEntryFee, ReferenceID: "b"},
		{OwnerID: 1, Direction: model.DirectionCredit, AmountCents: 300, Currency: "USD", ReferenceType: model.RefPayout, ReferenceID: "c"},
		{OwnerID: 2, Direction: model.DirectionCredit, AmountCents: 999, Currency: "USD", ReferenceType: model.RefDeposit, ReferenceID: "d"},
	}
	for i := range entries {
		require.NoError(t, repo.AppendLedgerEntry(ctx, db, &entries[i]))
	}

	bal, err := repo.LedgerBalance(ctx, db, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5000-1200+300), bal)

	// unknown owner folds to zero, not an error
	bal, err = repo.LedgerBalance(ctx, db, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal)

	page, err := repo.LedgerEntriesPage(ctx, 1, 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, entries[0].ID, page[0].ID, "append order")

	page, err = repo.LedgerEntriesPage(ctx, 1, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
}
