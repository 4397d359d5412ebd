package service

import (
	"testing"
	"time"

	"github.com/entrypool/contest-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinContest_ReservesEntryFee(t *testing.T) {
	env, ctx := newTestEnv(t)
	env.credit(t, 1, 5000)
	contest := env.newContest(t, 5000, 10, `["1"]`, time.Hour, 2*time.Hour, 3*time.Hour)

	out, err := env.reservations.JoinContest(ctx, 1, contest.ID)
	require.NoError(t, err)
	assert.False(t, out.AlreadyJoined)
	assert.Equal(t, model.ReservationPending, out.Reservation.Status)
	assert.Equal(t, int64(5000), out.Reservation.AmountCents)
	assert.Equal(t, out.Reservation.ID, out.Entry.ReservationID)

	env.assertBalance(t, 1, 0, 5000)
}

func TestJoinContest_SecondJoinIsIdempotent(t *testing.T) {
	env, ctx := newTestEnv(t)
	env.credit(t, 1, 5000)
	contest := env.newContest(t, 5000, 10, `["1"]`, time.Hour, 2*time.Hour, 3*time.Hour)

	first, err := env.reservations.JoinContest(ctx, 1, contest.ID)
	require.NoError(t, err)

	second, err := env.reservations.JoinContest(ctx, 1, contest.ID)
	require.NoError(t, err)
	assert.True(t, second.AlreadyJoined)
	assert.Equal(t, first.Reservation.ID, second.Reservation.ID)
	assert.Equal(t, first.Entry.ID, second.Entry.ID)

	var count int64
	env.db.Model(&model.Reservation{}).Where("owner_id = ?", 1).Count(&count)
	assert.EqualValues(t, 1, count, "exactly one reservation row")

	env.assertBalance(t, 1, 0, 5000)
}

func TestJoinContest_InsufficientBalance(t *testing.T) {
	env, ctx := newTestEnv(t)
	env.credit(t, 1, 2500)
	contest := env.newContest(t, 5000, 10, `["1"]`, time.Hour, 2*time.Hour, 3*time.Hour)

	_, err := env.reservations.JoinContest(ctx, 1, contest.ID)
	var insufficient *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(5000), insufficient.RequiredCents)
	assert.Equal(t, int64(2500), insufficient.AvailableCents)

	var count int64
	env.db.Model(&model.Reservation{}).Count(&count)
	assert.EqualValues(t, 0, count, "no reservation on failed join")
	env.assertBalance(t, 1, 2500, 0)
}

func TestJoinContest_Full(t *testing.T) {
	env, ctx := newTestEnv(t)
	env.credit(t, 1, 5000)
	env.credit(t, 2, 5000)
	contest := env.newContest(t, 1000, 1, `["1"]`, time.Hour, 2*time.Hour, 3*time.Hour)

	_, err := env.reservations.JoinContest(ctx, 1, contest.ID)
	require.NoError(t, err)

	_, err = env.reservations.JoinContest(ctx, 2, contest.ID)
	assert.ErrorIs(t, err, ErrContestFull)
}

func TestJoinContest_ClosedAfterLock(t *testing.T) {
	env, ctx := newTestEnv(t)
	env.credit(t, 1, 5000)
	contest := env.newContest(t, 1000, 10, `["1"]`, time.Hour, 2*time.Hour, 3*time.Hour)
	require.NoError(t, env.db.Model(&model.ContestInstance{}).
		Where("id = ?", contest.ID).Update("state", model.ContestLocked).Error)

	_, err := env.reservations.JoinContest(ctx, 1, contest.ID)
	assert.ErrorIs(t, err, ErrContestClosed)
}

func TestJoinContest_NotFound(t *testing.T) {
	env, ctx := newTestEnv(t)
	_, err := env.reservations.JoinContest(ctx, 1, 999)
	assert.ErrorIs(t, err, ErrContestNotFound)
}

func TestRelease_ReturnsFundsWithoutLedgerWrites(t *testing.T) {
	env, ctx := newTestEnv(t)
	env.credit(t, 1, 5000)
	contest := env.newContest(t, 1000, 10, `["1"]`, time.Hour, 2*time.Hour, 3*time.Hour)

	out, err := env.reservations.JoinContest(ctx, 1, contest.ID)
	require.NoError(t, err)
	env.assertBalance(t, 1, 4000, 1000)

	var before int64
	env.db.Model(&model.LedgerEntry{}).Count(&before)

	require.NoError(t, env.reservations.Release(ctx, out.Reservation.ID))
	// second release is a no-op
	require.NoError(t, env.reservations.Release(ctx, out.Reservation.ID))

	var after int64
	env.db.Model(&model.LedgerEntry{}).Count(&after)
	assert.Equal(t, before, after, "release never writes ledger entries")
	env.assertBalance(t, 1, 5000, 0)
}
