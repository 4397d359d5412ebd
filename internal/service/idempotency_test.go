package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const joinEndpoint = "POST /v1/contests/:id/join"

func TestIdempotencyDo_ExecutesOnceAndReplays(t *testing.T) {
	env, ctx := newTestEnv(t)
	env.redisMock.ExpectSetNX("idem:inflight:k1", "1", 30*time.Second).SetVal(true)
	env.redisMock.ExpectDel("idem:inflight:k1").SetVal(1)

	calls := 0
	fn := func(ctx context.Context) (int, interface{}, error) {
		calls++
		return 200, map[string]interface{}{"entry_id": 7}, nil
	}

	status, body, err := env.idempotency.Do(ctx, "k1", joinEndpoint, []byte("payload"), fn)
	require.NoError(t, err)
	assert.Equal(t, 200, status)
	assert.JSONEq(t, `{"entry_id":7}`, string(body))
	assert.Equal(t, 1, calls)

	// replay: served from the cache, no redis traffic, fn not re-executed
	status2, body2, err := env.idempotency.Do(ctx, "k1", joinEndpoint, []byte("payload"), fn)
	require.NoError(t, err)
	assert.Equal(t, status, status2)
	assert.Equal(t, string(body), string(body2))
	assert.Equal(t, 1, calls)

	assert.NoError(t, env.redisMock.ExpectationsWereMet())
}

func TestIdempotencyDo_ConflictOnDifferentPayload(t *testing.T) {
	env, ctx := newTestEnv(t)
	env.redisMock.ExpectSetNX("idem:inflight:k2", "1", 30*time.Second).SetVal(true)
	env.redisMock.ExpectDel("idem:inflight:k2").SetVal(1)

	fn := func(ctx context.Context) (int, interface{}, error) {
		return 200, map[string]interface{}{"ok": true}, nil
	}
	_, _, err := env.idempotency.Do(ctx, "k2", joinEndpoint, []byte("payload-a"), fn)
	require.NoError(t, err)

	// same key, different payload: client bug, permanent 409
	_, _, err = env.idempotency.Do(ctx, "k2", joinEndpoint, []byte("payload-b"), fn)
	assert.ErrorIs(t, err, ErrIdempotencyConflict)

	// same key, same payload, different endpoint: also a conflict
	_, _, err = env.idempotency.Do(ctx, "k2", "POST /v1/other", []byte("payload-a"), fn)
	assert.ErrorIs(t, err, ErrIdempotencyConflict)
}

func TestIdempotencyDo_InFlightDuplicate(t *testing.T) {
	env, ctx := newTestEnv(t)
	env.redisMock.ExpectSetNX("idem:inflight:k3", "1", 30*time.Second).SetVal(false)

	fn := func(ctx context.Context) (int, interface{}, error) {
		t.Fatal("must not execute while the key is held")
		return 0, nil, nil
	}
	_, _, err := env.idempotency.Do(ctx, "k3", joinEndpoint, []byte("p"), fn)
	assert.ErrorIs(t, err, ErrRequestInFlight)
}

func TestIdempotencyDo_WrapsJoinExactlyOnce(t *testing.T) {
	env, ctx := newTestEnv(t)
	env.redisMock.ExpectSetNX("idem:inflight:join-1", "1", 30*time.Second).SetVal(true)
	env.redisMock.ExpectDel("idem:inflight:join-1").SetVal(1)

	env.credit(t, 1, 5000)
	contest := env.newContest(t, 5000, 10, `["1"]`, time.Hour, 2*time.Hour, 3*time.Hour)

	fn := func(ctx context.Context) (int, interface{}, error) {
		out, err := env.reservations.JoinContest(ctx, 1, contest.ID)
		if err != nil {
			return 0, nil, err
		}
		return 200, map[string]interface{}{"reservation_id": out.Reservation.ID}, nil
	}

	status, body, err := env.idempotency.Do(ctx, "join-1", joinEndpoint, []byte("join"), fn)
	require.NoError(t, err)
	assert.Equal(t, 200, status)

	status2, body2, err := env.idempotency.Do(ctx, "join-1", joinEndpoint, []byte("join"), fn)
	require.NoError(t, err)
	assert.Equal(t, status, status2)
	assert.Equal(t, string(body), string(body2), "replay returns the identical response")

	env.assertBalance(t, 1, 0, 5000)
}

func TestIdempotencyDo_ErrorsAreNotCached(t *testing.T) {
	env, ctx := newTestEnv(t)
	env.redisMock.ExpectSetNX("idem:inflight:k4", "1", 30*time.Second).SetVal(true)
	env.redisMock.ExpectDel("idem:inflight:k4").SetVal(1)
	env.redisMock.ExpectSetNX("idem:inflight:k4", "1", 30*time.Second).SetVal(true)
	env.redisMock.ExpectDel("idem:inflight:k4").SetVal(1)

	calls := 0
	fn := func(ctx context.Context) (int, interface{}, error) {
		calls++
		if calls == 1 {
			return 0, nil, assert.AnError
		}
		return 200, map[string]interface{}{"ok": true}, nil
	}

	_, _, err := env.idempotency.Do(ctx, "k4", joinEndpoint, []byte("p"), fn)
	assert.Error(t, err)

	// transient failure: the retry with the same key re-executes
	status, _, err := env.idempotency.Do(ctx, "k4", joinEndpoint, []byte("p"), fn)
	require.NoError(t, err)
	assert.Equal(t, 200, status)
	assert.Equal(t, 2, calls)
}
