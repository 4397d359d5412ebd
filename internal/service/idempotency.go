package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/entrypool/contest-service/internal/model"
	"github.com/entrypool/contest-service/internal/repo"
	"go.uber.org/zap"
)

// IdempotencyStore memoizes mutating requests by client-supplied key. The
// permanent record lives in the database; a short-lived redis lock covers the
// window while the first request is still executing, and its TTL guarantees a
// crashed worker cannot block retries of the same key forever.
type IdempotencyStore struct {
	repo        repo.RepositoryInterface
	inflightTTL time.Duration
	keyTTL      time.Duration
	log         *zap.SugaredLogger
}

func NewIdempotencyStore(r repo.RepositoryInterface, inflightTTL, keyTTL time.Duration, logger *zap.SugaredLogger) *IdempotencyStore {
	return &IdempotencyStore{repo: r, inflightTTL: inflightTTL, keyTTL: keyTTL, log: logger}
}

// Fingerprint identifies a request payload. Reusing a key with a different
// fingerprint is a client bug, not a retry.
func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Do executes fn at most once per key. A replay with the same payload gets
// the cached response; a replay with a different payload gets
// ErrIdempotencyConflict; a concurrent duplicate gets ErrRequestInFlight.
// fn returns the HTTP status and response payload; only results below 500
// are cached, so transient failures stay retryable under the same key.
//
// The record is written after fn returns, outside whatever transaction fn
// committed. A crash in that window re-executes fn on the client's retry, so
// every operation wrapped in Do must itself tolerate a replay (join does,
// via its duplicate-entry path).
func (s *IdempotencyStore) Do(ctx context.Context, key, endpoint string, body []byte, fn func(ctx context.Context) (int, interface{}, error)) (int, []byte, error) {
	hash := Fingerprint(body)

	if status, cached, err := s.lookup(ctx, key, endpoint, hash); err != nil || cached != nil {
		return status, cached, err
	}

	ok, err := s.repo.AcquireInflight(ctx, key, s.inflightTTL)
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		return 0, nil, ErrRequestInFlight
	}
	defer func() {
		if err := s.repo.ReleaseInflight(ctx, key); err != nil {
			s.log.Warnf("release inflight %s: %v", key, err)
		}
	}()

	// the previous holder may have finished between our lookup and the lock
	if status, cached, err := s.lookup(ctx, key, endpoint, hash); err != nil || cached != nil {
		return status, cached, err
	}

	status, payload, err := fn(ctx)
	if err != nil {
		return 0, nil, err
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	if status < 500 {
		rec := &model.IdempotencyKey{
			Key:          key,
			Endpoint:     endpoint,
			RequestHash:  hash,
			ResponseCode: status,
			ResponseBody: string(encoded),
			ExpiresAt:    time.Now().Add(s.keyTTL),
		}
		if err := s.repo.CreateIdempotencyKey(ctx, s.repo.DB(ctx), rec); err != nil {
			return 0, nil, err
		}
	}
	return status, encoded, nil
}

// lookup returns the cached response when the key is known. Expired rows are
// purged and treated as absent; live rows are never rewritten.
func (s *IdempotencyStore) lookup(ctx context.Context, key, endpoint, hash string) (int, []byte, error) {
	rec, err := s.repo.GetIdempotencyKey(ctx, s.repo.DB(ctx), key)
	if err != nil {
		return 0, nil, err
	}
	if rec == nil {
		return 0, nil, nil
	}
	if time.Now().After(rec.ExpiresAt) {
		if err := s.repo.DeleteIdempotencyKey(ctx, s.repo.DB(ctx), rec.Key); err != nil {
			return 0, nil, err
		}
		return 0, nil, nil
	}
	if rec.Endpoint != endpoint || rec.RequestHash != hash {
		return 0, nil, ErrIdempotencyConflict
	}
	return rec.ResponseCode, []byte(rec.ResponseBody), nil
}
