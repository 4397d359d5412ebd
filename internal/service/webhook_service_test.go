package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/entrypool/contest-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	env, _ := newTestEnv(t)
	body := []byte(`{"event_id":"evt-1"}`)

	assert.True(t, env.webhooks.VerifySignature(body, sign("test-secret", body)))
	assert.False(t, env.webhooks.VerifySignature(body, sign("wrong-secret", body)))
	assert.False(t, env.webhooks.VerifySignature(body, "junk"))
	assert.False(t, env.webhooks.VerifySignature(body, ""))
}

func TestHandlePaymentEvent_ReplaySafe(t *testing.T) {
	env, ctx := newTestEnv(t)
	intent, err := env.wallet.CreateDeposit(ctx, 1, 2500, "USD")
	require.NoError(t, err)

	evt := PaymentEventPayload{
		EventID:     "evt-100",
		IntentID:    intent.ID,
		AmountCents: 2500,
		Currency:    "USD",
	}

	dup, err := env.webhooks.HandlePaymentEvent(ctx, evt)
	require.NoError(t, err)
	assert.False(t, dup)

	// the processor redelivers relentlessly
	for i := 0; i < 100; i++ {
		dup, err = env.webhooks.HandlePaymentEvent(ctx, evt)
		require.NoError(t, err)
		assert.True(t, dup)
	}

	var credits int64
	env.db.Model(&model.LedgerEntry{}).
		Where("owner_id = ? AND direction = ?", 1, model.DirectionCredit).Count(&credits)
	assert.EqualValues(t, 1, credits, "exactly one CREDIT no matter how many deliveries")
	env.assertBalance(t, 1, 2500, 0)

	var pi model.PaymentIntent
	require.NoError(t, env.db.First(&pi, "id = ?", intent.ID).Error)
	assert.Equal(t, model.IntentConfirmed, pi.Status)
}

func TestHandlePaymentEvent_UnknownIntent(t *testing.T) {
	env, ctx := newTestEnv(t)
	_, err := env.webhooks.HandlePaymentEvent(ctx, PaymentEventPayload{
		EventID:     "evt-1",
		IntentID:    "no-such-intent",
		AmountCents: 100,
		Currency:    "USD",
	})
	assert.ErrorIs(t, err, ErrUnknownIntent)

	var events int64
	env.db.Model(&model.PaymentEvent{}).Count(&events)
	assert.EqualValues(t, 0, events)
}

func TestHandlePaymentEvent_AmountMismatch(t *testing.T) {
	env, ctx := newTestEnv(t)
	intent, err := env.wallet.CreateDeposit(ctx, 1, 2500, "USD")
	require.NoError(t, err)

	_, err = env.webhooks.HandlePaymentEvent(ctx, PaymentEventPayload{
		EventID:     "evt-1",
		IntentID:    intent.ID,
		AmountCents: 9999,
		Currency:    "USD",
	})
	assert.ErrorIs(t, err, ErrAmountMismatch)
	env.assertBalance(t, 1, 0, 0)
}

func TestCreateDeposit_Validation(t *testing.T) {
	env, ctx := newTestEnv(t)

	_, err := env.wallet.CreateDeposit(ctx, 1, 0, "USD")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = env.wallet.CreateDeposit(ctx, 1, 100, "XRP")
	assert.ErrorIs(t, err, ErrUnsupportedCurrency)
}
