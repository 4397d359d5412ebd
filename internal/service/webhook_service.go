package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/entrypool/contest-service/internal/model"
	"github.com/entrypool/contest-service/internal/repo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PaymentEventPayload is the processor's confirmation body.
type PaymentEventPayload struct {
	EventID     string `json:"event_id" binding:"required"`
	IntentID    string `json:"intent_id" binding:"required"`
	AmountCents int64  `json:"amount_cents" binding:"required"`
	Currency    string `json:"currency" binding:"required"`
}

// WebhookService ingests payment confirmations: signature-verified,
// deduplicated by provider event id, one CREDIT per confirmed intent.
type WebhookService struct {
	repo   repo.RepositoryInterface
	secret []byte
	log    *zap.SugaredLogger
}

func NewWebhookService(r repo.RepositoryInterface, secret string, logger *zap.SugaredLogger) *WebhookService {
	return &WebhookService{repo: r, secret: []byte(secret), log: logger}
}

// VerifySignature checks the HMAC-SHA256 hex signature over the raw body.
func (s *WebhookService) VerifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// HandlePaymentEvent applies one confirmation. Replays return duplicate=true
// and write nothing; the unique event id row and the transaction make the
// credit exactly-once no matter how often the processor redelivers.
func (s *WebhookService) HandlePaymentEvent(ctx context.Context, evt PaymentEventPayload) (bool, error) {
	duplicate := false
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		seen, err := s.repo.PaymentEventExists(ctx, tx, evt.EventID)
		if err != nil {
			return err
		}
		if seen {
			duplicate = true
			return nil
		}

		intent, err := s.repo.GetPaymentIntent(ctx, tx, evt.IntentID)
		if err != nil {
			return err
		}
		if intent == nil {
			return ErrUnknownIntent
		}
		if intent.AmountCents != evt.AmountCents || intent.Currency != evt.Currency {
			return ErrAmountMismatch
		}

		if err := s.repo.CreatePaymentEvent(ctx, tx, &model.PaymentEvent{EventID: evt.EventID, IntentID: evt.IntentID}); err != nil {
			return err
		}
		if _, err := s.repo.LockWalletAccount(ctx, tx, intent.OwnerID, intent.Currency); err != nil {
			return err
		}
		credit := &model.LedgerEntry{
			OwnerID:       intent.OwnerID,
			Direction:     model.DirectionCredit,
			AmountCents:   intent.AmountCents,
			Currency:      intent.Currency,
			ReferenceType: model.RefDeposit,
			ReferenceID:   intent.ID,
		}
		if err := s.repo.AppendLedgerEntry(ctx, tx, credit); err != nil {
			return err
		}
		// already-confirmed intent with a fresh event id: processor bug, do
		// not credit twice
		if err := s.repo.ConfirmPaymentIntent(ctx, tx, intent.ID); err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"owner_id": intent.OwnerID, "intent_id": intent.ID, "amount_cents": intent.AmountCents,
		})
		out := &model.OutboxEvent{
			Aggregate: "Wallet", AggregateID: fmt.Sprintf("%d", intent.OwnerID),
			EventType: "DepositConfirmed", Payload: string(payload),
		}
		return s.repo.CreateOutboxEvent(ctx, tx, out)
	})
	if err != nil {
		return false, err
	}
	if !duplicate {
		s.log.Infof("payment event %s credited intent %s", evt.EventID, evt.IntentID)
	}
	return duplicate, nil
}
