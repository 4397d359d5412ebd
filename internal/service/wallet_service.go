package service

import (
	"context"
	"time"

	"github.com/entrypool/contest-service/internal/model"
	"github.com/entrypool/contest-service/internal/repo"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Balance is the public wallet projection. Nothing beyond these fields is
// ever exposed.
type Balance struct {
	AvailableCents int64  `json:"available_cents"`
	ReservedCents  int64  `json:"reserved_cents"`
	TotalCents     int64  `json:"total_cents"`
	Currency       string `json:"currency"`
}

// TransactionView hides internal correlation fields (reference ids) from the
// public ledger projection.
type TransactionView struct {
	ID            uint64    `json:"id"`
	Direction     string    `json:"direction"`
	AmountCents   int64     `json:"amount_cents"`
	Currency      string    `json:"currency"`
	ReferenceType string    `json:"reference_type"`
	CreatedAt     time.Time `json:"created_at"`
}

// WalletService derives balances from the ledger; there is no stored balance
// anywhere to get out of sync.
type WalletService struct {
	repo     repo.RepositoryInterface
	currency string
	log      *zap.SugaredLogger
}

func NewWalletService(r repo.RepositoryInterface, currency string, logger *zap.SugaredLogger) *WalletService {
	return &WalletService{repo: r, currency: currency, log: logger}
}

// GetBalance folds the ledger and subtracts active holds inside one
// transaction. A user who has never transacted reads as all zeros.
func (s *WalletService) GetBalance(ctx context.Context, userID uint64) (*Balance, error) {
	bal := &Balance{Currency: s.currency}
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		total, err := s.repo.LedgerBalance(ctx, tx, userID)
		if err != nil {
			return err
		}
		reserved, err := s.repo.ActiveReservationSum(ctx, tx, userID)
		if err != nil {
			return err
		}
		bal.TotalCents = total
		bal.ReservedCents = reserved
		bal.AvailableCents = total - reserved
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bal, nil
}

// GetTransactions pages the ledger in append order.
func (s *WalletService) GetTransactions(ctx context.Context, userID uint64, page, limit int) ([]TransactionView, error) {
	entries, err := s.repo.LedgerEntriesPage(ctx, userID, page, limit)
	if err != nil {
		return nil, err
	}
	views := make([]TransactionView, 0, len(entries))
	for _, e := range entries {
		views = append(views, TransactionView{
			ID:            e.ID,
			Direction:     e.Direction,
			AmountCents:   e.AmountCents,
			Currency:      e.Currency,
			ReferenceType: e.ReferenceType,
			CreatedAt:     e.CreatedAt,
		})
	}
	return views, nil
}

// CreateDeposit opens a payment intent for the processor to confirm. No
// ledger entry is written until the confirmation webhook arrives.
func (s *WalletService) CreateDeposit(ctx context.Context, userID uint64, amountCents int64, currency string) (*model.PaymentIntent, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	if currency == "" {
		currency = s.currency
	}
	if currency != s.currency {
		return nil, ErrUnsupportedCurrency
	}
	pi := &model.PaymentIntent{
		ID:          uuid.NewString(),
		OwnerID:     userID,
		AmountCents: amountCents,
		Currency:    currency,
		Status:      model.IntentCreated,
	}
	if err := s.repo.CreatePaymentIntent(ctx, s.repo.DB(ctx), pi); err != nil {
		return nil, err
	}
	s.log.Infof("payment intent %s created for user %d, %d cents", pi.ID, userID, amountCents)
	return pi, nil
}
