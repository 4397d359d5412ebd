package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/entrypool/contest-service/internal/model"
	"github.com/entrypool/contest-service/internal/repo"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Outcome of a settled reservation.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
)

// JoinResult is returned to the join endpoint.
type JoinResult struct {
	Entry         *model.ContestEntry
	Reservation   *model.Reservation
	AlreadyJoined bool
}

// ReservationService moves funds between available and reserved. All paths
// run inside a single gorm transaction spanning the reservation row and any
// ledger appends, so a crash leaves nothing half-applied.
type ReservationService struct {
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger
}

func NewReservationService(r repo.RepositoryInterface, logger *zap.SugaredLogger) *ReservationService {
	return &ReservationService{repo: r, log: logger}
}

// JoinContest creates the contest entry and its reservation. The wallet
// anchor lock serializes concurrent joins by the same user; the contest lock
// serializes the capacity check.
func (s *ReservationService) JoinContest(ctx context.Context, userID, contestID uint64) (*JoinResult, error) {
	var out JoinResult
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		contest, err := s.repo.LockContest(ctx, tx, contestID)
		if err != nil {
			return err
		}
		if contest == nil {
			return ErrContestNotFound
		}
		if contest.State != model.ContestScheduled {
			return ErrContestClosed
		}

		// duplicate join is idempotent success
		existing, err := s.repo.FindEntry(ctx, tx, contestID, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			res, err := s.repo.FindReservationByEntry(ctx, tx, userID, existing.ID)
			if err != nil {
				return err
			}
			out = JoinResult{Entry: existing, Reservation: res, AlreadyJoined: true}
			return nil
		}

		n, err := s.repo.CountEntries(ctx, tx, contestID)
		if err != nil {
			return err
		}
		if n >= int64(contest.MaxPlayers) {
			return ErrContestFull
		}

		if _, err := s.repo.LockWalletAccount(ctx, tx, userID, contest.Currency); err != nil {
			return err
		}
		total, err := s.repo.LedgerBalance(ctx, tx, userID)
		if err != nil {
			return err
		}
		reserved, err := s.repo.ActiveReservationSum(ctx, tx, userID)
		if err != nil {
			return err
		}
		available := total - reserved
		if available < contest.EntryFeeCents {
			return &InsufficientBalanceError{RequiredCents: contest.EntryFeeCents, AvailableCents: available}
		}

		entry := &model.ContestEntry{ContestInstanceID: contestID, UserID: userID}
		if err := s.repo.CreateEntry(ctx, tx, entry); err != nil {
			return err
		}
		res := &model.Reservation{
			ID:             uuid.NewString(),
			OwnerID:        userID,
			ContestEntryID: entry.ID,
			AmountCents:    contest.EntryFeeCents,
			Currency:       contest.Currency,
			Status:         model.ReservationPending,
		}
		if err := s.repo.CreateReservation(ctx, tx, res); err != nil {
			return err
		}
		if err := s.repo.SetEntryReservation(ctx, tx, entry.ID, res.ID); err != nil {
			return err
		}
		entry.ReservationID = res.ID

		payload, _ := json.Marshal(map[string]interface{}{
			"contest_id": contestID, "user_id": userID, "entry_id": entry.ID, "amount_cents": res.AmountCents,
		})
		evt := &model.OutboxEvent{
			Aggregate: "Contest", AggregateID: fmt.Sprintf("%d", contestID),
			EventType: "EntryReserved", Payload: string(payload),
		}
		if err := s.repo.CreateOutboxEvent(ctx, tx, evt); err != nil {
			return err
		}
		out = JoinResult{Entry: entry, Reservation: res}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !out.AlreadyJoined {
		s.log.Infof("user %d joined contest %d, reserved %d cents", userID, contestID, out.Reservation.AmountCents)
	}
	return &out, nil
}

// Settle finalizes a reservation within the caller's transaction. It appends
// the entry-fee DEBIT, and for a win the payout CREDIT as well, returning the
// credit's ledger id. A reservation already in a terminal status is a no-op;
// settlement re-runs must not double-book.
func (s *ReservationService) Settle(ctx context.Context, tx *gorm.DB, reservationID string, outcome Outcome, payoutCents int64, payoutRef string) (*uint64, error) {
	res, err := s.repo.LockReservation(ctx, tx, reservationID)
	if err != nil {
		return nil, err
	}
	if res.Status != model.ReservationPending {
		return nil, nil
	}

	debit := &model.LedgerEntry{
		OwnerID:       res.OwnerID,
		Direction:     model.DirectionDebit,
		AmountCents:   res.AmountCents,
		Currency:      res.Currency,
		ReferenceType: model.RefEntryFee,
		ReferenceID:   res.ID,
	}
	if err := s.repo.AppendLedgerEntry(ctx, tx, debit); err != nil {
		return nil, err
	}

	var creditID *uint64
	if outcome == OutcomeWin && payoutCents > 0 {
		credit := &model.LedgerEntry{
			OwnerID:       res.OwnerID,
			Direction:     model.DirectionCredit,
			AmountCents:   payoutCents,
			Currency:      res.Currency,
			ReferenceType: model.RefPayout,
			ReferenceID:   payoutRef,
		}
		if err := s.repo.AppendLedgerEntry(ctx, tx, credit); err != nil {
			return nil, err
		}
		creditID = &credit.ID
	}

	if err := s.repo.SetReservationStatus(ctx, tx, res.ID, model.ReservationPending, model.ReservationSettled); err != nil {
		return nil, err
	}
	return creditID, nil
}

// ReleaseTx marks a PENDING reservation RELEASED with no ledger writes; the
// funds return to available because the hold stops counting. Terminal
// statuses are a no-op, which makes release safe to race with settlement.
func (s *ReservationService) ReleaseTx(ctx context.Context, tx *gorm.DB, reservationID string) error {
	res, err := s.repo.LockReservation(ctx, tx, reservationID)
	if err != nil {
		return err
	}
	if res.Status != model.ReservationPending {
		return nil
	}
	return s.repo.SetReservationStatus(ctx, tx, res.ID, model.ReservationPending, model.ReservationReleased)
}

// Release runs ReleaseTx in its own transaction (admin path).
func (s *ReservationService) Release(ctx context.Context, reservationID string) error {
	return s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		return s.ReleaseTx(ctx, tx, reservationID)
	})
}
