package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/entrypool/contest-service/internal/model"
	"github.com/entrypool/contest-service/internal/repo"
	"github.com/entrypool/contest-service/internal/settle"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// sweepStates are the non-terminal states a sweep looks at.
var sweepStates = []string{
	model.ContestScheduled,
	model.ContestLocked,
	model.ContestLive,
	model.ContestComplete,
	model.ContestSettled,
}

// LifecycleService advances contests through their state machine. Every
// transition is a compare-and-set guarded by the expected predecessor state,
// so the sweep can run concurrently with itself and with admin actions.
type LifecycleService struct {
	repo         repo.RepositoryInterface
	reservations *ReservationService
	log          *zap.SugaredLogger
}

func NewLifecycleService(r repo.RepositoryInterface, rs *ReservationService, logger *zap.SugaredLogger) *LifecycleService {
	return &LifecycleService{repo: r, reservations: rs, log: logger}
}

// Get returns a contest for the read API.
func (s *LifecycleService) Get(ctx context.Context, contestID uint64) (*model.ContestInstance, error) {
	c, err := s.repo.GetContest(ctx, s.repo.DB(ctx), contestID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrContestNotFound
	}
	return c, nil
}

// SweepOnce evaluates every non-terminal contest against the clock. Failures
// are isolated per contest; a lost CAS race is not an error, the contest is
// simply picked up again next cycle.
func (s *LifecycleService) SweepOnce(ctx context.Context, now time.Time) error {
	contests, err := s.repo.ContestsInStates(ctx, sweepStates)
	if err != nil {
		return err
	}
	for i := range contests {
		c := contests[i]
		if err := s.advance(ctx, now, &c); err != nil {
			if errors.Is(err, repo.ErrStaleTransition) {
				continue
			}
			s.log.Errorf("sweep contest %d (%s): %v", c.ID, c.State, err)
		}
	}
	return nil
}

func (s *LifecycleService) advance(ctx context.Context, now time.Time, c *model.ContestInstance) error {
	switch c.State {
	case model.ContestScheduled:
		if !now.Before(c.LockTime) {
			return s.transition(ctx, c.ID, model.ContestScheduled, model.ContestLocked)
		}
	case model.ContestLocked:
		if !now.Before(c.StartTime) {
			return s.transition(ctx, c.ID, model.ContestLocked, model.ContestLive)
		}
	case model.ContestLive:
		if !now.Before(c.EndTime) {
			pending, err := s.scoresPending(ctx, c.ID)
			if err != nil {
				return err
			}
			if pending {
				return nil
			}
			return s.transition(ctx, c.ID, model.ContestLive, model.ContestComplete)
		}
	case model.ContestComplete:
		err := s.settleContest(ctx, now, c.ID)
		if errors.Is(err, ErrLedgerCorruption) {
			s.log.Errorf("contest %d moved to ERROR: %v", c.ID, err)
			return s.transition(ctx, c.ID, model.ContestComplete, model.ContestError)
		}
		return err
	case model.ContestSettled:
		return s.finalizePayouts(ctx, c.ID)
	}
	return nil
}

// scoresPending reports whether any entry still lacks a final score from the
// scoring feed.
func (s *LifecycleService) scoresPending(ctx context.Context, contestID uint64) (bool, error) {
	entries, err := s.repo.EntriesForContest(ctx, s.repo.DB(ctx), contestID)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.FinalScore == nil {
			return true, nil
		}
	}
	return false, nil
}

// transition writes the audit row and the CAS state update in one
// transaction; a lost race rolls both back.
func (s *LifecycleService) transition(ctx context.Context, contestID uint64, from, to string) error {
	return s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.AppendContestAudit(ctx, tx, contestID, from, to); err != nil {
			return err
		}
		if err := s.repo.CASContestState(ctx, tx, contestID, from, to); err != nil {
			return err
		}
		payload, _ := json.Marshal(map[string]interface{}{"contest_id": contestID, "from": from, "to": to})
		evt := &model.OutboxEvent{
			Aggregate: "Contest", AggregateID: fmt.Sprintf("%d", contestID),
			EventType: "StateChanged", Payload: string(payload),
		}
		return s.repo.CreateOutboxEvent(ctx, tx, evt)
	})
}

// settleContest computes payouts and settles every reservation atomically:
// either all payout records and ledger entries land, or none do.
func (s *LifecycleService) settleContest(ctx context.Context, now time.Time, contestID uint64) error {
	return s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.repo.LockContest(ctx, tx, contestID)
		if err != nil {
			return err
		}
		if c == nil || c.State != model.ContestComplete {
			return repo.ErrStaleTransition
		}
		tmpl, err := s.repo.GetTemplate(ctx, tx, c.TemplateID)
		if err != nil {
			return err
		}
		fractions, err := settle.ParseSpec(tmpl.PayoutSpec)
		if err != nil {
			return err
		}
		entries, err := s.repo.EntriesForContest(ctx, tx, contestID)
		if err != nil {
			return err
		}

		standings := make([]settle.Entry, 0, len(entries))
		for _, e := range entries {
			var score int64
			if e.FinalScore != nil {
				score = *e.FinalScore
			}
			standings = append(standings, settle.Entry{
				EntryID: e.ID, UserID: e.UserID, Score: score, JoinedAt: e.JoinedAt,
			})
		}
		payouts, err := settle.Compute(c.ID, c.EntryFeeCents, standings, fractions)
		if err != nil {
			return err
		}
		byEntry := make(map[uint64]settle.Payout, len(payouts))
		for _, p := range payouts {
			byEntry[p.EntryID] = p
		}
		rankByEntry := make(map[uint64]int, len(standings))
		for i, e := range settle.Rank(standings) {
			rankByEntry[e.EntryID] = i + 1
		}

		for _, e := range entries {
			if e.ReservationID == "" {
				return fmt.Errorf("%w: entry %d has no reservation", ErrLedgerCorruption, e.ID)
			}
			outcome, amount, ref := OutcomeLoss, int64(0), ""
			if p, won := byEntry[e.ID]; won {
				outcome, amount, ref = OutcomeWin, p.AmountCents, p.ID
			}
			creditID, err := s.reservations.Settle(ctx, tx, e.ReservationID, outcome, amount, ref)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: entry %d references missing reservation %s", ErrLedgerCorruption, e.ID, e.ReservationID)
			}
			if err != nil {
				return err
			}
			if p, won := byEntry[e.ID]; won {
				rec := &model.PayoutRecord{
					ID:                p.ID,
					ContestInstanceID: c.ID,
					ContestEntryID:    p.EntryID,
					UserID:            p.UserID,
					Rank:              p.Rank,
					AmountCents:       p.AmountCents,
					LedgerEntryID:     creditID,
				}
				if err := s.repo.CreatePayout(ctx, tx, rec); err != nil {
					return err
				}
			}
			if err := s.repo.SetEntryRank(ctx, tx, e.ID, rankByEntry[e.ID]); err != nil {
				return err
			}
		}

		if err := s.repo.MarkContestSettled(ctx, tx, c.ID, now); err != nil {
			return err
		}
		if err := s.repo.AppendContestAudit(ctx, tx, c.ID, model.ContestComplete, model.ContestSettled); err != nil {
			return err
		}
		if err := s.repo.CASContestState(ctx, tx, c.ID, model.ContestComplete, model.ContestSettled); err != nil {
			return err
		}
		payload, _ := json.Marshal(map[string]interface{}{"contest_id": c.ID, "payouts": len(payouts)})
		evt := &model.OutboxEvent{
			Aggregate: "Contest", AggregateID: fmt.Sprintf("%d", c.ID),
			EventType: "Settled", Payload: string(payload),
		}
		return s.repo.CreateOutboxEvent(ctx, tx, evt)
	})
}

// finalizePayouts verifies every payout record carries its ledger credit,
// backfilling any the settlement transaction failed to stamp, then moves the
// contest to PAID.
func (s *LifecycleService) finalizePayouts(ctx context.Context, contestID uint64) error {
	return s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.repo.LockContest(ctx, tx, contestID)
		if err != nil {
			return err
		}
		if c == nil || c.State != model.ContestSettled {
			return repo.ErrStaleTransition
		}
		payouts, err := s.repo.PayoutsForContest(ctx, tx, contestID)
		if err != nil {
			return err
		}
		for _, p := range payouts {
			if p.LedgerEntryID != nil {
				continue
			}
			credit := &model.LedgerEntry{
				OwnerID:       p.UserID,
				Direction:     model.DirectionCredit,
				AmountCents:   p.AmountCents,
				Currency:      c.Currency,
				ReferenceType: model.RefPayout,
				ReferenceID:   p.ID,
			}
			if err := s.repo.AppendLedgerEntry(ctx, tx, credit); err != nil {
				return err
			}
			if err := s.repo.SetPayoutLedgerEntry(ctx, tx, p.ID, credit.ID); err != nil {
				return err
			}
		}
		if err := s.repo.AppendContestAudit(ctx, tx, contestID, model.ContestSettled, model.ContestPaid); err != nil {
			return err
		}
		return s.repo.CASContestState(ctx, tx, contestID, model.ContestSettled, model.ContestPaid)
	})
}

// Cancel aborts a contest before it goes live, releasing every hold. No
// ledger entries are written: the fees were never debited.
func (s *LifecycleService) Cancel(ctx context.Context, contestID uint64) error {
	return s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.repo.LockContest(ctx, tx, contestID)
		if err != nil {
			return err
		}
		if c == nil {
			return ErrContestNotFound
		}
		if c.State != model.ContestScheduled && c.State != model.ContestLocked {
			return ErrNotCancellable
		}
		entries, err := s.repo.EntriesForContest(ctx, tx, contestID)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.ReservationID == "" {
				continue
			}
			if err := s.reservations.ReleaseTx(ctx, tx, e.ReservationID); err != nil {
				return err
			}
		}
		if err := s.repo.AppendContestAudit(ctx, tx, contestID, c.State, model.ContestCancelled); err != nil {
			return err
		}
		if err := s.repo.CASContestState(ctx, tx, contestID, c.State, model.ContestCancelled); err != nil {
			return err
		}
		payload, _ := json.Marshal(map[string]interface{}{"contest_id": contestID, "released": len(entries)})
		evt := &model.OutboxEvent{
			Aggregate: "Contest", AggregateID: fmt.Sprintf("%d", contestID),
			EventType: "Cancelled", Payload: string(payload),
		}
		return s.repo.CreateOutboxEvent(ctx, tx, evt)
	})
}
