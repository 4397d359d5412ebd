package repo

import (
	"context"
	"errors"
	"time"

	"github.com/entrypool/contest-service/internal/model"
	"gorm.io/gorm"
)

func (r *Repository) GetContest(ctx context.Context, tx *gorm.DB, id uint64) (*model.ContestInstance, error) {
	var c model.ContestInstance
	err := tx.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repository) LockContest(ctx context.Context, tx *gorm.DB, id uint64) (*model.ContestInstance, error) {
	var c model.ContestInstance
	err := forUpdate(tx.WithContext(ctx)).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ContestsInStates lists sweep candidates in id order.
func (r *Repository) ContestsInStates(ctx context.Context, states []string) ([]model.ContestInstance, error) {
	var cs []model.ContestInstance
	err := r.db.WithContext(ctx).Where("state IN ?", states).Order("id").Find(&cs).Error
	return cs, err
}

// CASContestState writes the new state only if the stored state still matches
// the expected predecessor. Zero rows affected means another worker got there
// first; the sweep retries that contest next cycle.
func (r *Repository) CASContestState(ctx context.Context, tx *gorm.DB, id uint64, from, to string) error {
	res := tx.WithContext(ctx).Model(&model.ContestInstance{}).
		Where("id = ? AND state = ?", id, from).
		Update("state", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleTransition
	}
	return nil
}

func (r *Repository) AppendContestAudit(ctx context.Context, tx *gorm.DB, contestID uint64, from, to string) error {
	return tx.WithContext(ctx).Create(&model.ContestAudit{ContestID: contestID, FromState: from, ToState: to}).Error
}

func (r *Repository) MarkContestSettled(ctx context.Context, tx *gorm.DB, id uint64, at time.Time) error {
	return tx.WithContext(ctx).Model(&model.ContestInstance{}).
		Where("id = ?", id).Update("settled_at", &at).Error
}

func (r *Repository) GetTemplate(ctx context.Context, tx *gorm.DB, id uint64) (*model.ContestTemplate, error) {
	var t model.ContestTemplate
	if err := tx.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) CountEntries(ctx context.Context, tx *gorm.DB, contestID uint64) (int64, error) {
	var n int64
	err := tx.WithContext(ctx).Model(&model.ContestEntry{}).
		Where("contest_instance_id = ?", contestID).Count(&n).Error
	return n, err
}

func (r *Repository) FindEntry(ctx context.Context, tx *gorm.DB, contestID, userID uint64) (*model.ContestEntry, error) {
	var e model.ContestEntry
	err := tx.WithContext(ctx).
		Where("contest_instance_id = ? AND user_id = ?", contestID, userID).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *Repository) CreateEntry(ctx context.Context, tx *gorm.DB, e *model.ContestEntry) error {
	return tx.WithContext(ctx).Create(e).Error
}

func (r *Repository) SetEntryReservation(ctx context.Context, tx *gorm.DB, entryID uint64, reservationID string) error {
	return tx.WithContext(ctx).Model(&model.ContestEntry{}).
		Where("id = ?", entryID).Update("reservation_id", reservationID).Error
}

func (r *Repository) EntriesForContest(ctx context.Context, tx *gorm.DB, contestID uint64) ([]model.ContestEntry, error) {
	var es []model.ContestEntry
	err := tx.WithContext(ctx).
		Where("contest_instance_id = ?", contestID).Order("id").Find(&es).Error
	return es, err
}

func (r *Repository) SetEntryRank(ctx context.Context, tx *gorm.DB, entryID uint64, rank int) error {
	return tx.WithContext(ctx).Model(&model.ContestEntry{}).
		Where("id = ?", entryID).Update("final_rank", rank).Error
}

func (r *Repository) CreatePayout(ctx context.Context, tx *gorm.DB, p *model.PayoutRecord) error {
	return tx.WithContext(ctx).Create(p).Error
}

func (r *Repository) PayoutsForContest(ctx context.Context, tx *gorm.DB, contestID uint64) ([]model.PayoutRecord, error) {
	var ps []model.PayoutRecord
	err := tx.WithContext(ctx).
		Where("contest_instance_id = ?", contestID).Order("rank").Find(&ps).Error
	return ps, err
}

func (r *Repository) SetPayoutLedgerEntry(ctx context.Context, tx *gorm.DB, payoutID string, ledgerEntryID uint64) error {
	return tx.WithContext(ctx).Model(&model.PayoutRecord{}).
		Where("id = ?", payoutID).Update("ledger_entry_id", ledgerEntryID).Error
}
