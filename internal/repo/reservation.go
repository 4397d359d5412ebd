package repo

import (
	"context"
	"errors"

	"github.com/entrypool/contest-service/internal/model"
	"gorm.io/gorm"
)

// ActiveReservationSum totals PENDING holds for an owner.
func (r *Repository) ActiveReservationSum(ctx context.Context, tx *gorm.DB, ownerID uint64) (int64, error) {
	var sum *int64
	err := tx.WithContext(ctx).Model(&model.Reservation{}).
		Select("SUM(amount_cents)").
		Where("owner_id = ? AND status = ?", ownerID, model.ReservationPending).
		Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}

// FindReservationByEntry returns nil, nil when absent.
func (r *Repository) FindReservationByEntry(ctx context.Context, tx *gorm.DB, ownerID, contestEntryID uint64) (*model.Reservation, error) {
	var res model.Reservation
	err := tx.WithContext(ctx).
		Where("owner_id = ? AND contest_entry_id = ?", ownerID, contestEntryID).
		First(&res).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *Repository) CreateReservation(ctx context.Context, tx *gorm.DB, res *model.Reservation) error {
	return tx.WithContext(ctx).Create(res).Error
}

func (r *Repository) LockReservation(ctx context.Context, tx *gorm.DB, id string) (*model.Reservation, error) {
	var res model.Reservation
	if err := forUpdate(tx.WithContext(ctx)).Where("id = ?", id).First(&res).Error; err != nil {
		return nil, err
	}
	return &res, nil
}

// SetReservationStatus is a compare-and-set on the status column.
func (r *Repository) SetReservationStatus(ctx context.Context, tx *gorm.DB, id, from, to string) error {
	res := tx.WithContext(ctx).Model(&model.Reservation{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleTransition
	}
	return nil
}
