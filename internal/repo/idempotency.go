package repo

import (
	"context"
	"errors"
	"time"

	"github.com/entrypool/contest-service/internal/model"
	"gorm.io/gorm"
)

func (r *Repository) GetIdempotencyKey(ctx context.Context, tx *gorm.DB, key string) (*model.IdempotencyKey, error) {
	var rec model.IdempotencyKey
	err := tx.WithContext(ctx).Where("key = ?", key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Repository) CreateIdempotencyKey(ctx context.Context, tx *gorm.DB, rec *model.IdempotencyKey) error {
	return tx.WithContext(ctx).Create(rec).Error
}

// DeleteIdempotencyKey purges an expired row so the key can be reused.
func (r *Repository) DeleteIdempotencyKey(ctx context.Context, tx *gorm.DB, key string) error {
	return tx.WithContext(ctx).Where("key = ?", key).Delete(&model.IdempotencyKey{}).Error
}

// AcquireInflight takes the short-lived redis lock for a key. The TTL bounds
// how long a crashed worker can block retries.
func (r *Repository) AcquireInflight(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.rdb.SetNX(ctx, "idem:inflight:"+key, "1", ttl).Result()
}

func (r *Repository) ReleaseInflight(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, "idem:inflight:"+key).Err()
}

func (r *Repository) GetPaymentIntent(ctx context.Context, tx *gorm.DB, id string) (*model.PaymentIntent, error) {
	var pi model.PaymentIntent
	err := tx.WithContext(ctx).Where("id = ?", id).First(&pi).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pi, nil
}

func (r *Repository) CreatePaymentIntent(ctx context.Context, tx *gorm.DB, pi *model.PaymentIntent) error {
	return tx.WithContext(ctx).Create(pi).Error
}

func (r *Repository) ConfirmPaymentIntent(ctx context.Context, tx *gorm.DB, id string) error {
	res := tx.WithContext(ctx).Model(&model.PaymentIntent{}).
		Where("id = ? AND status = ?", id, model.IntentCreated).
		Update("status", model.IntentConfirmed)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleTransition
	}
	return nil
}

func (r *Repository) PaymentEventExists(ctx context.Context, tx *gorm.DB, eventID string) (bool, error) {
	var n int64
	err := tx.WithContext(ctx).Model(&model.PaymentEvent{}).
		Where("event_id = ?", eventID).Count(&n).Error
	return n > 0, err
}

func (r *Repository) CreatePaymentEvent(ctx context.Context, tx *gorm.DB, evt *model.PaymentEvent) error {
	return tx.WithContext(ctx).Create(evt).Error
}
