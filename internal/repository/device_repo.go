package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ripplehq/ripple/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeviceRepository implements DeviceStore on PostgreSQL.
type DeviceRepository struct {
	db *gorm.DB
}

var _ DeviceStore = (*DeviceRepository)(nil)

func NewDeviceRepository(db *gorm.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Register adds or refreshes a device token
func (r *DeviceRepository) Register(ctx context.Context, userID uuid.UUID, token, deviceType string) error {
	device := model.UserDevice{
		UserID:       userID,
		FCMToken:     token,
		DeviceType:   deviceType,
		LastActiveAt: time.Now(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "fcm_token"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"last_active_at": time.Now(), "device_type": deviceType}),
		}).
		Create(&device).Error
}

// TokensForUsers returns all device tokens registered by the given users
func (r *DeviceRepository) TokensForUsers(ctx context.Context, userIDs []uuid.UUID) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var tokens []string
	err := r.db.WithContext(ctx).Model(&model.UserDevice{}).
		Where("user_id IN ?", userIDs).
		Pluck("fcm_token", &tokens).Error
	return tokens, err
}
