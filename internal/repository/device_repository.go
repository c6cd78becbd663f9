package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"device-provisioner/internal/domain"
)

// ProvisionedDeviceModel はgorm用のモデル定義。
type ProvisionedDeviceModel struct {
	ID              string    `gorm:"type:char(36);primaryKey"`
	MAC             string    `gorm:"column:mac;type:varchar(17);not null;uniqueIndex:uk_device_mac"`
	HardwareVersion string    `gorm:"type:varchar(64)"`
	KeyFingerprint  string    `gorm:"type:char(64)"`
	EscrowedKey     []byte    `gorm:"type:blob"`
	Status          string    `gorm:"type:varchar(16);not null;default:'scaffolded';index:idx_device_status"`
	CreatedAt       time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (ProvisionedDeviceModel) TableName() string {
	return "provisioned_devices"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *ProvisionedDeviceModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// toDomain はモデルをドメインエンティティに変換する。
func (m *ProvisionedDeviceModel) toDomain() *domain.ProvisionedDevice {
	return &domain.ProvisionedDevice{
		ID:              m.ID,
		MAC:             m.MAC,
		HardwareVersion: m.HardwareVersion,
		KeyFingerprint:  m.KeyFingerprint,
		EscrowedKey:     m.EscrowedKey,
		Status:          domain.DeviceStatus(m.Status),
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// DeviceRepository はプロビジョニング台帳へのデータアクセスを提供する。
// MACはコロン除去済みの形式で保存する。
type DeviceRepository struct {
	db *gorm.DB
}

// NewDeviceRepository は新しいDeviceRepositoryを生成する。
func NewDeviceRepository(db *gorm.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// ExistsByMAC は指定されたMACのデバイスが台帳に存在するか確認する。
func (r *DeviceRepository) ExistsByMAC(ctx context.Context, mac string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&ProvisionedDeviceModel{}).
		Where("mac = ?", mac).
		Count(&count).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to count devices by mac",
			"operation", "exists_by_mac",
			"mac", mac,
			"error", err,
		)
		return false, err
	}
	return count > 0, nil
}

// Create は新しいデバイスを台帳に登録する。
func (r *DeviceRepository) Create(ctx context.Context, device *domain.ProvisionedDevice) error {
	model := &ProvisionedDeviceModel{
		ID:              device.ID,
		MAC:             device.MAC,
		HardwareVersion: device.HardwareVersion,
		KeyFingerprint:  device.KeyFingerprint,
		EscrowedKey:     device.EscrowedKey,
		Status:          string(device.Status),
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create device",
			"operation", "create",
			"mac", device.MAC,
			"error", err,
		)
		return err
	}
	// gormで設定された値をドメインエンティティに反映
	device.ID = model.ID
	device.CreatedAt = model.CreatedAt
	device.UpdatedAt = model.UpdatedAt
	return nil
}

// FindByMAC は指定されたMACのデバイスを取得する。存在しない場合はnilを返す。
func (r *DeviceRepository) FindByMAC(ctx context.Context, mac string) (*domain.ProvisionedDevice, error) {
	var model ProvisionedDeviceModel
	err := r.db.WithContext(ctx).
		Where("mac = ?", mac).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find device",
			"operation", "find_by_mac",
			"mac", mac,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindAll は台帳上の全デバイスを登録順に取得する。
func (r *DeviceRepository) FindAll(ctx context.Context) ([]*domain.ProvisionedDevice, error) {
	var models []ProvisionedDeviceModel
	err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find all devices",
			"operation", "find_all",
			"error", err,
		)
		return nil, err
	}

	devices := make([]*domain.ProvisionedDevice, len(models))
	for i, m := range models {
		devices[i] = m.toDomain()
	}
	return devices, nil
}

// UpdateStatus は指定されたデバイスのステータスを更新する。
func (r *DeviceRepository) UpdateStatus(ctx context.Context, id string, status domain.DeviceStatus) error {
	err := r.db.WithContext(ctx).
		Model(&ProvisionedDeviceModel{}).
		Where("id = ?", id).
		Update("status", string(status)).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to update device status",
			"operation", "update_status",
			"id", id,
			"status", string(status),
			"error", err,
		)
		return err
	}
	return nil
}

// SetKeyEscrow は注入したAES鍵のフィンガープリントとエスクローコピーを記録する。
func (r *DeviceRepository) SetKeyEscrow(ctx context.Context, id string, fingerprint string, escrowed []byte) error {
	err := r.db.WithContext(ctx).
		Model(&ProvisionedDeviceModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"key_fingerprint": fingerprint,
			"escrowed_key":    escrowed,
		}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to set key escrow",
			"operation", "set_key_escrow",
			"id", id,
			"error", err,
		)
		return err
	}
	return nil
}
