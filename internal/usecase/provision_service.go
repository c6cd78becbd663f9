// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"device-provisioner/internal/domain"
)

const keySize = 16 // AES-128 = 128 bits = 16 bytes

var tracer = otel.Tracer("device-provisioner/internal/usecase")

// NVSStore はデバイスごとのNVSストアへのアクセスのインターフェース。
type NVSStore interface {
	Scaffold(ctx context.Context, mac domain.MAC) error
	AppendIfAbsent(ctx context.Context, mac domain.MAC, row domain.NVSRow) (bool, error)
	CSVPath(mac domain.MAC) string
	BlobPath(mac domain.MAC) string
	HasCSV(mac domain.MAC) bool
	HasBlob(mac domain.MAC) bool
}

// DeviceRegistry はプロビジョニング台帳のインターフェース。
type DeviceRegistry interface {
	ExistsByMAC(ctx context.Context, mac string) (bool, error)
	Create(ctx context.Context, device *domain.ProvisionedDevice) error
	FindByMAC(ctx context.Context, mac string) (*domain.ProvisionedDevice, error)
	FindAll(ctx context.Context) ([]*domain.ProvisionedDevice, error)
	UpdateStatus(ctx context.Context, id string, status domain.DeviceStatus) error
	SetKeyEscrow(ctx context.Context, id string, fingerprint string, escrowed []byte) error
}

// Flasher はシリアル経由のMAC読み取りとフラッシュ書き込みのインターフェース。
type Flasher interface {
	ReadMAC(ctx context.Context, port string) (domain.MAC, error)
	WriteFlash(ctx context.Context, port string, binPath string) (int, error)
}

// BlobGenerator は証明書ブロブ生成のインターフェース。
type BlobGenerator interface {
	Generate(ctx context.Context, csvPath, binPath string, size int) (int, error)
}

// KMSClient は鍵エスクロー用の暗号化のインターフェース。
type KMSClient interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
}

// ProvisionService はデバイスプロビジョニングのビジネスロジックを提供する。
// registryとkmsはnil可（台帳・エスクロー無効）。
type ProvisionService struct {
	store         NVSStore
	registry      DeviceRegistry
	flasher       Flasher
	generator     BlobGenerator
	kms           KMSClient
	partitionSize int
}

// NewProvisionService は新しいProvisionServiceを生成する。
func NewProvisionService(store NVSStore, registry DeviceRegistry, flasher Flasher, generator BlobGenerator, kms KMSClient, partitionSize int) *ProvisionService {
	return &ProvisionService{
		store:         store,
		registry:      registry,
		flasher:       flasher,
		generator:     generator,
		kms:           kms,
		partitionSize: partitionSize,
	}
}

// generateAESKey は対称鍵を生成する。
func generateAESKey() ([]byte, error) {
	key := make([]byte, keySize)
	_, err := rand.Read(key)
	if err != nil {
		return nil, fmt.Errorf("generating random key: %w", err)
	}
	return key, nil
}

// DiscoverMAC はシリアルポート経由でデバイスのMACアドレスを読み取る。
func (s *ProvisionService) DiscoverMAC(ctx context.Context, port string) (domain.MAC, error) {
	ctx, span := tracer.Start(ctx, "ProvisionService.DiscoverMAC",
		trace.WithAttributes(attribute.String("serial.port", port)))
	defer span.End()

	mac, err := s.flasher.ReadMAC(ctx, port)
	if err != nil {
		return "", err
	}
	span.SetAttributes(attribute.String("device.mac", mac.DirName()))
	return mac, nil
}

// ScaffoldDevice はデバイスフォルダとプレースホルダファイルを作成し、
// 台帳が有効なら登録する。
func (s *ProvisionService) ScaffoldDevice(ctx context.Context, mac domain.MAC) error {
	if err := mac.Validate(); err != nil {
		return err
	}

	ctx, span := tracer.Start(ctx, "ProvisionService.ScaffoldDevice",
		trace.WithAttributes(attribute.String("device.mac", mac.DirName())))
	defer span.End()

	if err := s.store.Scaffold(ctx, mac); err != nil {
		return err
	}

	s.recordDevice(ctx, mac, "", domain.StatusScaffolded)
	return nil
}

// GenerateBlob はNVSストアにAES鍵とハードウェアバージョンを冪等に注入し、
// 外部の生成ツールで証明書ブロブを作成する。NVSストアが存在しない場合は
// ErrStoreNotFoundを返す。戻り値のintは生成ツールの終了コード。
func (s *ProvisionService) GenerateBlob(ctx context.Context, mac domain.MAC, version string) (int, error) {
	if err := mac.Validate(); err != nil {
		return 1, err
	}

	ctx, span := tracer.Start(ctx, "ProvisionService.GenerateBlob",
		trace.WithAttributes(
			attribute.String("device.mac", mac.DirName()),
			attribute.String("device.hv", version),
		))
	defer span.End()

	csvPath := s.store.CSVPath(mac)
	if !s.store.HasCSV(mac) {
		return 1, fmt.Errorf("%w: %s", domain.ErrStoreNotFound, csvPath)
	}

	device := s.recordDevice(ctx, mac, version, domain.StatusScaffolded)

	if err := s.injectAESKey(ctx, mac, device); err != nil {
		return 1, err
	}
	if err := s.injectHardwareVersion(ctx, mac, version); err != nil {
		return 1, err
	}

	blobPath := s.store.BlobPath(mac)
	slog.InfoContext(ctx, "generating certificate blob",
		"mac", mac.DirName(),
		"csv", csvPath,
		"out", blobPath,
		"size", s.partitionSize,
	)

	code, err := s.generator.Generate(ctx, csvPath, blobPath, s.partitionSize)
	if err != nil {
		return code, err
	}
	if code == 0 && device != nil {
		s.updateStatus(ctx, device.ID, domain.StatusGenerated)
	}
	return code, nil
}

// FlashDevice は生成済みの証明書ブロブをデバイスに書き込む。ブロブが
// 存在しない場合はErrBlobNotFoundを返す。戻り値のintはフラッシュツールの
// 終了コード。
func (s *ProvisionService) FlashDevice(ctx context.Context, mac domain.MAC, port string) (int, error) {
	if err := mac.Validate(); err != nil {
		return 1, err
	}

	ctx, span := tracer.Start(ctx, "ProvisionService.FlashDevice",
		trace.WithAttributes(
			attribute.String("device.mac", mac.DirName()),
			attribute.String("serial.port", port),
		))
	defer span.End()

	blobPath := s.store.BlobPath(mac)
	if !s.store.HasBlob(mac) {
		return 1, fmt.Errorf("%w: %s", domain.ErrBlobNotFound, blobPath)
	}

	slog.InfoContext(ctx, "flashing certificate blob",
		"mac", mac.DirName(),
		"bin", blobPath,
		"port", port,
	)

	code, err := s.flasher.WriteFlash(ctx, port, blobPath)
	if err != nil {
		return code, err
	}
	if code == 0 {
		if device := s.findDevice(ctx, mac); device != nil {
			s.updateStatus(ctx, device.ID, domain.StatusFlashed)
		}
	}
	return code, nil
}

// ProvisionAndFlash はブロブを生成し、生成ツールが0で終了した場合のみ
// フラッシュする。
func (s *ProvisionService) ProvisionAndFlash(ctx context.Context, mac domain.MAC, version string, port string) (int, error) {
	code, err := s.GenerateBlob(ctx, mac, version)
	if err != nil || code != 0 {
		return code, err
	}
	return s.FlashDevice(ctx, mac, port)
}

// ListDevices は台帳上の全デバイスを取得する。
func (s *ProvisionService) ListDevices(ctx context.Context) ([]*domain.ProvisionedDevice, error) {
	if s.registry == nil {
		return nil, domain.ErrRegistryDisabled
	}
	return s.registry.FindAll(ctx)
}

// injectAESKey はAES鍵エントリが無い場合のみ生成して追記し、新規追記時は
// 台帳にフィンガープリントとエスクローコピーを記録する。
func (s *ProvisionService) injectAESKey(ctx context.Context, mac domain.MAC, device *domain.ProvisionedDevice) error {
	key, err := generateAESKey()
	if err != nil {
		return err
	}

	added, err := s.store.AppendIfAbsent(ctx, mac, domain.DataRow(domain.NVSKeyAESKey, hex.EncodeToString(key)))
	if err != nil {
		return err
	}
	if !added {
		slog.InfoContext(ctx, "AES key already exists", "mac", mac.DirName())
		return nil
	}

	s.escrowKey(ctx, device, key)
	return nil
}

// injectHardwareVersion はhvエントリが無い場合のみ追記する。
func (s *ProvisionService) injectHardwareVersion(ctx context.Context, mac domain.MAC, version string) error {
	added, err := s.store.AppendIfAbsent(ctx, mac, domain.DataRow(domain.NVSKeyHardwareVersion, version))
	if err != nil {
		return err
	}
	if !added {
		slog.InfoContext(ctx, "hardware version key already exists", "mac", mac.DirName())
	}
	return nil
}

// escrowKey は鍵のフィンガープリントと、KMSが有効なら暗号化コピーを
// 台帳に記録する。台帳への記録失敗でプロビジョニング自体は止めない。
func (s *ProvisionService) escrowKey(ctx context.Context, device *domain.ProvisionedDevice, key []byte) {
	if device == nil {
		return
	}

	sum := sha256.Sum256(key)
	fingerprint := hex.EncodeToString(sum[:])

	var escrowed []byte
	if s.kms != nil {
		var err error
		escrowed, err = s.kms.Encrypt(ctx, key)
		if err != nil {
			slog.WarnContext(ctx, "failed to escrow AES key",
				"mac", device.MAC,
				"error", err,
			)
			escrowed = nil
		}
	}

	if err := s.registry.SetKeyEscrow(ctx, device.ID, fingerprint, escrowed); err != nil {
		slog.WarnContext(ctx, "failed to record key fingerprint",
			"mac", device.MAC,
			"error", err,
		)
	}
}

// recordDevice は台帳にデバイスを登録（既存なら取得）する。台帳が無効、
// または記録に失敗した場合はnilを返し、ワークフローは継続する。
func (s *ProvisionService) recordDevice(ctx context.Context, mac domain.MAC, version string, status domain.DeviceStatus) *domain.ProvisionedDevice {
	if s.registry == nil {
		return nil
	}

	device, err := s.registry.FindByMAC(ctx, mac.DirName())
	if err != nil {
		slog.WarnContext(ctx, "failed to query device registry",
			"mac", mac.DirName(),
			"error", err,
		)
		return nil
	}
	if device != nil {
		return device
	}

	device = &domain.ProvisionedDevice{
		MAC:             mac.DirName(),
		HardwareVersion: version,
		Status:          status,
	}
	if err := s.registry.Create(ctx, device); err != nil {
		slog.WarnContext(ctx, "failed to register device",
			"mac", mac.DirName(),
			"error", err,
		)
		return nil
	}
	return device
}

func (s *ProvisionService) findDevice(ctx context.Context, mac domain.MAC) *domain.ProvisionedDevice {
	if s.registry == nil {
		return nil
	}
	device, err := s.registry.FindByMAC(ctx, mac.DirName())
	if err != nil {
		slog.WarnContext(ctx, "failed to query device registry",
			"mac", mac.DirName(),
			"error", err,
		)
		return nil
	}
	return device
}

func (s *ProvisionService) updateStatus(ctx context.Context, id string, status domain.DeviceStatus) {
	if err := s.registry.UpdateStatus(ctx, id, status); err != nil {
		slog.WarnContext(ctx, "failed to update device status",
			"id", id,
			"status", string(status),
			"error", err,
		)
	}
}
