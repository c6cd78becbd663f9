// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import (
	"fmt"
	"strings"
	"time"
)

// MAC はデバイスのMACアドレスを表す。コロン区切りのまま保持し、
// 大文字小文字は入力のものを変換しない。
type MAC string

// String はMACアドレスを入力のままの形式で返す。
func (m MAC) String() string {
	return strings.TrimSpace(string(m))
}

// DirName はファイルシステム用にコロンを除去したMACアドレスを返す。
func (m MAC) DirName() string {
	return strings.ReplaceAll(m.String(), ":", "")
}

// Validate はコロン除去後に12桁の16進数であることを確認する。
func (m MAC) Validate() error {
	stripped := m.DirName()
	if len(stripped) != 12 {
		return fmt.Errorf("%w: %q", ErrInvalidMAC, m.String())
	}
	for _, c := range stripped {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidMAC, m.String())
		}
	}
	return nil
}

// DeviceStatus はプロビジョニング台帳上のデバイスの状態を表す。
type DeviceStatus string

const (
	// StatusScaffolded はデバイスフォルダが作成済みであることを表す。
	StatusScaffolded DeviceStatus = "scaffolded"
	// StatusGenerated は証明書ブロブが生成済みであることを表す。
	StatusGenerated DeviceStatus = "generated"
	// StatusFlashed はブロブがデバイスに書き込み済みであることを表す。
	StatusFlashed DeviceStatus = "flashed"
)

// ProvisionedDevice はプロビジョニング台帳のエントリを表す。
// MACはコロン除去済みの形式で保持する。
type ProvisionedDevice struct {
	ID              string
	MAC             string
	HardwareVersion string
	// KeyFingerprint は注入したAES鍵のSHA-256フィンガープリント（hex）。
	KeyFingerprint string
	// EscrowedKey はKMSで暗号化したAES鍵のコピー。エスクロー無効時はnil。
	EscrowedKey []byte
	Status      DeviceStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
