package domain

import "errors"

var (
	// ErrStoreNotFound は対象デバイスのNVSストア（nvs.csv）が存在しない場合のエラー。
	ErrStoreNotFound = errors.New("nvs store not found")

	// ErrBlobNotFound は対象デバイスの証明書ブロブ（certs.bin）が存在しない場合のエラー。
	ErrBlobNotFound = errors.New("certificate blob not found")

	// ErrMACNotFound はシリアル経由でMACアドレスを読み取れなかった場合のエラー。
	ErrMACNotFound = errors.New("no MAC address found")

	// ErrInvalidMAC はMACアドレスの形式が不正な場合のエラー。
	ErrInvalidMAC = errors.New("invalid MAC address")

	// ErrToolNotFound は外部ツールの実行ファイルが見つからない場合のエラー。
	ErrToolNotFound = errors.New("external tool not found")

	// ErrDeviceNotFound は台帳に対象デバイスが存在しない場合のエラー。
	ErrDeviceNotFound = errors.New("device not found")

	// ErrRegistryDisabled はDATABASE_URL未設定で台帳機能を使った場合のエラー。
	ErrRegistryDisabled = errors.New("device registry is not configured")
)
