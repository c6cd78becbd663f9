// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"os"
	"strconv"
)

// Config はアプリケーション設定を表す。
type Config struct {
	// CertsDir はデバイスごとの認証情報フォルダを配置するルートディレクトリ。
	CertsDir string
	// EsptoolCmd はフラッシュツールの起動コマンド（スペース区切り）。
	EsptoolCmd string
	// CertGenCmd は証明書ブロブ生成ツールの起動コマンド（スペース区切り）。
	CertGenCmd string
	// FlashBaud はwrite_flash時のボーレート。
	FlashBaud string
	// FlashOffset はブロブを書き込むフラッシュオフセット。
	FlashOffset string
	// PartitionSize は生成するブロブのサイズ（バイト）。
	PartitionSize int

	// DatabaseURL はプロビジョニング台帳のDSN。未設定なら台帳は無効。
	DatabaseURL string
	// KMSKeyName はAES鍵エスクロー用のCloud KMSキー名。未設定ならエスクローは無効。
	KMSKeyName         string
	GoogleCloudProject string

	LogLevel string

	OtelEnabled      bool
	OtelEndpoint     string
	OtelServiceName  string
	OtelSamplingRate float64
}

// Load は環境変数から設定を読み込む。
func Load() *Config {
	return &Config{
		CertsDir:      getEnv("CERTS_DIR", "certs"),
		EsptoolCmd:    getEnv("ESPTOOL_CMD", "python3 -m esptool"),
		CertGenCmd:    getEnv("CERTGEN_CMD", "python3 cert_gen.py"),
		FlashBaud:     getEnv("FLASH_BAUD", "115200"),
		FlashOffset:   getEnv("FLASH_OFFSET", "0x9000"),
		PartitionSize: getEnvInt("NVS_PART_SIZE", 16384),

		DatabaseURL:        os.Getenv("DATABASE_URL"),
		KMSKeyName:         os.Getenv("KMS_KEY_NAME"),
		GoogleCloudProject: os.Getenv("GOOGLE_CLOUD_PROJECT"),

		LogLevel: getEnv("LOG_LEVEL", "INFO"),

		OtelEnabled:      getEnvBool("OTEL_ENABLED", false),
		OtelEndpoint:     getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OtelServiceName:  getEnv("OTEL_SERVICE_NAME", "device-provisioner"),
		OtelSamplingRate: getEnvFloat("OTEL_SAMPLING_RATE", 1.0),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
