// Package main はCLIツールのエントリポイント。
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"device-provisioner/config"
	"device-provisioner/internal/domain"
	"device-provisioner/internal/infra"
	"device-provisioner/internal/repository"
	"device-provisioner/internal/usecase"
)

const version = "1.0.0"

var (
	flagPort     string
	flagMAC      string
	flagHV       string
	flagGenerate bool
)

// exitCode は外部ツールの終了コードをそのまま伝搬するために保持する。
var exitCode int

func main() {
	rootCmd := &cobra.Command{
		Use:   "provctl",
		Short: "ESP32 device provisioning CLI",
		Long: `provctl provisions ESP32-class devices: it derives the device MAC address,
prepares a per-device credential folder, injects a symmetric key and hardware
version into the NVS store, builds the certificate blob and flashes it over
the serial port.`,
		SilenceUsage: true,
		RunE:         runRoot,
	}

	rootCmd.Flags().StringVar(&flagPort, "port", "", "Target serial port (e.g. /dev/ttyUSB0, COM20)")
	rootCmd.Flags().StringVar(&flagMAC, "mac", "", "Target device MAC address")
	rootCmd.Flags().StringVar(&flagHV, "hv", "", "Target hardware version string")
	rootCmd.Flags().BoolVarP(&flagGenerate, "generate", "g", false, "Generate device folder")

	rootCmd.AddCommand(devicesCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
	os.Exit(exitCode)
}

// runRoot はフラグの組み合わせでワークフローを選択する。
//
//	--port --mac --hv : ブロブ生成→成功時のみフラッシュ
//	--port --hv       : MAC自動検出→生成→フラッシュ
//	-g --mac          : デバイスフォルダ作成
//	-g --port         : MAC自動検出→デバイスフォルダ作成
//	--port            : MAC読み取りのみ
func runRoot(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	switch {
	case flagPort != "" && flagMAC != "" && flagHV != "":
		return withApp(ctx, func(ctx context.Context, app *app) error {
			code, err := app.service.ProvisionAndFlash(ctx, domain.MAC(flagMAC), flagHV, flagPort)
			return finish(code, err)
		})

	case flagPort != "" && flagHV != "":
		return withApp(ctx, func(ctx context.Context, app *app) error {
			mac, err := app.service.DiscoverMAC(ctx, flagPort)
			if err != nil {
				return reportNoDevice(err)
			}
			fmt.Println("MAC:", mac)
			code, err := app.service.ProvisionAndFlash(ctx, mac, flagHV, flagPort)
			return finish(code, err)
		})

	case flagGenerate && flagMAC != "":
		return withApp(ctx, func(ctx context.Context, app *app) error {
			return app.service.ScaffoldDevice(ctx, domain.MAC(flagMAC))
		})

	case flagGenerate && flagPort != "":
		return withApp(ctx, func(ctx context.Context, app *app) error {
			mac, err := app.service.DiscoverMAC(ctx, flagPort)
			if err != nil {
				return reportNoDevice(err)
			}
			fmt.Println("MAC:", mac)
			return app.service.ScaffoldDevice(ctx, mac)
		})

	case flagPort != "":
		return withApp(ctx, func(ctx context.Context, app *app) error {
			mac, err := app.service.DiscoverMAC(ctx, flagPort)
			if err != nil {
				return reportNoDevice(err)
			}
			fmt.Println("MAC:", mac)
			return nil
		})

	default:
		return cmd.Help()
	}
}

// finish は外部ツールの終了コードを記録し、エラーには対処方法を添える。
func finish(code int, err error) error {
	if err != nil {
		if errors.Is(err, domain.ErrStoreNotFound) {
			fmt.Fprintln(os.Stderr, "Error:", err)
			fmt.Fprintln(os.Stderr, "Suggestion: generate the device folder first")
			fmt.Fprintln(os.Stderr, "Commands:")
			fmt.Fprintln(os.Stderr, "- (auto-detect) provctl --port <port> -g")
			fmt.Fprintln(os.Stderr, "- (manual)      provctl --mac <mac> -g")
			exitCode = 1
			return nil
		}
		if errors.Is(err, domain.ErrBlobNotFound) {
			fmt.Fprintln(os.Stderr, "Error:", err)
			fmt.Fprintln(os.Stderr, "Suggestion: run the generate step first")
			fmt.Fprintln(os.Stderr, "- provctl --port <port> --mac <mac> --hv <version>")
			exitCode = 1
			return nil
		}
		return err
	}
	exitCode = code
	return nil
}

// reportNoDevice はMAC検出失敗をユーザー向けメッセージに変換する。
func reportNoDevice(err error) error {
	if errors.Is(err, domain.ErrMACNotFound) {
		fmt.Println("Device Not Connected!")
		exitCode = 1
		return nil
	}
	return err
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("provctl version %s\n", version)
		},
	}
}

// app はワークフロー実行に必要な依存一式を保持する。
type app struct {
	cfg     *config.Config
	service *usecase.ProvisionService
}

// withApp は依存を初期化してfnを実行し、終了時に後始末する。
func withApp(ctx context.Context, fn func(ctx context.Context, app *app) error) error {
	// .envファイルを読み込む（存在しない場合は無視）
	_ = godotenv.Load()

	cfg := config.Load()

	var logLevel slog.Level
	switch cfg.LogLevel {
	case "DEBUG":
		logLevel = slog.LevelDebug
	case "WARN":
		logLevel = slog.LevelWarn
	case "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	// トレーサー初期化（ロガー設定の前に実行）
	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(ctx); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	infra.SetupLogger(cfg, logLevel)

	// 台帳はDATABASE_URLが設定されている場合のみ有効
	var registry usecase.DeviceRegistry
	if cfg.DatabaseURL != "" {
		db, err := infra.NewDB(cfg)
		if err != nil {
			return fmt.Errorf("initializing registry database: %w", err)
		}
		if err := db.AutoMigrate(&repository.ProvisionedDeviceModel{}); err != nil {
			return fmt.Errorf("migrating registry database: %w", err)
		}
		registry = repository.NewDeviceRepository(db)
	}

	// 鍵エスクローはKMS_KEY_NAMEが設定されている場合のみ有効
	var escrow usecase.KMSClient
	if cfg.KMSKeyName != "" {
		kmsClient, err := infra.NewKMSClient(ctx, cfg)
		if err != nil {
			return fmt.Errorf("initializing KMS client: %w", err)
		}
		defer func() {
			if err := kmsClient.Close(); err != nil {
				slog.Error("failed to close KMS client", "error", err)
			}
		}()
		escrow = kmsClient
	}

	store := repository.NewNVSRepository(cfg.CertsDir)
	service := usecase.NewProvisionService(
		store,
		registry,
		infra.NewEsptoolClient(cfg),
		infra.NewCertGenClient(cfg),
		escrow,
		cfg.PartitionSize,
	)

	return fn(ctx, &app{cfg: cfg, service: service})
}
