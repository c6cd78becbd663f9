package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"device-provisioner/internal/domain"
)

const testMAC = domain.MAC("AA:BB:CC:DD:EE:FF")

// setupRepo はテスト用の一時ディレクトリを使うNVSRepositoryを作成する。
func setupRepo(t *testing.T) *NVSRepository {
	t.Helper()
	return NewNVSRepository(filepath.Join(t.TempDir(), "certs"))
}

func TestNVSRepository_Scaffold(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	if err := repo.Scaffold(ctx, testMAC); err != nil {
		t.Fatalf("Scaffold failed: %v", err)
	}

	dir := repo.DeviceDir(testMAC)
	if filepath.Base(dir) != "AABBCCDDEEFF" {
		t.Errorf("expected device dir AABBCCDDEEFF, got %s", filepath.Base(dir))
	}

	// プレースホルダファイルが全て作成されている
	for _, name := range []string{CertFileName, PrivKeyFileName, NVSFileName} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected file %s to exist: %v", name, err)
		}
	}

	// nvs.csvにはヘッダ行と記述子行が書かれている
	rows, err := repo.Rows(ctx, testMAC)
	if err != nil {
		t.Fatalf("Rows failed: %v", err)
	}
	want := [][]string{
		{"key", "type", "encoding", "value"},
		{"certs", "namespace", "", ""},
		{"priv_key", "file", "string", filepath.Join(dir, PrivKeyFileName)},
		{"certificate", "file", "string", filepath.Join(dir, CertFileName)},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("scaffolded rows = %v, want %v", rows, want)
	}
}

func TestNVSRepository_Scaffold_Idempotent(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	// フォルダと一部のファイルが先に存在していてもエラーにならない
	dir := repo.DeviceDir(testMAC)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to pre-create dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, CertFileName), []byte("stale"), 0o644); err != nil {
		t.Fatalf("failed to pre-create file: %v", err)
	}

	if err := repo.Scaffold(ctx, testMAC); err != nil {
		t.Fatalf("Scaffold failed: %v", err)
	}
	if err := repo.Scaffold(ctx, testMAC); err != nil {
		t.Fatalf("second Scaffold failed: %v", err)
	}

	rows, err := repo.Rows(ctx, testMAC)
	if err != nil {
		t.Fatalf("Rows failed: %v", err)
	}
	if len(rows) != 4 {
		t.Errorf("expected 4 rows after repeated scaffold, got %d", len(rows))
	}
}

func TestNVSRepository_AppendIfAbsent(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	if err := repo.Scaffold(ctx, testMAC); err != nil {
		t.Fatalf("Scaffold failed: %v", err)
	}

	// 新規キーは1行だけ追記される
	added, err := repo.AppendIfAbsent(ctx, testMAC, domain.DataRow(domain.NVSKeyAESKey, "00112233445566778899aabbccddeeff"))
	if err != nil {
		t.Fatalf("AppendIfAbsent failed: %v", err)
	}
	if !added {
		t.Error("expected added=true for new key")
	}

	rows, err := repo.Rows(ctx, testMAC)
	if err != nil {
		t.Fatalf("Rows failed: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(rows))
	}
	want := []string{"aes_key", "data", "string", "00112233445566778899aabbccddeeff"}
	if !reflect.DeepEqual(rows[4], want) {
		t.Errorf("appended row = %v, want %v", rows[4], want)
	}

	// 同じキーの再追記は値が違ってもno-op
	added, err = repo.AppendIfAbsent(ctx, testMAC, domain.DataRow(domain.NVSKeyAESKey, "ffffffffffffffffffffffffffffffff"))
	if err != nil {
		t.Fatalf("AppendIfAbsent failed: %v", err)
	}
	if added {
		t.Error("expected added=false for existing key")
	}

	after, err := repo.Rows(ctx, testMAC)
	if err != nil {
		t.Fatalf("Rows failed: %v", err)
	}
	if !reflect.DeepEqual(rows, after) {
		t.Errorf("store changed by duplicate append: %v != %v", rows, after)
	}
}

func TestNVSRepository_AppendIfAbsent_StoreMissing(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	_, err := repo.AppendIfAbsent(ctx, testMAC, domain.DataRow(domain.NVSKeyHardwareVersion, "1.0"))
	if err == nil {
		t.Fatal("expected error for missing store, got nil")
	}
	if !errors.Is(err, domain.ErrStoreNotFound) {
		t.Errorf("expected ErrStoreNotFound, got %v", err)
	}
}

func TestNVSRepository_Paths(t *testing.T) {
	repo := NewNVSRepository("certs")

	if got := repo.CSVPath(testMAC); got != filepath.Join("certs", "AABBCCDDEEFF", "nvs.csv") {
		t.Errorf("CSVPath = %q", got)
	}
	if got := repo.BlobPath(testMAC); got != filepath.Join("certs", "AABBCCDDEEFF", "certs.bin") {
		t.Errorf("BlobPath = %q", got)
	}
	if repo.HasCSV(testMAC) {
		t.Error("expected HasCSV=false before scaffold")
	}
	if repo.HasBlob(testMAC) {
		t.Error("expected HasBlob=false before generation")
	}
}
