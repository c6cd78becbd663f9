// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"device-provisioner/internal/domain"
)

// デバイスフォルダ内のファイル名。
const (
	NVSFileName     = "nvs.csv"
	BlobFileName    = "certs.bin"
	CertFileName    = "device.pem.crt"
	PrivKeyFileName = "private.pem.key"
)

// deviceFiles はScaffoldで作成するプレースホルダファイル一式。
var deviceFiles = []string{CertFileName, PrivKeyFileName, NVSFileName}

// NVSRepository はデバイスごとのNVSストア（CSV）とフォルダ構成を管理する。
type NVSRepository struct {
	certsDir string
}

// NewNVSRepository は新しいNVSRepositoryを生成する。
func NewNVSRepository(certsDir string) *NVSRepository {
	return &NVSRepository{certsDir: certsDir}
}

// DeviceDir は対象デバイスのフォルダパスを返す。
func (r *NVSRepository) DeviceDir(mac domain.MAC) string {
	return filepath.Join(r.certsDir, mac.DirName())
}

// CSVPath は対象デバイスのNVSストアのパスを返す。
func (r *NVSRepository) CSVPath(mac domain.MAC) string {
	return filepath.Join(r.DeviceDir(mac), NVSFileName)
}

// BlobPath は対象デバイスの証明書ブロブのパスを返す。
func (r *NVSRepository) BlobPath(mac domain.MAC) string {
	return filepath.Join(r.DeviceDir(mac), BlobFileName)
}

// HasCSV はNVSストアが存在するか確認する。
func (r *NVSRepository) HasCSV(mac domain.MAC) bool {
	_, err := os.Stat(r.CSVPath(mac))
	return err == nil
}

// HasBlob は証明書ブロブが存在するか確認する。
func (r *NVSRepository) HasBlob(mac domain.MAC) bool {
	_, err := os.Stat(r.BlobPath(mac))
	return err == nil
}

// Scaffold はデバイスフォルダと空のプレースホルダファイルを作成し、
// NVSストアにヘッダ行と記述子行を書き込む。既存のフォルダ・ファイルが
// あってもエラーにしない（nvs.csvは常に上書きされる）。
func (r *NVSRepository) Scaffold(ctx context.Context, mac domain.MAC) error {
	dir := r.DeviceDir(mac)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating device folder %s: %w", dir, err)
	}

	for _, name := range deviceFiles {
		path := filepath.Join(dir, name)
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating file %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("closing file %s: %w", path, err)
		}
	}

	// NVSストアには他ファイルをパス参照する記述子行を書き込む。
	records := [][]string{
		{"key", "type", "encoding", "value"},
		{"certs", domain.NVSTypeNamespace, "", ""},
		{"priv_key", domain.NVSTypeFile, domain.NVSEncodingString, filepath.Join(dir, PrivKeyFileName)},
		{"certificate", domain.NVSTypeFile, domain.NVSEncodingString, filepath.Join(dir, CertFileName)},
	}

	csvPath := filepath.Join(dir, NVSFileName)
	f, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("creating nvs store %s: %w", csvPath, err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		f.Close()
		return fmt.Errorf("writing nvs store %s: %w", csvPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing nvs store %s: %w", csvPath, err)
	}

	slog.InfoContext(ctx, "scaffolded device folder",
		"operation", "scaffold",
		"mac", mac.DirName(),
		"dir", dir,
	)
	return nil
}

// AppendIfAbsent は先頭カラムが一致する行が無い場合のみ1行追記する。
// 追記した場合はtrueを返し、既に存在する場合は何もせずfalseを返す。
// 読み取りと追記の間にファイルロックは取らない（単一プロセス前提）。
func (r *NVSRepository) AppendIfAbsent(ctx context.Context, mac domain.MAC, row domain.NVSRow) (bool, error) {
	path := r.CSVPath(mac)

	rows, err := readRows(path)
	if err != nil {
		return false, err
	}
	for _, rec := range rows {
		if len(rec) > 0 && rec[0] == row.Key {
			return false, nil
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return false, fmt.Errorf("opening nvs store for append: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(row.Record()); err != nil {
		f.Close()
		return false, fmt.Errorf("appending row %q: %w", row.Key, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return false, fmt.Errorf("appending row %q: %w", row.Key, err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("closing nvs store %s: %w", path, err)
	}

	slog.InfoContext(ctx, "appended nvs row",
		"operation", "append_if_absent",
		"mac", mac.DirName(),
		"key", row.Key,
	)
	return true, nil
}

// Rows はNVSストアの全行を返す。
func (r *NVSRepository) Rows(ctx context.Context, mac domain.MAC) ([][]string, error) {
	return readRows(r.CSVPath(mac))
}

func readRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrStoreNotFound, path)
		}
		return nil, fmt.Errorf("opening nvs store %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	// 記述子行はvalueが空のためカラム数の検査は行わない
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading nvs store %s: %w", path, err)
	}
	return rows, nil
}
