package domain

// NVSストアの固定4カラムスキーマ（key,type,encoding,value）で使う値。
const (
	// NVSKeyAESKey は対称鍵エントリのキー名。
	NVSKeyAESKey = "aes_key"
	// NVSKeyHardwareVersion はハードウェアバージョンエントリのキー名。
	NVSKeyHardwareVersion = "hv"

	NVSTypeData      = "data"
	NVSTypeNamespace = "namespace"
	NVSTypeFile      = "file"

	NVSEncodingString = "string"
)

// NVSRow はNVSストアの1行を表す。
type NVSRow struct {
	Key      string
	Type     string
	Encoding string
	Value    string
}

// Record はCSV書き込み用のレコードを返す。
func (r NVSRow) Record() []string {
	return []string{r.Key, r.Type, r.Encoding, r.Value}
}

// DataRow はdata/string型のNVS行を生成する。
func DataRow(key, value string) NVSRow {
	return NVSRow{
		Key:      key,
		Type:     NVSTypeData,
		Encoding: NVSEncodingString,
		Value:    value,
	}
}
