package infra

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"device-provisioner/config"
	"device-provisioner/internal/domain"
)

// macMarker はread_mac出力中でMACアドレスの直前に現れるマーカー文字列。
const macMarker = "MAC: "

// EsptoolClient はフラッシュツール（esptool）の呼び出しをラップする。
type EsptoolClient struct {
	runner  *CommandRunner
	command []string
	baud    string
	offset  string
}

// NewEsptoolClient は設定からEsptoolClientを生成する。
// ESPTOOL_CMDは "python3 -m esptool" のようにスペース区切りで指定する。
func NewEsptoolClient(cfg *config.Config) *EsptoolClient {
	return &EsptoolClient{
		runner:  NewCommandRunner(),
		command: strings.Fields(cfg.EsptoolCmd),
		baud:    cfg.FlashBaud,
		offset:  cfg.FlashOffset,
	}
}

// ReadMAC はread_macサブコマンドを実行し、結合出力から "MAC: " に続く
// アドレスを抽出する。マーカーが無い、またはツールが非ゼロ終了した場合は
// ErrMACNotFoundを返す。
func (c *EsptoolClient) ReadMAC(ctx context.Context, port string) (domain.MAC, error) {
	args := c.args("--port", port, "read_mac")
	out, code, err := c.runner.Output(ctx, c.command[0], args...)
	if err != nil {
		return "", err
	}
	if code != 0 {
		return "", fmt.Errorf("%w: read_mac exited with code %d", domain.ErrMACNotFound, code)
	}

	mac, ok := parseMACOutput(out)
	if !ok {
		return "", fmt.Errorf("%w: marker %q not present in output", domain.ErrMACNotFound, macMarker)
	}
	return domain.MAC(mac), nil
}

// WriteFlash はwrite_flashサブコマンドで固定オフセットにバイナリを書き込む。
func (c *EsptoolClient) WriteFlash(ctx context.Context, port string, binPath string) (int, error) {
	args := c.args("--port", port, "--baud", c.baud, "write_flash", c.offset, binPath)
	return c.runner.Run(ctx, c.command[0], args...)
}

// args はコマンドのモジュール引数（"-m esptool" 等）の後ろに引数を連結する。
func (c *EsptoolClient) args(extra ...string) []string {
	args := make([]string, 0, len(c.command)-1+len(extra))
	args = append(args, c.command[1:]...)
	return append(args, extra...)
}

// parseMACOutput は出力を行単位に走査し、最初に現れた "MAC: " 以降の
// アドレスを返す。
func parseMACOutput(out string) (string, bool) {
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		i := strings.Index(line, macMarker)
		if i < 0 {
			continue
		}
		mac := strings.TrimSpace(line[i+len(macMarker):])
		if mac != "" {
			return mac, true
		}
	}
	return "", false
}
