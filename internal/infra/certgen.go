package infra

import (
	"context"
	"strconv"
	"strings"

	"device-provisioner/config"
)

// CertGenClient は証明書ブロブ生成ツールの呼び出しをラップする。
// ツールは generate <store-file> <output-file> <size> の形式で起動する。
type CertGenClient struct {
	runner  *CommandRunner
	command []string
}

// NewCertGenClient は設定からCertGenClientを生成する。
func NewCertGenClient(cfg *config.Config) *CertGenClient {
	return &CertGenClient{
		runner:  NewCommandRunner(),
		command: strings.Fields(cfg.CertGenCmd),
	}
}

// Generate はNVSストアから指定サイズのブロブを生成し、終了コードを返す。
func (c *CertGenClient) Generate(ctx context.Context, csvPath, binPath string, size int) (int, error) {
	args := make([]string, 0, len(c.command)+3)
	args = append(args, c.command[1:]...)
	args = append(args, "generate", csvPath, binPath, strconv.Itoa(size))
	return c.runner.Run(ctx, c.command[0], args...)
}
