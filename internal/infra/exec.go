package infra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"device-provisioner/internal/domain"
)

// CommandRunner は外部ツールを同期実行するランナー。
// 引数はベクタのまま渡し、シェルを経由しない。
type CommandRunner struct{}

// NewCommandRunner は新しいCommandRunnerを生成する。
func NewCommandRunner() *CommandRunner {
	return &CommandRunner{}
}

// Run はコマンドを実行し、標準出力・標準エラーをそのまま中継して
// 終了コードを返す。非ゼロ終了はエラーではなく終了コードとして返し、
// 実行ファイルが見つからない等の起動失敗のみエラーを返す。
func (r *CommandRunner) Run(ctx context.Context, name string, args ...string) (int, error) {
	slog.InfoContext(ctx, "executing command",
		"operation", "run",
		"command", commandLine(name, args),
	)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	return exitCode(name, err)
}

// Output はコマンドを実行し、結合出力と終了コードを返す。
func (r *CommandRunner) Output(ctx context.Context, name string, args ...string) (string, int, error) {
	slog.InfoContext(ctx, "executing command",
		"operation", "output",
		"command", commandLine(name, args),
	)

	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	code, err := exitCode(name, err)
	return string(out), code, err
}

func exitCode(name string, err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if errors.Is(err, exec.ErrNotFound) {
		return 1, fmt.Errorf("%w: %s", domain.ErrToolNotFound, name)
	}
	return 1, fmt.Errorf("running %s: %w", name, err)
}

func commandLine(name string, args []string) string {
	return name + " " + strings.Join(args, " ")
}
