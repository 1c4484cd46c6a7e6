package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandExecutor returns an executor that runs argv and replies with its
// trimmed standard output. The process is killed when ctx ends.
func CommandExecutor(argv []string) ExecutorFunc {
	return func(ctx context.Context, _ string) (string, error) {
		if len(argv) == 0 {
			return "", fmt.Errorf("command is empty")
		}
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("command %s failed: %w: %s", argv[0], err, strings.TrimSpace(stderr.String()))
		}
		out := strings.TrimSpace(stdout.String())
		if out == "" {
			out = "Done."
		}
		return out, nil
	}
}
