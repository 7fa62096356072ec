package build

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/conneroisu/roaster/internal/errors"
)

// processWaitDelay bounds how long Wait blocks on output pipes after the
// process is killed.
const processWaitDelay = 2 * time.Second

type processResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// runProcess runs name with args, feeding stdin when non-nil. Both output
// streams are drained concurrently and the process is always waited on.
// When timeout elapses the process is killed and an AssetError with
// ErrCodeProcessTimeout is returned.
func runProcess(ctx context.Context, timeout time.Duration, name string, args []string, stdin io.Reader) (processResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // executable comes from validated configuration
	cmd.WaitDelay = processWaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = stdin
	}

	err := cmd.Run()
	result := processResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: -1,
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, errors.NewProcessError(errors.ErrCodeProcessTimeout,
			fmt.Sprintf("%s did not finish within %s", name, timeout), ctxErr).
			WithContext("executable", name)
	}
	if err != nil {
		return result, errors.NewProcessError(errors.ErrCodeProcessFailed,
			fmt.Sprintf("%s exited with status %d", name, result.ExitCode), err).
			WithContext("executable", name)
	}
	return result, nil
}
