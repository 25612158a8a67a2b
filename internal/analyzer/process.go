package analyzer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/tickerlab/backend/internal/logger"
)

// waitDelay bounds how long Wait drains pipes after the process is killed; grandchildren
// such as `docker exec` may keep them open
const waitDelay = 5 * time.Second

// ProcessAnalyzer runs the model as a local command, e.g. `docker exec stock-python python ...`
type ProcessAnalyzer struct {
	command []string
}

// NewProcessAnalyzer creates a new ProcessAnalyzer; command is the argv prefix
func NewProcessAnalyzer(command []string) *ProcessAnalyzer {
	return &ProcessAnalyzer{command: command}
}

func (a *ProcessAnalyzer) Analyze(ctx context.Context, params Params) (*Result, error) {
	if len(a.command) == 0 {
		return nil, fmt.Errorf("%w: no command configured", ErrUnavailable)
	}

	args := append(append([]string{}, a.command[1:]...), params.Args()...)
	cmd := exec.CommandContext(ctx, a.command[0], args...)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("Starting analyzer: %s %s", a.command[0], strings.Join(args, " "))
	start := time.Now()
	err := cmd.Run()
	result := &Result{
		Output:   stdout.String(),
		Duration: time.Since(start),
	}

	if err == nil {
		return result, nil
	}

	// Check if it's a timeout
	if ctx.Err() == context.DeadlineExceeded {
		return result, fmt.Errorf("%w after %v", ErrTimeout, result.Duration.Round(time.Second))
	}
	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, &ExitError{Code: result.ExitCode, Stderr: strings.TrimSpace(stderr.String())}
	}
	return result, fmt.Errorf("%w: %v", ErrUnavailable, err)
}
