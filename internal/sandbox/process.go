package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"syscall"
	"time"
)

// killGrace bounds how long Run waits for inherited pipes to close after the
// process group has been killed.
const killGrace = 2 * time.Second

// RunSpec is a single process invocation with its environment fully layered.
type RunSpec struct {
	Args []string
	Dir  string
	// Env layers are applied in order; later layers win key by key.
	Env     []map[string]string
	Timeout time.Duration
}

// Runner executes commands as ordinary child processes.
//
// Each child runs in its own process group (Setpgid) and the whole group is
// killed when the timeout fires, so helpers forked by the command do not
// outlive it. Runner holds no shared state between calls.
type Runner struct {
	// BaseEnv is the lowest-precedence environment. Nil = os.Environ().
	BaseEnv []string
	// MaxOutputBytes caps each captured stream. Zero = unlimited.
	MaxOutputBytes int
	Logger         *slog.Logger
}

// Run executes spec and returns its result. A timeout is reported as a
// result with TimeoutExitCode and TimedOut set, never as an error. Errors
// are reserved for commands that could not be started and for cancellation
// of ctx by the caller.
func (r *Runner) Run(ctx context.Context, spec RunSpec) (*ExecResult, error) {
	if len(spec.Args) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrInvalidArgument)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if spec.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, spec.Args[0], spec.Args[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = r.buildEnv(spec.Env)
	cmd.Stdin = nil

	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		// Negative PID = the whole process group.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = killGrace

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = r.capture(&stdoutBuf)
	cmd.Stderr = r.capture(&stderrBuf)

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	result := &ExecResult{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Duration: duration,
	}

	if runErr != nil {
		switch {
		case ctx.Err() != nil:
			return nil, fmt.Errorf("command %s: %w", spec.Args[0], ctx.Err())
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			result.ExitCode = TimeoutExitCode
			result.TimedOut = true
			r.logger().Debug("command timed out",
				slog.String("command", spec.Args[0]),
				slog.String("dir", spec.Dir),
				slog.Duration("timeout", spec.Timeout),
				slog.Duration("duration", duration),
			)
			return result, nil
		}

		var exitErr *exec.ExitError
		switch {
		case errors.As(runErr, &exitErr):
			result.ExitCode = exitErr.ExitCode()
		case errors.Is(runErr, exec.ErrWaitDelay) && cmd.ProcessState != nil:
			// The command exited but a background child kept the output
			// pipes open. Output written before the pipes closed is kept.
			result.ExitCode = cmd.ProcessState.ExitCode()
			r.logger().Debug("command left children holding its output",
				slog.String("command", spec.Args[0]),
				slog.String("dir", spec.Dir),
			)
		default:
			return nil, fmt.Errorf("starting %s: %w", spec.Args[0], runErr)
		}
	}

	r.logger().Debug("command completed",
		slog.String("command", spec.Args[0]),
		slog.String("dir", spec.Dir),
		slog.Int("exit_code", result.ExitCode),
		slog.Duration("duration", duration),
	)
	return result, nil
}

// buildEnv layers the environment maps over the base environment.
func (r *Runner) buildEnv(layers []map[string]string) []string {
	base := r.BaseEnv
	if base == nil {
		base = os.Environ()
	}

	merged := make(map[string]string, len(base))
	for _, kv := range base {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		merged[k] = v
	}
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+merged[k])
	}
	return env
}

func (r *Runner) capture(buf *bytes.Buffer) io.Writer {
	if r.MaxOutputBytes <= 0 {
		return buf
	}
	return &limitedWriter{w: buf, remaining: r.MaxOutputBytes}
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.Logger
}

// limitedWriter wraps a writer and stops writing after a byte limit.
// Excess data is discarded, not reported as an error.
type limitedWriter struct {
	w         io.Writer
	remaining int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if lw.remaining <= 0 {
		return n, nil
	}
	if len(p) > lw.remaining {
		p = p[:lw.remaining]
	}
	written, err := lw.w.Write(p)
	lw.remaining -= written
	if err != nil {
		return written, err
	}
	return n, nil
}
