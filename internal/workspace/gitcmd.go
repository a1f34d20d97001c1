package workspace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/agentfoundry/sessiond/internal/observability"
)

// errOutputLimit marks a subprocess killed for exceeding the combined
// output cap.
var errOutputLimit = errors.New("subprocess output limit exceeded")

// command is one external invocation. Args is always a plain argument
// vector; nothing here ever passes through a shell.
type command struct {
	op        string // metric label: clone, worktree_add, worktree_prune
	dir       string
	timeout   time.Duration
	maxOutput int64
	name      string
	args      []string
}

type runner interface {
	run(ctx context.Context, c command) ([]byte, error)
}

type execRunner struct {
	log *zap.Logger
}

// run executes c under its timeout and returns the combined output, capped
// at c.maxOutput bytes. A process that outgrows the cap is killed and the
// call fails with errOutputLimit; a process that outlives the timeout fails
// with context.DeadlineExceeded.
func (r *execRunner) run(ctx context.Context, c command) ([]byte, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if c.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.name, c.args...)
	cmd.Dir = c.dir
	// Never let git fall back to an interactive credential prompt; a hung
	// subprocess would otherwise hold the slot until the timeout.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	buf := &cappedBuffer{limit: c.maxOutput, kill: cancel}
	cmd.Stdout = buf
	cmd.Stderr = buf

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start).Seconds()
	observability.GitCommandDuration.WithLabelValues(c.op).Observe(duration)

	output := buf.bytes()
	switch {
	case buf.overflowed():
		observability.GitCommandFailTotal.WithLabelValues(c.op, "output_limit").Inc()
		return output, fmt.Errorf("%s: %w", c.op, errOutputLimit)
	case runCtx.Err() == context.DeadlineExceeded:
		observability.GitCommandFailTotal.WithLabelValues(c.op, "timeout").Inc()
		return output, fmt.Errorf("%s: %w", c.op, context.DeadlineExceeded)
	case err != nil:
		observability.GitCommandFailTotal.WithLabelValues(c.op, "exit").Inc()
		return output, fmt.Errorf("%s: %w", c.op, err)
	}

	r.log.Debug("subprocess completed",
		zap.String("op", c.op),
		zap.Float64("duration_s", duration),
	)
	return output, nil
}

// cappedBuffer collects combined subprocess output up to limit bytes. On
// overflow it triggers kill and keeps draining so the child never blocks on
// a full pipe while dying. Assigned to both Stdout and Stderr, so os/exec
// serializes Write calls.
type cappedBuffer struct {
	buf      bytes.Buffer
	limit    int64
	overflow bool
	kill     context.CancelFunc
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if b.overflow {
		return len(p), nil
	}
	if b.limit > 0 && int64(b.buf.Len())+int64(len(p)) > b.limit {
		room := b.limit - int64(b.buf.Len())
		if room > 0 {
			b.buf.Write(p[:room])
		}
		b.overflow = true
		if b.kill != nil {
			b.kill()
		}
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) bytes() []byte    { return b.buf.Bytes() }
func (b *cappedBuffer) overflowed() bool { return b.overflow }
