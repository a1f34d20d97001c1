package workspace

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestExecRunner_CapturesOutput(t *testing.T) {
	r := &execRunner{log: zap.NewNop()}
	out, err := r.run(context.Background(), command{
		op:        "clone",
		timeout:   10 * time.Second,
		maxOutput: 1 << 20,
		name:      "echo",
		args:      []string{"hello", "workspace"},
	})
	if err != nil {
		t.Fatalf("run: %s", err)
	}
	if !strings.Contains(string(out), "hello workspace") {
		t.Errorf("output not captured: %q", out)
	}
}

func TestExecRunner_Timeout(t *testing.T) {
	r := &execRunner{log: zap.NewNop()}
	start := time.Now()
	_, err := r.run(context.Background(), command{
		op:        "clone",
		timeout:   100 * time.Millisecond,
		maxOutput: 1 << 20,
		name:      "sleep",
		args:      []string{"5"},
	})
	if err == nil {
		t.Fatal("long-running process not killed")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("kill took too long: %s", elapsed)
	}
}

func TestExecRunner_OutputCapKillsProcess(t *testing.T) {
	r := &execRunner{log: zap.NewNop()}
	_, err := r.run(context.Background(), command{
		op:        "clone",
		timeout:   10 * time.Second, // safety net; the cap should fire first
		maxOutput: 4096,
		name:      "sh",
		args:      []string{"-c", "while :; do echo xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx; done"},
	})
	if err == nil {
		t.Fatal("runaway process not killed")
	}
	if !errors.Is(err, errOutputLimit) {
		t.Errorf("expected output limit error, got %v", err)
	}
}

func TestCappedBuffer(t *testing.T) {
	killed := false
	b := &cappedBuffer{limit: 8, kill: func() { killed = true }}

	if _, err := b.Write([]byte("1234")); err != nil {
		t.Fatalf("write: %s", err)
	}
	if b.overflowed() {
		t.Fatal("overflow before limit")
	}
	if _, err := b.Write([]byte("56789")); err != nil {
		t.Fatalf("write: %s", err)
	}
	if !b.overflowed() {
		t.Fatal("overflow not detected")
	}
	if !killed {
		t.Error("kill not triggered on overflow")
	}
	if got := len(b.bytes()); got > 8 {
		t.Errorf("buffer retained %d bytes past the limit", got)
	}

	// Further writes are swallowed, not stored.
	if _, err := b.Write([]byte("more")); err != nil {
		t.Fatalf("write after overflow: %s", err)
	}
	if got := len(b.bytes()); got > 8 {
		t.Errorf("post-overflow write stored: %d bytes", got)
	}
}
