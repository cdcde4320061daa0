package pw

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/mkranta/relink/internal/log"
)

// Monitor wraps a `pw-dump --monitor` subprocess. The first batch on
// Events is a snapshot of the whole registry; every later batch is an
// incremental update. The channel closes when the subprocess exits,
// which is how the daemon learns the server connection dropped.
type Monitor struct {
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	batches chan []Event
	cancel  context.CancelFunc
}

// StartMonitor launches the dump subprocess and begins decoding its
// output. The returned error covers launch failures only; runtime
// failures surface as a closed Events channel.
func StartMonitor(ctx context.Context) (*Monitor, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, "pw-dump", "--monitor")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("pw-dump stdout: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start pw-dump: %w", err)
	}

	m := &Monitor{
		cmd:     cmd,
		stdout:  stdout,
		batches: make(chan []Event, 16),
		cancel:  cancel,
	}
	go m.decode(ctx, &stderr)
	return m, nil
}

// Events delivers one slice per pw-dump array. The receiver should apply
// a whole batch before reconciling so it never acts on a half-applied
// snapshot.
func (m *Monitor) Events() <-chan []Event {
	return m.batches
}

// Close terminates the subprocess. Events closes shortly after.
func (m *Monitor) Close() {
	m.cancel()
}

func (m *Monitor) decode(ctx context.Context, stderr *strings.Builder) {
	defer close(m.batches)
	dec := json.NewDecoder(m.stdout)
	for {
		var objs []dumpObject
		if err := dec.Decode(&objs); err != nil {
			if err != io.EOF && ctx.Err() == nil {
				log.ErrorErr(log.CatPW, "monitor stream decode failed", err)
			}
			break
		}
		batch := decodeBatch(objs)
		if len(batch) == 0 {
			continue
		}
		select {
		case m.batches <- batch:
		case <-ctx.Done():
			waitQuiet(m.cmd)
			return
		}
	}
	err := m.cmd.Wait()
	if err != nil && ctx.Err() == nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		log.Error(log.CatPW, "pw-dump exited", "error", msg)
	}
}

func waitQuiet(cmd *exec.Cmd) {
	_ = cmd.Wait()
}

// Snapshot runs pw-dump once and returns the current registry contents.
// Used by the one-shot commands that inspect the graph without staying
// attached.
func Snapshot(ctx context.Context) ([]Event, error) {
	out, err := exec.CommandContext(ctx, "pw-dump").Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("pw-dump: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("pw-dump: %w", err)
	}
	var objs []dumpObject
	if err := json.Unmarshal(out, &objs); err != nil {
		return nil, fmt.Errorf("parse pw-dump output: %w", err)
	}
	return decodeBatch(objs), nil
}
