// Package bertopic runs topic clustering in an external Python
// subprocess. The process reads one JSON job from stdin and streams
// newline-delimited JSON events on stdout: progress events followed by
// a single final payload carrying the topic forest or an error.
package bertopic

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/custodia-labs/notelens/internal/core/domain"
	"github.com/custodia-labs/notelens/internal/core/ports/driven"
)

// Ensure Clusterer implements the interface.
var _ driven.Clusterer = (*Clusterer)(nil)

// Default configuration values.
const (
	DefaultPython = "python3"

	// maxLineBytes bounds one stdout line. The final payload carries
	// every topic with terms and doc assignments, so lines can be
	// large.
	maxLineBytes = 256 << 20

	// stderrTailBytes bounds how much subprocess stderr is kept for
	// error reporting.
	stderrTailBytes = 8 << 10
)

// Config holds configuration for the clustering subprocess.
type Config struct {
	// Python is the interpreter to run (default: python3).
	Python string

	// Script is the path to the clustering script (required).
	Script string
}

// Clusterer shells out to a Python clustering script.
type Clusterer struct {
	python string
	script string
}

// NewClusterer creates a subprocess-backed clusterer.
func NewClusterer(cfg Config) (*Clusterer, error) {
	if cfg.Script == "" {
		return nil, fmt.Errorf("bertopic: script path is required")
	}
	if cfg.Python == "" {
		cfg.Python = DefaultPython
	}
	return &Clusterer{python: cfg.Python, script: cfg.Script}, nil
}

// outputLine is the superset shape of every stdout event. A line with
// Topics set is the final payload; a line with Error set is a fatal
// failure; anything else is progress.
type outputLine struct {
	Type   string          `json:"type"`
	Error  string          `json:"error"`
	Topics json.RawMessage `json:"topics"`
}

// Cluster runs one clustering job. The subprocess is killed when ctx
// is cancelled.
func (c *Clusterer) Cluster(ctx context.Context, req driven.ClusterRequest, onProgress func(driven.ClusterProgress)) (*driven.ClusterResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("bertopic: marshal request: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.python, c.script)
	// Forces pipes closed if the interpreter leaves children behind
	// after a kill.
	cmd.WaitDelay = 10 * time.Second

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("bertopic: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("bertopic: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("bertopic: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", domain.ErrClusterFailed, c.python, err)
	}

	// Drain stderr concurrently so the subprocess never blocks on a
	// full pipe; only the tail is kept for diagnostics.
	stderrDone := make(chan string, 1)
	go func() { stderrDone <- drainTail(stderr, stderrTailBytes) }()

	writeErr := make(chan error, 1)
	go func() {
		_, err := stdin.Write(payload)
		if cerr := stdin.Close(); err == nil {
			err = cerr
		}
		writeErr <- err
	}()

	var (
		result    *driven.ClusterResult
		scriptErr string
	)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var probe outputLine
		if err := json.Unmarshal([]byte(line), &probe); err != nil {
			// Stray non-JSON output is noise, not protocol.
			continue
		}

		switch {
		case probe.Error != "":
			scriptErr = probe.Error
		case probe.Topics != nil:
			var final driven.ClusterResult
			if err := json.Unmarshal([]byte(line), &final); err != nil {
				return nil, fmt.Errorf("%w: malformed final payload: %v", domain.ErrClusterFailed, err)
			}
			result = &final
		case probe.Type != "":
			if onProgress != nil {
				var event driven.ClusterProgress
				if err := json.Unmarshal([]byte(line), &event); err == nil {
					onProgress(event)
				}
			}
		}
	}
	scanErr := scanner.Err()

	stderrTail := <-stderrDone
	waitErr := cmd.Wait()
	<-writeErr

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if scriptErr != "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrClusterFailed, scriptErr)
	}
	if waitErr != nil {
		return nil, fmt.Errorf("%w: %v%s", domain.ErrClusterFailed, waitErr, stderrSuffix(stderrTail))
	}
	if scanErr != nil {
		return nil, fmt.Errorf("%w: read output: %v", domain.ErrClusterFailed, scanErr)
	}
	if result == nil {
		return nil, fmt.Errorf("%w: no final payload%s", domain.ErrClusterFailed, stderrSuffix(stderrTail))
	}
	return result, nil
}

// drainTail reads r to EOF keeping at most max trailing bytes.
func drainTail(r io.Reader, max int) string {
	buf := make([]byte, 4096)
	tail := make([]byte, 0, max)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			tail = append(tail, buf[:n]...)
			if len(tail) > max {
				tail = tail[len(tail)-max:]
			}
		}
		if err != nil {
			return string(tail)
		}
	}
}

func stderrSuffix(tail string) string {
	tail = strings.TrimSpace(tail)
	if tail == "" {
		return ""
	}
	return ": " + tail
}
