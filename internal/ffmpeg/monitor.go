// Package ffmpeg wraps the external transcode tool: argument construction,
// subprocess supervision, and progress parsing of its two output streams.
package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// emitInterval is the minimum spacing between progress callbacks. The
// throttle is time-based; line rate from the process is irrelevant.
const emitInterval = time.Second

// stderrTailLines bounds how much encoder output is kept for error reports.
const stderrTailLines = 40

type Options struct {
	InputPath    string
	OutputPath   string
	Encoder      string // -c:v value, e.g. libx264 or h264_nvenc
	VideoBitrate string // -b:v value; empty omits the bitrate flags
	OnProgress   func(Progress)
}

// ExitError reports a transcode process that started but exited non-zero.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("ffmpeg exited with code %d", e.Code)
}

// SpawnError reports that the process could not be started at all.
type SpawnError struct {
	Err error
}

func (e *SpawnError) Error() string { return "start ffmpeg: " + e.Err.Error() }
func (e *SpawnError) Unwrap() error { return e.Err }

// Available reports whether ffmpeg is on PATH.
func Available() (string, bool) {
	path, err := exec.LookPath("ffmpeg")
	return path, err == nil
}

func buildArgs(opts Options) []string {
	args := []string{
		"-y",
		"-i", opts.InputPath,
		"-c:v", opts.Encoder,
	}
	if opts.VideoBitrate != "" {
		args = append(args, "-b:v", opts.VideoBitrate, "-maxrate", opts.VideoBitrate)
	}
	args = append(args,
		"-c:a", "aac",
		"-movflags", "+faststart",
		"-progress", "pipe:1",
		"-nostats",
		opts.OutputPath,
	)
	return args
}

// Run executes one blocking transcode. Both output streams are consumed
// concurrently while the parent waits for exit; progress callbacks are
// advisory only. Success is exit code 0 and nothing else.
func Run(ctx context.Context, opts Options) error {
	if strings.TrimSpace(opts.InputPath) == "" {
		return fmt.Errorf("input path is required")
	}
	if strings.TrimSpace(opts.OutputPath) == "" {
		return fmt.Errorf("output path is required")
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", buildArgs(opts)...)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("setup stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("setup stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return &SpawnError{Err: err}
	}

	var mu sync.Mutex
	tr := newTracker(opts.OnProgress, emitInterval, time.Now)
	var tail []string

	var wg sync.WaitGroup
	read := func(r io.Reader, diagnostic bool) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 1024*1024)
		scanner.Split(splitByNewlineOrCR)
		for scanner.Scan() {
			line := scanner.Text()
			mu.Lock()
			if diagnostic {
				tail = appendTail(tail, line)
				tr.handleDiagnostic(line)
			} else {
				tr.handleProgress(line)
			}
			mu.Unlock()
		}
	}

	wg.Add(2)
	go read(stdoutPipe, false)
	go read(stderrPipe, true)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		mu.Lock()
		stderrTail := strings.Join(tail, "\n")
		mu.Unlock()

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Code: exitErr.ExitCode(), Stderr: stderrTail}
		}
		return fmt.Errorf("ffmpeg failed: %w", err)
	}
	return nil
}

// splitByNewlineOrCR also breaks on bare carriage returns; ffmpeg rewrites
// its status line with \r and would otherwise buffer until exit.
func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func appendTail(tail []string, line string) []string {
	if strings.TrimSpace(line) == "" {
		return tail
	}
	tail = append(tail, line)
	if len(tail) > stderrTailLines {
		tail = tail[len(tail)-stderrTailLines:]
	}
	return tail
}
