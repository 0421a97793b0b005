package ffmpeg

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ffmpeg reports on two channels: human-readable encoder logs on stderr
// ("Duration: 00:01:23.45", "... 29.97 fps", "speed=1.43x") and, with
// `-progress pipe:1`, machine key=value lines on stdout ("frame=123",
// "out_time_us=4500000"). Lines matching neither pattern are ignored.
var (
	reDuration = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
	reFPS      = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*fps\b`)
	reSpeed    = regexp.MustCompile(`speed=\s*(\d+(?:\.\d+)?)x`)
)

// Progress is one throttled snapshot of an in-flight transcode.
type Progress struct {
	Percent   float64 // clamped to [0, 100]
	Elapsed   time.Duration
	Frames    int64
	FPS       float64
	Speed     float64 // realtime multiplier reported by the encoder
	Remaining time.Duration
}

// tracker folds both streams into snapshots and emits at most one snapshot
// per interval, regardless of how fast the process writes lines.
type tracker struct {
	emit     func(Progress)
	interval time.Duration
	now      func() time.Time

	duration     time.Duration
	haveDuration bool
	fps          float64
	speed        float64
	elapsed      time.Duration
	frames       int64
	lastEmit     time.Time
}

func newTracker(emit func(Progress), interval time.Duration, now func() time.Time) *tracker {
	return &tracker{emit: emit, interval: interval, now: now}
}

// handleDiagnostic consumes one stderr line. Only the first Duration wins:
// later occurrences describe output chapters or attached streams.
func (t *tracker) handleDiagnostic(line string) {
	if !t.haveDuration {
		if m := reDuration.FindStringSubmatch(line); m != nil {
			t.duration = parseClock(m[1], m[2], m[3])
			t.haveDuration = true
		}
	}
	if m := reFPS.FindStringSubmatch(line); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v > 0 {
			t.fps = v
		}
	}
	if m := reSpeed.FindStringSubmatch(line); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			t.speed = v
		}
	}
	t.maybeEmit()
}

// handleProgress consumes one key=value line from the machine stream.
func (t *tracker) handleProgress(line string) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return
	}
	switch key {
	case "frame":
		if v, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			t.frames = v
		}
	case "out_time_us", "out_time_ms":
		// Both keys are microseconds; out_time_ms is a historical misnomer
		// in ffmpeg's progress protocol.
		if v, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil && v >= 0 {
			t.elapsed = time.Duration(v) * time.Microsecond
		}
	case "speed":
		if m := reSpeed.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				t.speed = v
			}
		}
	}
	t.maybeEmit()
}

func (t *tracker) snapshot() Progress {
	p := Progress{
		Elapsed: t.elapsed,
		Frames:  t.frames,
		FPS:     t.fps,
		Speed:   t.speed,
	}
	if t.haveDuration && t.duration > 0 {
		p.Percent = float64(t.elapsed) / float64(t.duration) * 100
		if p.Percent < 0 {
			p.Percent = 0
		} else if p.Percent > 100 {
			p.Percent = 100
		}
		remaining := t.duration - t.elapsed
		if remaining < 0 {
			remaining = 0
		}
		if t.speed > 0 {
			remaining = time.Duration(float64(remaining) / t.speed)
		}
		p.Remaining = remaining
	}
	return p
}

func (t *tracker) maybeEmit() {
	if t.emit == nil {
		return
	}
	now := t.now()
	if !t.lastEmit.IsZero() && now.Sub(t.lastEmit) < t.interval {
		return
	}
	t.lastEmit = now
	t.emit(t.snapshot())
}

func parseClock(hours, minutes, seconds string) time.Duration {
	h, _ := strconv.Atoi(hours)
	m, _ := strconv.Atoi(minutes)
	s, _ := strconv.ParseFloat(seconds, 64)
	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s*float64(time.Second))
}
