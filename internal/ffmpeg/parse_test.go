package ffmpeg

import (
	"testing"
	"time"
)

// fakeClock advances only when told to, so throttling is fully simulated.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker(emit func(Progress)) (*tracker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	return newTracker(emit, emitInterval, clock.now), clock
}

func TestDurationFirstOccurrenceWins(t *testing.T) {
	tr, _ := newTestTracker(nil)
	tr.handleDiagnostic("  Duration: 00:02:00.00, start: 0.000000, bitrate: 4532 kb/s")
	tr.handleDiagnostic("  Duration: 00:59:59.00, start: 0.000000")
	if tr.duration != 2*time.Minute {
		t.Fatalf("duration = %v, want 2m", tr.duration)
	}
}

func TestDiagnosticFPSAndSpeed(t *testing.T) {
	tr, _ := newTestTracker(nil)
	tr.handleDiagnostic("    Stream #0:0: Video: h264, yuv420p, 1920x1080, 29.97 fps, 29.97 tbr")
	tr.handleDiagnostic("frame= 1234 fps= 52 q=28.0 size=  2048KiB time=00:00:41.16 bitrate= 407.5kbits/s speed=1.43x")
	if tr.fps != 29.97 {
		t.Errorf("fps = %v", tr.fps)
	}
	if tr.speed != 1.43 {
		t.Errorf("speed = %v", tr.speed)
	}
}

func TestProgressStreamKeys(t *testing.T) {
	tr, _ := newTestTracker(nil)
	tr.handleProgress("frame=300")
	tr.handleProgress("out_time_us=10000000")
	if tr.frames != 300 {
		t.Errorf("frames = %d", tr.frames)
	}
	if tr.elapsed != 10*time.Second {
		t.Errorf("elapsed = %v", tr.elapsed)
	}
	// out_time_ms is microseconds too, despite the name.
	tr.handleProgress("out_time_ms=20000000")
	if tr.elapsed != 20*time.Second {
		t.Errorf("elapsed after out_time_ms = %v", tr.elapsed)
	}
}

func TestUnmatchedLinesIgnored(t *testing.T) {
	tr, _ := newTestTracker(nil)
	tr.handleDiagnostic("[libx264 @ 0x55e] using SAR=1/1")
	tr.handleProgress("not a key value line")
	tr.handleProgress("progress=continue")
	if tr.haveDuration || tr.frames != 0 || tr.elapsed != 0 {
		t.Fatalf("garbage lines mutated state: %+v", tr)
	}
}

func TestRemainingUsesSpeedMultiplier(t *testing.T) {
	tr, _ := newTestTracker(nil)
	tr.handleDiagnostic("  Duration: 00:01:40.00, start: 0")
	tr.handleProgress("out_time_us=40000000") // 40s elapsed of 100s
	tr.handleDiagnostic("speed=2x")

	p := tr.snapshot()
	if p.Percent != 40 {
		t.Errorf("percent = %v, want 40", p.Percent)
	}
	if p.Remaining != 30*time.Second {
		t.Errorf("remaining = %v, want 30s ((100-40)/2)", p.Remaining)
	}
}

func TestRemainingWithZeroSpeedIsRawRemainder(t *testing.T) {
	tr, _ := newTestTracker(nil)
	tr.handleDiagnostic("  Duration: 00:01:40.00, start: 0")
	tr.handleProgress("out_time_us=40000000")

	p := tr.snapshot()
	if p.Remaining != 60*time.Second {
		t.Errorf("remaining = %v, want 60s", p.Remaining)
	}
}

func TestPercentClamped(t *testing.T) {
	tr, _ := newTestTracker(nil)
	tr.handleDiagnostic("  Duration: 00:00:10.00, start: 0")
	tr.handleProgress("out_time_us=15000000") // past the reported duration
	p := tr.snapshot()
	if p.Percent != 100 {
		t.Errorf("percent = %v, want clamp to 100", p.Percent)
	}
	if p.Remaining != 0 {
		t.Errorf("remaining = %v, want 0", p.Remaining)
	}
}

func TestEmitThrottledToOncePerInterval(t *testing.T) {
	var got []Progress
	tr, clock := newTestTracker(func(p Progress) { got = append(got, p) })
	tr.handleDiagnostic("  Duration: 00:01:00.00, start: 0")

	// A burst of lines every few milliseconds within one simulated second.
	for i := 0; i < 200; i++ {
		tr.handleProgress("out_time_us=1000000")
		clock.advance(4 * time.Millisecond)
	}
	if len(got) != 1 {
		t.Fatalf("emitted %d snapshots within one second, want 1", len(got))
	}

	clock.advance(emitInterval)
	tr.handleProgress("out_time_us=2000000")
	if len(got) != 2 {
		t.Fatalf("emitted %d snapshots after interval elapsed, want 2", len(got))
	}
}

func TestParseClock(t *testing.T) {
	if d := parseClock("01", "02", "03.50"); d != time.Hour+2*time.Minute+3*time.Second+500*time.Millisecond {
		t.Fatalf("parseClock = %v", d)
	}
}
