package pipeline

import (
	"fmt"
	"sync"
	"time"

	"media-relay/internal/ffmpeg"
)

// liveProgress renders a single rewritten terminal line during a transcode.
// Snapshot updates arrive on the monitor's goroutine; rendering runs on its
// own ticker so a chatty or silent ffmpeg never changes the redraw rate.
type liveProgress struct {
	enabled bool

	index int
	total int
	key   string

	mu   sync.Mutex
	snap ffmpeg.Progress
	seen bool

	stop chan struct{}
}

func newLiveProgress(enabled bool, index, total int, key string) *liveProgress {
	return &liveProgress{
		enabled: enabled,
		index:   index,
		total:   total,
		key:     key,
		stop:    make(chan struct{}),
	}
}

func (p *liveProgress) Start() {
	if !p.enabled {
		return
	}
	go func() {
		t := time.NewTicker(700 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-t.C:
				fmt.Printf("\r\033[2K%s", p.render())
			}
		}
	}()
}

func (p *liveProgress) Stop() {
	if !p.enabled {
		return
	}
	close(p.stop)
	fmt.Printf("\r\033[2K")
}

func (p *liveProgress) Handle(pr ffmpeg.Progress) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	p.snap = pr
	p.seen = true
	p.mu.Unlock()
}

func (p *liveProgress) render() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	head := fmt.Sprintf("[%d/%d] %s", p.index, p.total, p.key)
	if !p.seen {
		return head + "  transcoding..."
	}
	line := fmt.Sprintf("%s  %.1f%%", head, p.snap.Percent)
	if p.snap.FPS > 0 {
		line += fmt.Sprintf("  fps %.0f", p.snap.FPS)
	}
	if p.snap.Speed > 0 {
		line += fmt.Sprintf("  speed %.2fx", p.snap.Speed)
	}
	if p.snap.Remaining > 0 {
		line += "  ETA " + p.snap.Remaining.Truncate(time.Second).String()
	}
	return line
}
