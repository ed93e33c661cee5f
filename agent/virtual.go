package agent

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ygkn/video-sync-watch/domain"
)

var ErrInvalidRate = errors.New("playback rate must be positive")

// VirtualVideo is a headless player whose position advances with a clock.
// The watch command drives one in place of a browser media element.
type VirtualVideo struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	position float64
	anchor   time.Time
	paused   bool
	rate     float64
	source   string
}

func NewVirtualVideo(clock clockwork.Clock, source string) *VirtualVideo {
	return &VirtualVideo{
		clock:  clock,
		anchor: clock.Now(),
		paused: true,
		rate:   1,
		source: source,
	}
}

func (v *VirtualVideo) State() domain.PlaybackState {
	v.mu.Lock()
	defer v.mu.Unlock()

	return domain.PlaybackState{
		CurrentTime:  v.positionLocked(),
		Paused:       v.paused,
		PlaybackRate: v.rate,
	}
}

func (v *VirtualVideo) positionLocked() float64 {
	if v.paused {
		return v.position
	}
	return v.position + v.clock.Since(v.anchor).Seconds()*v.rate
}

// rebaseLocked folds elapsed playback into position before a change.
func (v *VirtualVideo) rebaseLocked() {
	v.position = v.positionLocked()
	v.anchor = v.clock.Now()
}

func (v *VirtualVideo) Play() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.rebaseLocked()
	v.paused = false
	return nil
}

func (v *VirtualVideo) Pause() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.rebaseLocked()
	v.paused = true
	return nil
}

func (v *VirtualVideo) Seek(seconds float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if seconds < 0 {
		seconds = 0
	}
	v.position = seconds
	v.anchor = v.clock.Now()
	return nil
}

func (v *VirtualVideo) SetRate(rate float64) error {
	if rate <= 0 {
		return ErrInvalidRate
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.rebaseLocked()
	v.rate = rate
	return nil
}

func (v *VirtualVideo) HasEnoughData() bool { return true }

func (v *VirtualVideo) HasSource() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.source != ""
}
