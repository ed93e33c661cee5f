package agent

import (
	"errors"
	"fmt"
	"math"

	"github.com/ygkn/video-sync-watch/domain"
)

// Video is a handle to one media element on the page.
type Video interface {
	State() domain.PlaybackState
	Play() error
	Pause() error
	Seek(seconds float64) error
	SetRate(rate float64) error

	// HasEnoughData reports whether playback can proceed without stalling.
	HasEnoughData() bool
	// HasSource reports whether a media source is attached.
	HasSource() bool
}

// VideoSource enumerates the media elements currently on the page.
type VideoSource interface {
	Videos() []Video
}

// StaticSource is a fixed list of videos.
type StaticSource []Video

func (s StaticSource) Videos() []Video { return s }

// VideoEvent is a media event observed on the tracked video.
type VideoEvent string

const (
	EventPlay       VideoEvent = "play"
	EventPause      VideoEvent = "pause"
	EventSeeked     VideoEvent = "seeked"
	EventRateChange VideoEvent = "ratechange"
)

// SelectVideo picks the element to synchronize, in priority order: one that
// is playing with enough data, a paused one with progress, one with a
// source, then the first one. It returns nil for an empty list.
func SelectVideo(videos []Video) Video {
	if len(videos) == 0 {
		return nil
	}

	for _, v := range videos {
		if s := v.State(); !s.Paused && v.HasEnoughData() {
			return v
		}
	}
	for _, v := range videos {
		if s := v.State(); s.Paused && s.CurrentTime > 0 {
			return v
		}
	}
	for _, v := range videos {
		if v.HasSource() {
			return v
		}
	}
	return videos[0]
}

// ApplyState moves v towards target. Play state and rate change only when
// they differ; position changes only when off by more than SeekThreshold.
func ApplyState(v Video, target domain.PlaybackState) error {
	cur := v.State()
	var errs []error

	if cur.Paused != target.Paused {
		if target.Paused {
			if err := v.Pause(); err != nil {
				errs = append(errs, fmt.Errorf("pause: %w", err))
			}
		} else {
			if err := v.Play(); err != nil {
				errs = append(errs, fmt.Errorf("play: %w", err))
			}
		}
	}

	if math.Abs(cur.CurrentTime-target.CurrentTime) > SeekThreshold {
		if err := v.Seek(target.CurrentTime); err != nil {
			errs = append(errs, fmt.Errorf("seek: %w", err))
		}
	}

	if target.PlaybackRate > 0 && cur.PlaybackRate != target.PlaybackRate {
		if err := v.SetRate(target.PlaybackRate); err != nil {
			errs = append(errs, fmt.Errorf("set rate: %w", err))
		}
	}

	return errors.Join(errs...)
}
