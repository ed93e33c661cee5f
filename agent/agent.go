package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/ygkn/video-sync-watch/domain"
)

const (
	ReportInterval    = 500 * time.Millisecond
	DiscoveryInterval = time.Second
	SuppressGrace     = 200 * time.Millisecond
	ReconnectDelay    = 5 * time.Second
	DialTimeout       = 10 * time.Second

	// DriftThreshold is how far, in seconds, the local position may move
	// from the last reported one before a poll reports it again.
	DriftThreshold = 1.0
	// SeekThreshold is the position error, in seconds, tolerated when
	// applying a remote state.
	SeekThreshold = 0.5
)

// ErrSuperseded is returned by Connect when a later Connect or Disconnect
// won the race while dialing.
var ErrSuperseded = errors.New("connect superseded")

type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Authenticated
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Authenticated:
		return "authenticated"
	default:
		return "disconnected"
	}
}

// Status is the snapshot reported to the popup.
type Status struct {
	Connected     bool   `json:"connected"`
	Authenticated bool   `json:"authenticated"`
	Participants  int    `json:"participants"`
	WebSocketURL  string `json:"webSocketUrl"`
	AccessKey     string `json:"accessKey"`
	Error         string `json:"error,omitempty"`
}

type Option func(*Agent)

func WithClock(c clockwork.Clock) Option {
	return func(a *Agent) { a.clock = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(a *Agent) { a.log = l }
}

// Agent keeps one page's video in step with the relay. Every entry point
// takes the same lock, so transport reads, timers and video callbacks never
// interleave mid-operation.
type Agent struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	log    zerolog.Logger
	dialer domain.Dialer
	source VideoSource

	state        ConnectionState
	participants int
	lastErr      string
	url          string
	key          string
	conn         domain.ClientConn
	generation   uint64
	reconnect    clockwork.Timer

	video            Video
	lastReported     *domain.PlaybackState
	suppressOutgoing bool
	suppressSeq      uint64
	suppressTimer    clockwork.Timer
}

func New(dialer domain.Dialer, source VideoSource, opts ...Option) *Agent {
	a := &Agent{
		clock:  clockwork.NewRealClock(),
		log:    zerolog.Nop(),
		dialer: dialer,
		source: source,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run polls the tracked video and re-runs discovery until ctx is done, then
// disconnects.
func (a *Agent) Run(ctx context.Context) {
	report := a.clock.NewTicker(ReportInterval)
	discover := a.clock.NewTicker(DiscoveryInterval)
	defer func() {
		report.Stop()
		discover.Stop()
		a.Disconnect()
	}()

	a.Rediscover()
	for {
		select {
		case <-ctx.Done():
			return
		case <-report.Chan():
			a.Poll()
		case <-discover.Chan():
			a.Rediscover()
		}
	}
}

// Connect replaces any current connection with a new one to url and sends
// the auth event once the socket is open. A failed dial schedules a retry.
func (a *Agent) Connect(ctx context.Context, url, key string) error {
	a.mu.Lock()
	gen := a.beginConnectLocked(url, key)
	a.mu.Unlock()

	return a.dial(ctx, gen, url, key)
}

// beginConnectLocked drops the current connection, stores the target and
// returns the generation the new dial belongs to.
func (a *Agent) beginConnectLocked(url, key string) uint64 {
	a.resetLocked()
	a.url, a.key = url, key
	a.lastErr = ""
	a.state = Connecting
	return a.generation
}

func (a *Agent) dial(ctx context.Context, gen uint64, url, key string) error {
	a.log.Info().Str("url", url).Msg("connecting to relay")
	conn, err := a.dialer.Dial(ctx, url)

	a.mu.Lock()
	defer a.mu.Unlock()

	if gen != a.generation {
		if conn != nil {
			conn.Close()
		}
		return ErrSuperseded
	}
	if err != nil {
		a.lastErr = err.Error()
		a.state = Disconnected
		a.log.Warn().Err(err).Msg("relay dial failed")
		a.scheduleReconnectLocked()
		return fmt.Errorf("connect: %w", err)
	}

	a.conn = conn
	a.state = Connected
	if err := a.writeLocked(domain.NewAuth(key)); err != nil {
		a.lastErr = err.Error()
		a.dropLocked()
		return fmt.Errorf("send auth: %w", err)
	}

	go a.readLoop(gen, conn)
	return nil
}

// Disconnect closes the connection and cancels any pending reconnect.
func (a *Agent) Disconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.resetLocked()
	a.log.Info().Msg("disconnected from relay")
}

func (a *Agent) State() Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	return Status{
		Connected:     a.state == Connected || a.state == Authenticated,
		Authenticated: a.state == Authenticated,
		Participants:  a.participants,
		WebSocketURL:  a.url,
		AccessKey:     a.key,
		Error:         a.lastErr,
	}
}

func (a *Agent) ConnectionState() ConnectionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Rediscover re-runs video selection. Page glue calls it on DOM mutations.
func (a *Agent) Rediscover() {
	a.mu.Lock()
	defer a.mu.Unlock()

	var picked Video
	if a.source != nil {
		picked = SelectVideo(a.source.Videos())
	}
	if picked == a.video {
		return
	}

	a.video = picked
	a.lastReported = nil
	if picked == nil {
		a.log.Info().Msg("video lost")
	} else {
		a.log.Info().Msg("video found")
	}
}

// NotifyVideoEvent reports a media event fired by v.
func (a *Agent) NotifyVideoEvent(v Video, ev VideoEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if v == nil || v != a.video {
		return
	}
	a.log.Debug().Str("event", string(ev)).Msg("video event")
	a.reportLocked()
}

// Poll reports the video state if it has drifted from the last report.
func (a *Agent) Poll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.video == nil || a.lastReported == nil {
		return
	}

	cur := a.video.State()
	last := a.lastReported
	if cur.Paused == last.Paused && cur.PlaybackRate == last.PlaybackRate &&
		math.Abs(cur.CurrentTime-last.CurrentTime) <= DriftThreshold {
		return
	}
	a.reportLocked()
}

func (a *Agent) reportLocked() {
	if a.suppressOutgoing || a.state != Authenticated || a.video == nil || a.conn == nil {
		return
	}

	cur := a.video.State()
	if a.lastReported != nil && *a.lastReported == cur {
		return
	}

	ev, err := domain.NewStateUpdate(cur)
	if err != nil {
		a.log.Error().Err(err).Msg("encode state")
		return
	}
	if err := a.writeLocked(ev); err != nil {
		a.log.Warn().Err(err).Msg("send state failed")
		return
	}
	a.lastReported = &cur
}

func (a *Agent) readLoop(gen uint64, conn domain.ClientConn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			a.handleClosed(gen, err)
			return
		}
		a.handleMessage(gen, data)
	}
}

func (a *Agent) handleClosed(gen uint64, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if gen != a.generation {
		return
	}
	a.log.Warn().Err(err).Msg("relay connection lost")
	a.dropLocked()
}

func (a *Agent) handleMessage(gen uint64, data []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if gen != a.generation {
		return
	}

	var msg domain.Event
	if err := json.Unmarshal(data, &msg); err != nil {
		a.log.Warn().Err(err).Msg("invalid message from relay")
		return
	}

	switch msg.Type {
	case domain.TypeWelcome:
		a.log.Debug().Str("message", msg.Message).Msg("relay welcome")
	case domain.TypeAuthenticated:
		a.state = Authenticated
		a.participants = msg.Participants
		a.lastErr = ""
		a.log.Info().Int("participants", msg.Participants).Msg("authenticated")
	case domain.TypeParticipantUpdate:
		a.participants = msg.Participants
		a.log.Info().Int("participants", msg.Participants).Msg("participants changed")
	case domain.TypeError:
		a.lastErr = msg.Message
		a.log.Warn().Str("message", msg.Message).Msg("relay error")
	case domain.TypeSync:
		if msg.Action != domain.ActionStateUpdate || !msg.HasData() {
			a.log.Debug().Str("action", msg.Action).Msg("ignoring sync action")
			return
		}
		var target domain.PlaybackState
		if err := json.Unmarshal(msg.Data, &target); err != nil {
			a.log.Warn().Err(err).Msg("invalid state from relay")
			return
		}
		a.applyLocked(target)
	default:
		a.log.Debug().Str("type", msg.Type).Msg("unknown message from relay")
	}
}

// applyLocked applies a remote state with outgoing reports suppressed for
// SuppressGrace, which covers the media events the apply itself fires.
func (a *Agent) applyLocked(target domain.PlaybackState) {
	if a.video == nil {
		return
	}

	a.suppressOutgoing = true
	a.suppressSeq++
	seq := a.suppressSeq
	if a.suppressTimer != nil {
		a.suppressTimer.Stop()
	}

	if err := ApplyState(a.video, target); err != nil {
		a.log.Warn().Err(err).Msg("apply state")
	} else {
		a.log.Info().
			Float64("currentTime", target.CurrentTime).
			Bool("paused", target.Paused).
			Float64("playbackRate", target.PlaybackRate).
			Msg("applied remote state")
	}
	a.lastReported = &target

	a.suppressTimer = a.clock.AfterFunc(SuppressGrace, func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if seq == a.suppressSeq {
			a.suppressOutgoing = false
		}
	})
}

func (a *Agent) writeLocked(ev domain.Event) error {
	if a.conn == nil {
		return errors.New("not connected")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return a.conn.WriteMessage(data)
}

// dropLocked tears down the current connection after a failure and
// schedules a reconnect with the stored url and key.
func (a *Agent) dropLocked() {
	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
	}
	a.generation++
	a.state = Disconnected
	a.participants = 0
	a.scheduleReconnectLocked()
}

// resetLocked drops the connection without scheduling a reconnect.
func (a *Agent) resetLocked() {
	if a.reconnect != nil {
		a.reconnect.Stop()
		a.reconnect = nil
	}
	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
	}
	a.generation++
	a.state = Disconnected
	a.participants = 0
}

func (a *Agent) scheduleReconnectLocked() {
	if a.reconnect != nil {
		a.reconnect.Stop()
	}
	gen := a.generation
	url, key := a.url, a.key

	a.log.Info().Dur("delay", ReconnectDelay).Msg("reconnect scheduled")
	a.reconnect = a.clock.AfterFunc(ReconnectDelay, func() {
		a.mu.Lock()
		if gen != a.generation {
			a.mu.Unlock()
			return
		}
		next := a.beginConnectLocked(url, key)
		a.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), DialTimeout)
		defer cancel()
		if err := a.dial(ctx, next, url, key); err != nil && !errors.Is(err, ErrSuperseded) {
			a.log.Debug().Err(err).Msg("reconnect attempt failed")
		}
	})
}
