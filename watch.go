package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ygkn/video-sync-watch/agent"
	"github.com/ygkn/video-sync-watch/config"
	ws "github.com/ygkn/video-sync-watch/websocket"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Join a relay with a headless player driven from stdin",
	Long: `Join a relay with a virtual player. Commands read from stdin:
  play | pause | seek <seconds> | rate <rate> | status`,
	RunE: runWatch,
}

var (
	flagWatchURL    string
	flagWatchKey    string
	flagWatchSource string
)

func init() {
	flags := watchCmd.Flags()
	flags.StringVar(&flagWatchURL, "url", "ws://localhost:8080/ws", "relay WebSocket URL")
	flags.StringVar(&flagWatchKey, "key", "", "shared access key (defaults to the configured ACCESS_KEY)")
	flags.StringVar(&flagWatchSource, "source", "virtual.mp4", "name of the virtual media source")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return err
	}
	setupLogger(cfg.Log)

	key := flagWatchKey
	if key == "" {
		key = cfg.Relay.AccessKey
	}
	if key == "" {
		return errors.New("access key is required (--key or ACCESS_KEY)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	video := agent.NewVirtualVideo(clock, flagWatchSource)
	a := agent.New(
		ws.NewDialer(agent.DialTimeout),
		agent.StaticSource{video},
		agent.WithClock(clock),
		agent.WithLogger(log.With().Str("component", "agent").Logger()),
	)

	if err := a.Connect(ctx, flagWatchURL, key); err != nil {
		log.Warn().Err(err).Msg("initial connect failed, retrying in background")
	}

	go readCommands(ctx, cmd.InOrStdin(), a, video, stop)
	a.Run(ctx)
	return nil
}

func readCommands(ctx context.Context, in io.Reader, a *agent.Agent, video *agent.VirtualVideo, stop func()) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if err := runCommand(a, video, scanner.Text()); err != nil {
			log.Warn().Err(err).Msg("command failed")
		}
	}
	stop()
}

func runCommand(a *agent.Agent, video *agent.VirtualVideo, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "play":
		if err := video.Play(); err != nil {
			return err
		}
		a.NotifyVideoEvent(video, agent.EventPlay)
	case "pause":
		if err := video.Pause(); err != nil {
			return err
		}
		a.NotifyVideoEvent(video, agent.EventPause)
	case "seek", "rate":
		if len(fields) != 2 {
			return fmt.Errorf("usage: %s <value>", fields[0])
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return fmt.Errorf("parse %s: %w", fields[0], err)
		}
		if fields[0] == "seek" {
			if err := video.Seek(v); err != nil {
				return err
			}
			a.NotifyVideoEvent(video, agent.EventSeeked)
			return nil
		}
		if err := video.SetRate(v); err != nil {
			return err
		}
		a.NotifyVideoEvent(video, agent.EventRateChange)
	case "status":
		st := a.State()
		vs := video.State()
		log.Info().
			Bool("connected", st.Connected).
			Bool("authenticated", st.Authenticated).
			Int("participants", st.Participants).
			Str("error", st.Error).
			Float64("currentTime", vs.CurrentTime).
			Bool("paused", vs.Paused).
			Float64("playbackRate", vs.PlaybackRate).
			Msg("status")
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
	return nil
}
