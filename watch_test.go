package main

import (
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ygkn/video-sync-watch/agent"
	"github.com/ygkn/video-sync-watch/domain"
)

func TestRunCommand(t *testing.T) {
	video := agent.NewVirtualVideo(clockwork.NewFakeClock(), "test.mp4")
	a := agent.New(nil, agent.StaticSource{video})

	require.NoError(t, runCommand(a, video, "seek 42"))
	require.NoError(t, runCommand(a, video, "rate 2"))
	require.NoError(t, runCommand(a, video, "play"))
	require.NoError(t, runCommand(a, video, "status"))
	require.NoError(t, runCommand(a, video, "   "))

	assert.Equal(t, domain.PlaybackState{CurrentTime: 42, Paused: false, PlaybackRate: 2}, video.State())

	require.NoError(t, runCommand(a, video, "pause"))
	assert.True(t, video.State().Paused)

	assert.Error(t, runCommand(a, video, "seek"))
	assert.Error(t, runCommand(a, video, "seek soon"))
	assert.Error(t, runCommand(a, video, "rate 0"))
	assert.Error(t, runCommand(a, video, "rewind"))
}

func TestWatchFlags(t *testing.T) {
	require.NoError(t, watchCmd.ParseFlags([]string{"--source", "movie.mp4", "--url", "ws://relay/ws"}))
	assert.Equal(t, "movie.mp4", flagWatchSource)
	assert.Equal(t, "ws://relay/ws", flagWatchURL)
}
