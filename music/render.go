package music

import (
	"context"
	"fmt"

	"github.com/regenmon/regentheme"
	"github.com/regenmon/regentheme/synth"
	"github.com/regenmon/regentheme/transport"
)

const renderBlock = 512

// Render plays loops repetitions of the theme offline, exactly as the
// controller would play them live, and returns the audio. A zero theme is
// the default theme. rand drives the ambient notes; nil uses a random seed.
func Render(theme regentheme.Theme, loops int, rand regentheme.RandomSource) (regentheme.AudioBuffer, error) {
	if loops <= 0 {
		return nil, fmt.Errorf("loops must be positive, got %d", loops)
	}
	if theme.BPM == 0 {
		theme = regentheme.DefaultTheme()
	}
	clock := transport.New(regentheme.SampleRate)
	player := NewPlayer(clock)
	c := NewController(Config{
		Clock:       clock,
		Destination: player,
		Synther:     synth.Synther{SampleRate: regentheme.SampleRate},
		Rand:        rand,
		Theme:       theme,
	})
	defer c.Close()
	if err := c.Start(context.Background()); err != nil {
		return nil, fmt.Errorf("could not start theme: %w", err)
	}
	total := clock.FramesFor(regentheme.Ticks(loops) * theme.LoopTicks())
	buf := make(regentheme.AudioBuffer, total)
	for i := 0; i < total; i += renderBlock {
		if err := player.Process(buf[i:min(i+renderBlock, total)]); err != nil {
			return nil, fmt.Errorf("render failed: %w", err)
		}
	}
	return buf, nil
}
