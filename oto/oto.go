// Package oto plays regentheme audio on the default output device using
// ebitengine/oto.
package oto

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/regenmon/regentheme"
)

type (
	// OtoContext is the regentheme.AudioContext of the default device. Only
	// one may exist per process.
	OtoContext struct {
		ctx   *oto.Context
		ready chan struct{}
	}

	OtoOutput struct {
		player *oto.Player
		reader *sourceReader
		once   sync.Once
		done   chan struct{}
	}

	sourceReader struct {
		mu      sync.Mutex
		source  regentheme.AudioSource
		buf     regentheme.AudioBuffer
		bytes   []byte
		pending []byte
		closed  bool
		err     error
	}
)

const otoBufferFrames = 2048

var _ regentheme.AudioContext = (*OtoContext)(nil)

// NewContext opens the output device. Audio may not be audible until
// Unlock returns.
func NewContext() (*OtoContext, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   regentheme.SampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
		BufferSize:   time.Second * otoBufferFrames / regentheme.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	return &OtoContext{ctx: ctx, ready: ready}, nil
}

// Unlock waits for the device to become ready and resumes it.
func (c *OtoContext) Unlock(ctx context.Context) error {
	select {
	case <-c.ready:
	case <-ctx.Done():
		return fmt.Errorf("audio device not ready: %w", ctx.Err())
	}
	if err := c.ctx.Resume(); err != nil {
		return fmt.Errorf("cannot resume oto context: %w", err)
	}
	return nil
}

// Close suspends the device. The context cannot be recreated in the same
// process, so it is only suspended.
func (c *OtoContext) Close() error {
	if err := c.ctx.Suspend(); err != nil {
		return fmt.Errorf("cannot suspend oto context: %w", err)
	}
	return nil
}

// Play starts pulling audio from source until the returned output is
// closed or the source fails.
func (c *OtoContext) Play(source regentheme.AudioSource) regentheme.CloserWaiter {
	r := &sourceReader{source: source}
	o := &OtoOutput{reader: r, done: make(chan struct{})}
	o.player = c.ctx.NewPlayer(r)
	o.player.Play()
	return o
}

// Close stops the playback. Calling it again is a no-op.
func (o *OtoOutput) Close() error {
	var err error
	o.once.Do(func() {
		o.reader.close()
		if e := o.player.Close(); e != nil {
			err = fmt.Errorf("cannot close oto player: %w", e)
		}
		close(o.done)
	})
	return err
}

// Wait blocks until Close has been called and returns the error of the
// source, if it failed.
func (o *OtoOutput) Wait() error {
	<-o.done
	return o.reader.error()
}

func (r *sourceReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, io.EOF
	}
	if r.err != nil {
		return 0, r.err
	}
	if len(r.pending) == 0 {
		frames := max(len(p)/bytesPerFrame, 1)
		if cap(r.buf) < frames {
			r.buf = make(regentheme.AudioBuffer, frames)
		}
		r.buf = r.buf[:frames]
		r.buf.Fill()
		if err := r.source(r.buf); err != nil {
			r.err = fmt.Errorf("audio source failed: %w", err)
			return 0, r.err
		}
		r.bytes = FloatBufferTo32BitLE(r.buf, r.bytes[:0])
		r.pending = r.bytes
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (r *sourceReader) close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

func (r *sourceReader) error() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
