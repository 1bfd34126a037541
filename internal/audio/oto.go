package audio

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/audiolibrelab/beatgrid/internal/sample"
)

// reapInterval is how often finished players are checked for
const reapInterval = 20 * time.Millisecond

// oto allows a single context per process
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
	otoRate int
)

func sharedOtoContext(sampleRate int, buffer time.Duration) (*oto.Context, error) {
	otoOnce.Do(func() {
		otoRate = sampleRate
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: sample.Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   buffer,
		})
		if err != nil {
			otoErr = fmt.Errorf("failed to open audio output: %w", err)
			return
		}
		<-ready
		otoCtx = ctx
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoRate != sampleRate {
		return nil, fmt.Errorf("audio output already opened at %d Hz (requested %d Hz)", otoRate, sampleRate)
	}
	return otoCtx, nil
}

// OtoDevice plays samples through the system output. Each Play creates its
// own oto player so overlapping voices never cut each other off.
type OtoDevice struct {
	sampleRate int
	buffer     time.Duration

	mu      sync.Mutex
	ctx     *oto.Context
	players map[*oto.Player]struct{}
	closed  bool
}

func NewOtoDevice(sampleRate int, buffer time.Duration) *OtoDevice {
	return &OtoDevice{
		sampleRate: sampleRate,
		buffer:     buffer,
		players:    make(map[*oto.Player]struct{}),
	}
}

func (d *OtoDevice) Backend() BackendType { return BackendTypeOto }
func (d *OtoDevice) SampleRate() int      { return d.sampleRate }

func (d *OtoDevice) Activate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.activateLocked()
	return err
}

func (d *OtoDevice) activateLocked() (*oto.Context, error) {
	if d.closed {
		return nil, fmt.Errorf("audio output is closed")
	}
	if d.ctx == nil {
		ctx, err := sharedOtoContext(d.sampleRate, d.buffer)
		if err != nil {
			return nil, err
		}
		d.ctx = ctx
	}
	if err := d.ctx.Resume(); err != nil {
		return nil, fmt.Errorf("failed to resume audio output: %w", err)
	}
	return d.ctx, nil
}

func (d *OtoDevice) Play(s *sample.Sample, gain float64) (Voice, error) {
	if s.SampleRate != d.sampleRate {
		return nil, fmt.Errorf("sample %s is %d Hz, output is %d Hz", s.Ref, s.SampleRate, d.sampleRate)
	}

	d.mu.Lock()
	ctx := d.ctx
	if ctx == nil {
		var err error
		if ctx, err = d.activateLocked(); err != nil {
			d.mu.Unlock()
			return nil, err
		}
	}
	if d.closed {
		d.mu.Unlock()
		return nil, fmt.Errorf("audio output is closed")
	}

	player := ctx.NewPlayer(bytes.NewReader(s.PCM))
	d.players[player] = struct{}{}
	d.mu.Unlock()

	player.SetVolume(gain)
	player.Play()

	go d.reap(player)
	return otoVoice{player}, nil
}

// reap closes the player once it has drained
func (d *OtoDevice) reap(player *oto.Player) {
	for player.IsPlaying() {
		time.Sleep(reapInterval)
	}

	d.mu.Lock()
	_, owned := d.players[player]
	delete(d.players, player)
	d.mu.Unlock()

	if owned {
		player.Close()
	}
}

// Close stops every voice and suspends the output
func (d *OtoDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	for player := range d.players {
		player.Pause()
		player.Close()
	}
	d.players = make(map[*oto.Player]struct{})

	if d.ctx != nil {
		if err := d.ctx.Suspend(); err != nil {
			return fmt.Errorf("failed to suspend audio output: %w", err)
		}
	}
	return nil
}

type otoVoice struct {
	player *oto.Player
}

func (v otoVoice) Playing() bool {
	return v.player.IsPlaying()
}
