package play

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/audiolibrelab/beatgrid/internal/audio"
	"github.com/audiolibrelab/beatgrid/internal/sample"
)

type stubDecoder struct{}

func (stubDecoder) Decode(ref string, data []byte) (*sample.Sample, error) {
	return &sample.Sample{Ref: ref, SampleRate: 44100, PCM: data}, nil
}

// failingDevice fails every Play
type failingDevice struct {
	*audio.NullDevice
}

func (failingDevice) Play(*sample.Sample, float64) (audio.Voice, error) {
	return nil, errors.New("device unplugged")
}

func newEngine(t *testing.T, dev audio.Device) (*Engine, *sample.Cache) {
	t.Helper()
	lib := sample.NewMemoryLibrary(map[string][]byte{
		"kick.wav":  make([]byte, 64),
		"snare.wav": make([]byte, 64),
	})
	cache := sample.NewCache(lib, stubDecoder{})
	return New(cache, dev), cache
}

func TestFire_CacheMissIsNoOp(t *testing.T) {
	dev := audio.NewNullDevice(44100)
	engine, cache := newEngine(t, dev)

	engine.Fire("kick.wav", 1)

	if len(dev.Plays()) != 0 {
		t.Error("A cache miss must not play anything")
	}
	if _, ok := cache.Lookup("kick.wav"); ok {
		t.Error("Fire must never load a sound")
	}
	if engine.Stats().Misses != 1 {
		t.Errorf("Expected 1 miss, got %+v", engine.Stats())
	}
}

func TestFire_ClampsGain(t *testing.T) {
	dev := audio.NewNullDevice(44100)
	engine, cache := newEngine(t, dev)
	if _, err := cache.Get(context.Background(), "kick.wav"); err != nil {
		t.Fatal(err)
	}

	engine.Fire("kick.wav", 4)
	engine.Fire("kick.wav", -1)

	plays := dev.Plays()
	if len(plays) != 2 || plays[0].Gain != 1 || plays[1].Gain != 0 {
		t.Errorf("Expected gains clamped to [0 1], got %+v", plays)
	}
}

func TestFire_OverlappingVoices(t *testing.T) {
	dev := audio.NewNullDevice(44100)
	engine, cache := newEngine(t, dev)
	cache.Get(context.Background(), "kick.wav")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			engine.Fire("kick.wav", 0.8)
		}()
	}
	wg.Wait()

	if n := len(dev.Plays()); n != 8 {
		t.Errorf("Every fire should start its own voice, got %d", n)
	}
	if engine.Stats().Fired != 8 {
		t.Errorf("Expected 8 fired, got %+v", engine.Stats())
	}
}

func TestFire_DeviceErrorAbsorbed(t *testing.T) {
	engine, cache := newEngine(t, failingDevice{audio.NewNullDevice(44100)})
	cache.Get(context.Background(), "kick.wav")

	engine.Fire("kick.wav", 1)

	if engine.Stats().Failures != 1 {
		t.Errorf("Expected 1 failure, got %+v", engine.Stats())
	}
}

func TestPreview(t *testing.T) {
	dev := audio.NewNullDevice(44100)
	engine, cache := newEngine(t, dev)

	if err := engine.Preview(context.Background(), "snare.wav", 0.7); err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if _, ok := cache.Lookup("snare.wav"); !ok {
		t.Error("Preview should load the sound")
	}
	plays := dev.Plays()
	if len(plays) != 1 || plays[0].Ref != "snare.wav" || plays[0].Gain != 0.7 {
		t.Errorf("Unexpected plays %+v", plays)
	}
	if dev.Activations() != 1 {
		t.Errorf("Preview should activate the device, got %d", dev.Activations())
	}

	if err := engine.Preview(context.Background(), "ghost.wav", 1); !errors.Is(err, sample.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
