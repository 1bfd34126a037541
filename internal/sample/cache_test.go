package sample

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// countingDecoder returns a fixed sample and counts calls. When gate is set,
// every decode blocks until it is closed.
type countingDecoder struct {
	calls atomic.Int32
	gate  chan struct{}
	fail  atomic.Bool
}

func (d *countingDecoder) Decode(ref string, data []byte) (*Sample, error) {
	d.calls.Add(1)
	if d.gate != nil {
		<-d.gate
	}
	if d.fail.Load() {
		return nil, ErrDecode
	}
	return &Sample{Ref: ref, SampleRate: 44100, PCM: make([]byte, 8)}, nil
}

func TestCache_GetCaches(t *testing.T) {
	dec := &countingDecoder{}
	cache := NewCache(NewMemoryLibrary(map[string][]byte{"kick.wav": {1}}), dec)
	ctx := context.Background()

	if _, ok := cache.Lookup("kick.wav"); ok {
		t.Fatal("Lookup should miss before the first Get")
	}

	first, err := cache.Get(ctx, "kick.wav")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	second, err := cache.Get(ctx, "kick.wav")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if first != second {
		t.Error("Expected the same sample on both calls")
	}
	if n := dec.calls.Load(); n != 1 {
		t.Errorf("Expected 1 decode, got %d", n)
	}
	if s, ok := cache.Lookup("kick.wav"); !ok || s != first {
		t.Error("Lookup should return the cached sample")
	}
}

func TestCache_ConcurrentGetDecodesOnce(t *testing.T) {
	dec := &countingDecoder{gate: make(chan struct{})}
	cache := NewCache(NewMemoryLibrary(map[string][]byte{"kick.wav": {1}}), dec)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]*Sample, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.Get(ctx, "kick.wav")
		}(i)
	}

	// Let both callers reach the in-flight load before releasing it
	deadline := time.Now().Add(2 * time.Second)
	for dec.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(dec.gate)
	wg.Wait()

	for i := range errs {
		if errs[i] != nil {
			t.Fatalf("Get %d failed: %v", i, errs[i])
		}
	}
	if results[0] != results[1] {
		t.Error("Both callers should observe the same sample")
	}
	if n := dec.calls.Load(); n != 1 {
		t.Errorf("Expected exactly 1 decode, got %d", n)
	}
}

func TestCache_NotFound(t *testing.T) {
	dec := &countingDecoder{}
	cache := NewCache(NewMemoryLibrary(nil), dec)

	_, err := cache.Get(context.Background(), "ghost.wav")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	if dec.calls.Load() != 0 {
		t.Error("Decoder should not run for unknown sounds")
	}
}

func TestCache_DecodeFailureNotCached(t *testing.T) {
	dec := &countingDecoder{}
	dec.fail.Store(true)
	cache := NewCache(NewMemoryLibrary(map[string][]byte{"kick.wav": {1}}), dec)
	ctx := context.Background()

	if _, err := cache.Get(ctx, "kick.wav"); !errors.Is(err, ErrDecode) {
		t.Fatalf("Expected ErrDecode, got %v", err)
	}
	if _, ok := cache.Lookup("kick.wav"); ok {
		t.Fatal("Failed decode must not leave an entry")
	}

	dec.fail.Store(false)
	if _, err := cache.Get(ctx, "kick.wav"); err != nil {
		t.Fatalf("Retry should succeed, got %v", err)
	}
	if dec.calls.Load() != 2 {
		t.Errorf("Expected 2 decode attempts, got %d", dec.calls.Load())
	}
}

func TestCache_Preload(t *testing.T) {
	dec := &countingDecoder{}
	lib := NewMemoryLibrary(map[string][]byte{"a.wav": {1}, "b.wav": {2}, "c.wav": {3}})
	cache := NewCache(lib, dec)

	n, err := cache.Preload(context.Background(), []string{"a.wav", "b.wav", "missing.wav", "c.wav"})
	if err != nil {
		t.Fatalf("Preload failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 loaded, got %d", n)
	}
	if cache.Len() != 3 {
		t.Errorf("Expected 3 entries, got %d", cache.Len())
	}
}

// monoWAV builds a minimal 16-bit PCM mono wav file
func monoWAV(rate int, samples []int16) []byte {
	dataLen := len(samples) * 2
	buf := make([]byte, 44+dataLen)
	copy(buf[0:], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:], uint32(36+dataLen))
	copy(buf[8:], "WAVE")
	copy(buf[12:], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:], 16)
	binary.LittleEndian.PutUint16(buf[20:], 1)
	binary.LittleEndian.PutUint16(buf[22:], 1)
	binary.LittleEndian.PutUint32(buf[24:], uint32(rate))
	binary.LittleEndian.PutUint32(buf[28:], uint32(rate*2))
	binary.LittleEndian.PutUint16(buf[32:], 2)
	binary.LittleEndian.PutUint16(buf[34:], 16)
	copy(buf[36:], "data")
	binary.LittleEndian.PutUint32(buf[40:], uint32(dataLen))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[44+i*2:], uint16(s))
	}
	return buf
}

func TestFormatDecoder_WAV(t *testing.T) {
	samples := make([]int16, 100)
	for i := range samples {
		samples[i] = 16384
	}

	s, err := NewFormatDecoder(44100).Decode("tone.wav", monoWAV(44100, samples))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if s.Frames() != 100 {
		t.Errorf("Expected 100 stereo frames, got %d", s.Frames())
	}
	l, r := s.Frame(10)
	if l != 0.5 || r != 0.5 {
		t.Errorf("Expected both channels at 0.5, got %v %v", l, r)
	}
}

func TestFormatDecoder_Errors(t *testing.T) {
	dec := NewFormatDecoder(44100)

	if _, err := dec.Decode("kick.flac", []byte{1, 2, 3}); !errors.Is(err, ErrDecode) {
		t.Errorf("Unsupported extension: expected ErrDecode, got %v", err)
	}
	if _, err := dec.Decode("kick.wav", []byte("not a wav file at all")); !errors.Is(err, ErrDecode) {
		t.Errorf("Garbage data: expected ErrDecode, got %v", err)
	}
	if _, err := dec.Decode("kick.wav", nil); !errors.Is(err, ErrDecode) {
		t.Errorf("Empty data: expected ErrDecode, got %v", err)
	}
}

// ctxLibrary fails resolves whose context is already done
type ctxLibrary struct {
	*MemoryLibrary
}

func (l ctxLibrary) Resolve(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.MemoryLibrary.Resolve(ctx, ref)
}

func TestCache_GetSurvivesCallerCancel(t *testing.T) {
	dec := &countingDecoder{}
	lib := ctxLibrary{NewMemoryLibrary(map[string][]byte{"kick.wav": {1}})}
	cache := NewCache(lib, dec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := cache.Get(ctx, "kick.wav"); err != nil {
		t.Fatalf("Get failed after caller cancel: %v", err)
	}
	if _, ok := cache.Lookup("kick.wav"); !ok {
		t.Error("Expected the load to complete and be cached")
	}
}
