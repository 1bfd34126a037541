package audio

import (
	"os/exec"
	"reflect"
	"testing"
	"time"

	"github.com/audiolibrelab/beatgrid/internal/sample"
)

func TestPlaybackArgs(t *testing.T) {
	got := playbackArgs(48000, 0.5, "")
	want := []string{"--playback", "--raw", "--format", "s16", "--rate", "48000", "--channels", "2", "--volume", "0.500", "-"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("playbackArgs = %v, want %v", got, want)
	}

	got = playbackArgs(44100, 1, "alsa_output.usb")
	if got[len(got)-3] != "--target" || got[len(got)-2] != "alsa_output.usb" || got[len(got)-1] != "-" {
		t.Errorf("Expected target before stdin marker, got %v", got)
	}
}

func TestParsePorts(t *testing.T) {
	output := `Input ports:
alsa_output.pci-0000_00_1f.3.analog-stereo:playback_FL
alsa_output.pci-0000_00_1f.3.analog-stereo:playback_FR

Firefox:input_FL
`
	ports := parsePorts(output)
	if len(ports) != 3 {
		t.Fatalf("Expected 3 ports, got %d: %v", len(ports), ports)
	}
	if ports[2] != "Firefox:input_FL" {
		t.Errorf("Unexpected port %q", ports[2])
	}
	if len(parsePorts("")) != 0 {
		t.Error("Expected no ports for empty output")
	}
}

func TestPipeWireDevice_MissingCommand(t *testing.T) {
	dev := NewPipeWireDevice(44100, "")
	dev.command = "beatgrid-no-such-command"
	if err := dev.Activate(); err == nil {
		t.Error("Expected an error when the player command is missing")
	}
}

func TestPipeWireDevice_VoiceLifecycle(t *testing.T) {
	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("true not available")
	}
	dev := NewPipeWireDevice(44100, "")
	dev.command = "true"
	defer dev.Close()

	if err := dev.Activate(); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	s := &sample.Sample{Ref: "kick.wav", SampleRate: 44100, PCM: make([]byte, 64)}
	v, err := dev.Play(s, 0.8)
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for v.Playing() {
		if time.Now().After(deadline) {
			t.Fatal("Voice never finished")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := dev.Play(&sample.Sample{Ref: "x.wav", SampleRate: 22050, PCM: make([]byte, 4)}, 1); err == nil {
		t.Error("Expected a sample rate mismatch error")
	}

	dev.Close()
	if _, err := dev.Play(s, 1); err == nil {
		t.Error("Expected an error after Close")
	}
}
