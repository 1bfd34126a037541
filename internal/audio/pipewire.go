package audio

import (
	"bytes"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/audiolibrelab/beatgrid/internal/sample"
)

const pwCat = "pw-cat"

// PipeWireDevice plays every voice through its own pw-cat process, for
// systems where the oto output cannot be opened. Latency is higher than oto.
type PipeWireDevice struct {
	sampleRate int
	target     string
	command    string

	mu     sync.Mutex
	voices map[*pipeWireVoice]struct{}
	closed bool
}

// NewPipeWireDevice creates a device playing to target, or to the default
// sink when target is empty
func NewPipeWireDevice(sampleRate int, target string) *PipeWireDevice {
	return &PipeWireDevice{
		sampleRate: sampleRate,
		target:     target,
		command:    pwCat,
		voices:     make(map[*pipeWireVoice]struct{}),
	}
}

func (d *PipeWireDevice) Backend() BackendType { return BackendTypePipeWire }
func (d *PipeWireDevice) SampleRate() int      { return d.sampleRate }

// Activate checks that pw-cat is installed
func (d *PipeWireDevice) Activate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("audio output is closed")
	}
	if _, err := exec.LookPath(d.command); err != nil {
		return fmt.Errorf("%s not found, is PipeWire installed? %w", d.command, err)
	}
	return nil
}

func (d *PipeWireDevice) Play(s *sample.Sample, gain float64) (Voice, error) {
	if s.SampleRate != d.sampleRate {
		return nil, fmt.Errorf("sample %s is %d Hz, output is %d Hz", s.Ref, s.SampleRate, d.sampleRate)
	}

	cmd := exec.Command(d.command, playbackArgs(d.sampleRate, gain, d.target)...)
	cmd.Stdin = bytes.NewReader(s.PCM)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, fmt.Errorf("audio output is closed")
	}
	if err := cmd.Start(); err != nil {
		d.mu.Unlock()
		return nil, fmt.Errorf("failed to start %s: %w", d.command, err)
	}
	v := &pipeWireVoice{cmd: cmd, done: make(chan struct{})}
	d.voices[v] = struct{}{}
	d.mu.Unlock()

	go func() {
		if err := cmd.Wait(); err != nil && !d.isClosed() {
			slog.Debug("Voice process failed", "sound", s.Ref, "error", err, "output", strings.TrimSpace(stderr.String()))
		}
		d.mu.Lock()
		delete(d.voices, v)
		d.mu.Unlock()
		close(v.done)
	}()
	return v, nil
}

func (d *PipeWireDevice) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Close kills every sounding voice
func (d *PipeWireDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	for v := range d.voices {
		if v.cmd.Process != nil {
			v.cmd.Process.Kill()
		}
	}
	return nil
}

// playbackArgs builds the pw-cat command line for raw 16-bit stereo on stdin
func playbackArgs(sampleRate int, gain float64, target string) []string {
	args := []string{
		"--playback",
		"--raw",
		"--format", "s16",
		"--rate", strconv.Itoa(sampleRate),
		"--channels", strconv.Itoa(sample.Channels),
		"--volume", strconv.FormatFloat(gain, 'f', 3, 64),
	}
	if target != "" {
		args = append(args, "--target", target)
	}
	return append(args, "-")
}

type pipeWireVoice struct {
	cmd  *exec.Cmd
	done chan struct{}
}

func (v *pipeWireVoice) Playing() bool {
	select {
	case <-v.done:
		return false
	default:
		return true
	}
}

// ListSinks returns the PipeWire/JACK playback ports, usable as audio.target
func ListSinks() ([]string, error) {
	cmd := exec.Command("pw-link", "-i")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list PipeWire ports: %w", err)
	}
	return parsePorts(string(output)), nil
}

// parsePorts extracts port names from pw-link output
func parsePorts(output string) []string {
	var ports []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "Input ports:") && !strings.HasPrefix(line, "Output ports:") {
			ports = append(ports, line)
		}
	}
	return ports
}
