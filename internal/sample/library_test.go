package sample

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeSounds(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("data:"+name), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	return dir
}

func TestDirLibrary_Sounds(t *testing.T) {
	dir := writeSounds(t, "snare.wav", "Kick.mp3", "hat.ogg", "notes.txt")
	if err := os.Mkdir(filepath.Join(dir, "sub.wav"), 0755); err != nil {
		t.Fatal(err)
	}

	lib := NewDirLibrary(dir, nil, nil)
	sounds, err := lib.Sounds(context.Background())
	if err != nil {
		t.Fatalf("Sounds failed: %v", err)
	}

	want := []string{"hat.ogg", "Kick.mp3", "snare.wav"}
	if len(sounds) != len(want) {
		t.Fatalf("Expected %v, got %v", want, sounds)
	}
	for i := range want {
		if sounds[i] != want[i] {
			t.Errorf("Expected sounds[%d] = %s, got %s", i, want[i], sounds[i])
		}
	}
}

func TestDirLibrary_Resolve(t *testing.T) {
	dir := writeSounds(t, "kick.wav")
	lib := NewDirLibrary(dir, nil, nil)
	ctx := context.Background()

	data, err := lib.Resolve(ctx, "kick.wav")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if string(data) != "data:kick.wav" {
		t.Errorf("Unexpected content %q", data)
	}

	for _, ref := range []string{"missing.wav", "../kick.wav", "sub/kick.wav", "..", "", "kick.txt"} {
		if _, err := lib.Resolve(ctx, ref); !errors.Is(err, ErrNotFound) {
			t.Errorf("Resolve(%q): expected ErrNotFound, got %v", ref, err)
		}
		if lib.Has(ctx, ref) {
			t.Errorf("Has(%q) should be false", ref)
		}
	}
	if !lib.Has(ctx, "kick.wav") {
		t.Error("Has(kick.wav) should be true")
	}
}

func TestDirLibrary_FixedCatalog(t *testing.T) {
	dir := writeSounds(t, "kick.wav", "snare.wav")
	lib := NewDirLibrary(dir, []string{".WAV"}, []string{"kick.wav"})
	ctx := context.Background()

	sounds, err := lib.Sounds(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sounds) != 1 || sounds[0] != "kick.wav" {
		t.Errorf("Expected only kick.wav, got %v", sounds)
	}

	// Present on disk but outside the catalog
	if _, err := lib.Resolve(ctx, "snare.wav"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for snare.wav, got %v", err)
	}
}

func TestMemoryLibrary(t *testing.T) {
	lib := NewMemoryLibrary(map[string][]byte{"b.wav": {2}})
	lib.Put("a.wav", []byte{1})
	ctx := context.Background()

	sounds, _ := lib.Sounds(ctx)
	if len(sounds) != 2 || sounds[0] != "a.wav" || sounds[1] != "b.wav" {
		t.Errorf("Unexpected catalog %v", sounds)
	}
	if _, err := lib.Resolve(ctx, "c.wav"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestFilter(t *testing.T) {
	sounds := []string{"Kick.wav", "kick2.wav", "snare.wav"}

	if got := Filter(sounds, "KICK"); len(got) != 2 {
		t.Errorf("Expected 2 matches, got %v", got)
	}
	if got := Filter(sounds, "  "); len(got) != 3 {
		t.Errorf("Empty query should return everything, got %v", got)
	}
	if got := Filter(sounds, "clap"); len(got) != 0 {
		t.Errorf("Expected no matches, got %v", got)
	}
}

func TestHTTPLibrary(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sounds", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`["snare.wav","kick.wav"]`))
	})
	mux.HandleFunc("/sounds/kick.wav", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("KICK"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	lib := NewHTTPLibrary(srv.URL+"/", nil)
	ctx := context.Background()

	sounds, err := lib.Sounds(ctx)
	if err != nil {
		t.Fatalf("Sounds failed: %v", err)
	}
	if len(sounds) != 2 || sounds[0] != "kick.wav" {
		t.Errorf("Unexpected catalog %v", sounds)
	}

	data, err := lib.Resolve(ctx, "kick.wav")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if string(data) != "KICK" {
		t.Errorf("Unexpected body %q", data)
	}

	// In the catalog but the server has no file for it
	if _, err := lib.Resolve(ctx, "snare.wav"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for 404, got %v", err)
	}
	if _, err := lib.Resolve(ctx, "clap.wav"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound outside catalog, got %v", err)
	}
}
