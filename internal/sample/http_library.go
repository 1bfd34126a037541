package sample

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"
)

// HTTPLibrary reads sounds from a remote beatgrid server (or any server that
// exposes the same /api/sounds and /sounds/{file} layout)
type HTTPLibrary struct {
	baseURL string
	client  *http.Client
}

// NewHTTPLibrary creates a library rooted at baseURL. A nil client uses a
// client with a 10 second timeout.
func NewHTTPLibrary(baseURL string, client *http.Client) *HTTPLibrary {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPLibrary{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Sounds fetches the remote catalog
func (l *HTTPLibrary) Sounds(ctx context.Context) ([]string, error) {
	body, status, err := l.get(ctx, l.baseURL+"/api/sounds")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("sound catalog request failed with status %d", status)
	}

	var sounds []string
	if err := json.Unmarshal(body, &sounds); err != nil {
		return nil, fmt.Errorf("failed to parse sound catalog: %w", err)
	}
	sortSounds(sounds)
	return sounds, nil
}

func (l *HTTPLibrary) Has(ctx context.Context, ref string) bool {
	sounds, err := l.Sounds(ctx)
	if err != nil {
		return false
	}
	return slices.Contains(sounds, ref)
}

// Resolve downloads a catalog sound
func (l *HTTPLibrary) Resolve(ctx context.Context, ref string) ([]byte, error) {
	if !l.Has(ctx, ref) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}

	body, status, err := l.get(ctx, l.baseURL+"/sounds/"+url.PathEscape(ref))
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("%w: %s (%d)", ErrNotFound, ref, status)
	}
	return body, nil
}

func (l *HTTPLibrary) get(ctx context.Context, target string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request for %s: %w", target, err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request to %s failed: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response from %s: %w", target, err)
	}
	return body, resp.StatusCode, nil
}
