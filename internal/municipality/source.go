package municipality

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
)

// Source fetches the full list of municipality names.
type Source interface {
	Fetch(ctx context.Context) ([]string, error)
}

// HTTPSource reads a JSON array of names from a URL.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

func NewHTTPSource(url string, client *http.Client) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{URL: url, Client: client}
}

func (s *HTTPSource) Fetch(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch municipalities: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch municipalities: unexpected status %d", resp.StatusCode)
	}
	return decode(resp.Body)
}

// FileSource reads a JSON array of names from a local file.
type FileSource struct {
	Path string
}

func (s FileSource) Fetch(ctx context.Context) ([]string, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open municipalities file: %w", err)
	}
	defer f.Close()
	return decode(f)
}

// StaticSource always returns the same names.
type StaticSource []string

func (s StaticSource) Fetch(ctx context.Context) ([]string, error) {
	return append([]string(nil), s...), nil
}

func decode(r io.Reader) ([]string, error) {
	var names []string
	if err := json.NewDecoder(r).Decode(&names); err != nil {
		return nil, fmt.Errorf("decode municipalities: %w", err)
	}
	return names, nil
}
