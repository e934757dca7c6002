// Package version resolves the latest published versions of the tools the
// guide references, caching results so guide pages do not hammer the
// upstream registries.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Source is one upstream version endpoint plus the logic to pull a version
// string out of its response.
type Source struct {
	URL     string
	Extract func(raw []byte) (string, error)
}

// Fetcher resolves and caches latest versions per named source. Safe for
// concurrent use.
type Fetcher struct {
	Client *http.Client
	TTL    time.Duration

	mu      sync.Mutex
	sources map[string]Source
	cache   map[string]cacheEntry
}

type cacheEntry struct {
	version   string
	fetchedAt time.Time
}

// NewFetcher returns a fetcher preloaded with the tools the guide displays.
func NewFetcher() *Fetcher {
	f := &Fetcher{
		Client:  &http.Client{Timeout: 10 * time.Second},
		TTL:     24 * time.Hour,
		sources: make(map[string]Source),
		cache:   make(map[string]cacheEntry),
	}
	f.Register("claude-code", NPMSource("@anthropic-ai/claude-code"))
	f.Register("npm", NPMSource("npm"))
	f.Register("node", Source{URL: "https://nodejs.org/dist/index.json", Extract: extractNodeLTS})
	f.Register("homebrew", Source{URL: "https://formulae.brew.sh/api/formula/homebrew.json", Extract: extractBrewStable})
	f.Register("git-windows", Source{URL: "https://api.github.com/repos/git-for-windows/git/releases/latest", Extract: extractGitHubTag})
	return f
}

// NPMSource builds a source reading the latest dist-tag from the npm
// registry.
func NPMSource(pkg string) Source {
	return Source{
		URL: "https://registry.npmjs.org/" + pkg,
		Extract: func(raw []byte) (string, error) {
			var body struct {
				DistTags struct {
					Latest string `json:"latest"`
				} `json:"dist-tags"`
			}
			if err := json.Unmarshal(raw, &body); err != nil {
				return "", err
			}
			return body.DistTags.Latest, nil
		},
	}
}

func (f *Fetcher) Register(key string, src Source) {
	f.mu.Lock()
	f.sources[key] = src
	f.mu.Unlock()
}

// Keys lists the registered source names.
func (f *Fetcher) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.sources))
	for k := range f.sources {
		keys = append(keys, k)
	}
	return keys
}

// Latest returns the named source's latest version. Cache hits within the
// TTL are served directly; on upstream failure a stale cached value is
// returned rather than an error.
func (f *Fetcher) Latest(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	src, known := f.sources[key]
	entry, cached := f.cache[key]
	f.mu.Unlock()

	if !known {
		return "", fmt.Errorf("unknown version source %q", key)
	}
	if cached && time.Since(entry.fetchedAt) < f.TTL {
		return entry.version, nil
	}

	v, err := f.fetch(ctx, key, src)
	if err != nil {
		if cached {
			return entry.version, nil
		}
		return "", err
	}

	f.mu.Lock()
	f.cache[key] = cacheEntry{version: v, fetchedAt: time.Now()}
	f.mu.Unlock()
	return v, nil
}

func (f *Fetcher) fetch(ctx context.Context, key string, src Source) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request for %s: %w", key, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("source %s unreachable: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("source %s returned status %d", key, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response for %s: %w", key, err)
	}

	v, err := src.Extract(raw)
	if err != nil {
		return "", fmt.Errorf("failed to extract version for %s: %w", key, err)
	}
	if v == "" {
		return "", fmt.Errorf("source %s returned an empty version", key)
	}
	return v, nil
}

func extractNodeLTS(raw []byte) (string, error) {
	var releases []struct {
		Version string          `json:"version"`
		LTS     json.RawMessage `json:"lts"`
	}
	if err := json.Unmarshal(raw, &releases); err != nil {
		return "", err
	}
	for _, r := range releases {
		// lts is false for non-LTS releases and a codename string otherwise.
		if len(r.LTS) > 0 && string(r.LTS) != "false" {
			return r.Version, nil
		}
	}
	if len(releases) > 0 {
		return releases[0].Version, nil
	}
	return "", fmt.Errorf("empty release index")
}

func extractBrewStable(raw []byte) (string, error) {
	var body struct {
		Versions struct {
			Stable string `json:"stable"`
		} `json:"versions"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", err
	}
	return body.Versions.Stable, nil
}

func extractGitHubTag(raw []byte) (string, error) {
	var body struct {
		TagName string `json:"tag_name"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", err
	}
	return strings.TrimPrefix(body.TagName, "v"), nil
}
