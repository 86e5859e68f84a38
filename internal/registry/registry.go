// Package registry is the persistent selector cache: one JSON file per page
// identity, mapping normalized element descriptor keys to the last selector
// that successfully located a visible element.
//
// Concurrency: lookups and saves go through an in-memory cache guarded by a
// mutex, and saves flush to disk with a merge rather than a blind overwrite,
// so parallel scenarios in one process never lose each other's entries.
// Across processes the registry is last-writer-wins per page file.
package registry

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Registry caches selectors per page identity. Safe for concurrent use.
type Registry struct {
	dir    string
	logger *zap.Logger

	mu    sync.Mutex
	pages map[string]map[string]string // identity -> descriptor key -> selector
}

func New(dir string, logger *zap.Logger) (*Registry, error) {
	if dir == "" {
		return nil, fmt.Errorf("registry directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		dir:    dir,
		logger: logger,
		pages:  make(map[string]map[string]string),
	}, nil
}

// PageIdentity derives a stable identity from a page URL. Only the path
// contributes, so query-string changes map to the same store.
func PageIdentity(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil && (u.Scheme != "" || u.Host != "" || u.Path != "") {
		path = u.Path
	}
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}

	var b strings.Builder
	for _, r := range strings.Trim(path, "/") {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteByte('-')
		}
	}
	identity := strings.Trim(b.String(), "-")
	if identity == "" {
		return "root"
	}
	return identity
}

// Lookup returns the cached selector for a descriptor key on the given page,
// loading the page file on first access.
func (r *Registry) Lookup(pageURL, descriptorKey string) (string, bool) {
	identity := PageIdentity(pageURL)

	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.loadLocked(identity)
	if err != nil {
		r.logger.Warn("Failed to load selector registry page.",
			zap.String("identity", identity), zap.Error(err))
		return "", false
	}
	sel, ok := entries[descriptorKey]
	return sel, ok
}

// Save records a selector that just located a visible element, overwriting
// any stale entry, and flushes the page file.
func (r *Registry) Save(pageURL, descriptorKey, selector string) error {
	identity := PageIdentity(pageURL)

	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.loadLocked(identity)
	if err != nil {
		// A corrupt file is replaced rather than blocking every save.
		r.logger.Warn("Discarding unreadable selector registry page.",
			zap.String("identity", identity), zap.Error(err))
		entries = make(map[string]string)
		r.pages[identity] = entries
	}
	entries[descriptorKey] = selector
	return r.flushLocked(identity, entries)
}

func (r *Registry) loadLocked(identity string) (map[string]string, error) {
	if entries, ok := r.pages[identity]; ok {
		return entries, nil
	}
	entries := make(map[string]string)
	raw, err := os.ReadFile(r.pageFile(identity))
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, err
	default:
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("corrupt registry file: %w", err)
		}
	}
	r.pages[identity] = entries
	return entries, nil
}

// flushLocked merges the in-memory entries over whatever is on disk before
// writing, so a concurrent writer's entries for other descriptors survive.
func (r *Registry) flushLocked(identity string, entries map[string]string) error {
	merged := make(map[string]string, len(entries))
	if raw, err := os.ReadFile(r.pageFile(identity)); err == nil {
		// Ignore a corrupt on-disk state here; our entries win.
		_ = json.Unmarshal(raw, &merged)
	}
	for k, v := range entries {
		merged[k] = v
	}

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode registry page: %w", err)
	}
	if err := os.WriteFile(r.pageFile(identity), data, 0o644); err != nil {
		return fmt.Errorf("failed to write registry page: %w", err)
	}
	r.pages[identity] = merged
	return nil
}

func (r *Registry) pageFile(identity string) string {
	return filepath.Join(r.dir, identity+".json")
}
