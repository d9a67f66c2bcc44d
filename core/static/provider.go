package static

import (
	"container/list"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNotFound is returned when a file is missing, unreadable or a directory
var ErrNotFound = errors.New("static: file not found")

// Defaults for NewProvider
const (
	DefaultMaxFiles    = 1000
	DefaultMaxFileSize = 1 << 20
)

// Provider loads files from disk for Response.SendFile and keeps the
// contents of recently used files in an LRU cache. A cached entry is reused
// only while the file's size and modification time are unchanged.
type Provider struct {
	root        string
	maxFiles    int
	maxFileSize int64

	mu      sync.Mutex
	cache   map[string]*cacheEntry
	lruList *list.List

	hits   atomic.Uint64
	misses atomic.Uint64
}

type cacheEntry struct {
	data        []byte
	contentType string
	modTime     time.Time
	size        int64
	element     *list.Element
}

// Option configures a Provider
type Option func(*Provider)

// WithMaxFiles bounds the number of cached files
func WithMaxFiles(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.maxFiles = n
		}
	}
}

// WithMaxFileSize sets the largest file kept in the cache; bigger files are
// read on every request
func WithMaxFileSize(n int64) Option {
	return func(p *Provider) {
		if n > 0 {
			p.maxFileSize = n
		}
	}
}

// NewProvider serves files below root. An empty root resolves paths against
// the working directory as given.
func NewProvider(root string, opts ...Option) *Provider {
	p := &Provider{
		root:        root,
		maxFiles:    DefaultMaxFiles,
		maxFileSize: DefaultMaxFileSize,
		cache:       make(map[string]*cacheEntry),
		lruList:     list.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// resolve maps a request path into root. Paths cannot climb above root.
func (p *Provider) resolve(path string) string {
	if p.root == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(p.root, filepath.Clean("/"+path))
}

// Open returns the file contents and content type for path
func (p *Provider) Open(path string) ([]byte, string, error) {
	name := p.resolve(path)

	info, err := os.Stat(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, "", fmt.Errorf("static: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, "", fmt.Errorf("%w: %s is a directory", ErrNotFound, path)
	}

	if data, contentType, ok := p.lookup(name, info); ok {
		p.hits.Add(1)
		return data, contentType, nil
	}
	p.misses.Add(1)

	data, err := os.ReadFile(name)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %v", ErrNotFound, path, err)
	}
	contentType := ContentType(name)

	if info.Size() <= p.maxFileSize {
		p.store(name, data, contentType, info)
	}
	return data, contentType, nil
}

func (p *Provider) lookup(name string, info fs.FileInfo) ([]byte, string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.cache[name]
	if !ok {
		return nil, "", false
	}
	if !entry.modTime.Equal(info.ModTime()) || entry.size != info.Size() {
		p.lruList.Remove(entry.element)
		delete(p.cache, name)
		return nil, "", false
	}

	// Move to front (most recently used)
	p.lruList.MoveToFront(entry.element)
	return entry.data, entry.contentType, true
}

func (p *Provider) store(name string, data []byte, contentType string, info fs.FileInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if old, ok := p.cache[name]; ok {
		p.lruList.Remove(old.element)
	}

	p.cache[name] = &cacheEntry{
		data:        data,
		contentType: contentType,
		modTime:     info.ModTime(),
		size:        info.Size(),
		element:     p.lruList.PushFront(name),
	}

	// Evict oldest if over limit
	for p.lruList.Len() > p.maxFiles {
		oldest := p.lruList.Back()
		delete(p.cache, oldest.Value.(string))
		p.lruList.Remove(oldest)
	}
}

// Purge empties the cache
func (p *Provider) Purge() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cache = make(map[string]*cacheEntry)
	p.lruList.Init()
}

// Stats returns cache statistics
func (p *Provider) Stats() Stats {
	p.mu.Lock()
	cached := p.lruList.Len()
	p.mu.Unlock()

	return Stats{
		Cached: cached,
		Hits:   p.hits.Load(),
		Misses: p.misses.Load(),
	}
}

// Stats contains provider cache statistics
type Stats struct {
	Cached int    `json:"cached"`
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

var contentTypes = map[string]string{
	".html":  "text/html",
	".htm":   "text/html",
	".css":   "text/css",
	".js":    "application/javascript",
	".json":  "application/json",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".svg":   "image/svg+xml",
	".ico":   "image/x-icon",
	".woff2": "font/woff2",
}

// ContentType returns the MIME type for a file name by extension, or
// text/plain when the extension is unknown
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "text/plain"
}
