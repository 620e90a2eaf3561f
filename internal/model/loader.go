package model

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ensemble-signal-engine/internal/logging"

	"github.com/rs/zerolog"
)

// ErrUnsupportedFormat is returned when no loader claims a model file.
var ErrUnsupportedFormat = errors.New("unsupported model format")

// Loader loads a model file into a Handle.
type Loader interface {
	Load(path string) (Handle, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(path string) (Handle, error)

// Load implements Loader.
func (f LoaderFunc) Load(path string) (Handle, error) { return f(path) }

// LinearLoader reads .json coefficient files.
func LinearLoader() Loader {
	return LoaderFunc(func(path string) (Handle, error) {
		var m linearModel
		if err := readJSONModel(path, &m); err != nil {
			return nil, err
		}
		if len(m.Weights) == 0 {
			return nil, fmt.Errorf("model file %s has no weights", path)
		}
		return &m, nil
	})
}

// RulesLoader reads .rules threshold files.
func RulesLoader() Loader {
	return LoaderFunc(func(path string) (Handle, error) {
		var m rulesModel
		if err := readJSONModel(path, &m); err != nil {
			return nil, err
		}
		if m.Confidence < 0 || m.Confidence > 1 {
			return nil, fmt.Errorf("model file %s has confidence outside [0,1]", path)
		}
		return &m, nil
	})
}

// Registry resolves a loader by file extension, falling back to trying every
// registered loader, and caches loaded handles by path.
type Registry struct {
	loaders map[string]Loader
	cache   *cache
	log     zerolog.Logger
}

// NewRegistry creates a registry with the built-in loaders.
func NewRegistry() *Registry {
	return &Registry{
		loaders: map[string]Loader{
			".json":  LinearLoader(),
			".rules": RulesLoader(),
		},
		cache: newCache(20),
		log:   logging.Component("model"),
	}
}

// Register adds or replaces the loader for an extension.
func (r *Registry) Register(ext string, loader Loader) {
	r.loaders[strings.ToLower(ext)] = loader
}

// Load loads a model, serving repeat loads from the cache.
func (r *Registry) Load(path string) (Handle, error) {
	if h := r.cache.get(path); h != nil {
		r.log.Debug().Str("path", path).Msg("Model served from cache")
		return h, nil
	}

	start := time.Now()
	handle, err := r.load(path)
	if err != nil {
		return nil, err
	}

	r.cache.put(path, handle)
	r.log.Info().Str("path", path).Dur("elapsed", time.Since(start)).Msg("Model loaded")
	return handle, nil
}

func (r *Registry) load(path string) (Handle, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if loader, ok := r.loaders[ext]; ok {
		return loader.Load(path)
	}

	// Unknown extension: try each loader until one accepts the file.
	for _, loader := range r.loaders {
		if h, err := loader.Load(path); err == nil {
			return h, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// Invalidate drops a cached handle so the next Load re-reads the file.
func (r *Registry) Invalidate(path string) {
	r.cache.invalidate(path)
}

// cache is a small LRU keyed by model path.
type cache struct {
	mu      sync.Mutex
	maxSize int
	entries map[string]Handle
	access  map[string]time.Time
}

func newCache(maxSize int) *cache {
	return &cache{
		maxSize: maxSize,
		entries: make(map[string]Handle),
		access:  make(map[string]time.Time),
	}
}

func (c *cache) get(path string) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.entries[path]; ok {
		c.access[path] = time.Now()
		return h
	}
	return nil
}

func (c *cache) put(path string, h Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		var lru string
		var oldest time.Time
		for p, t := range c.access {
			if lru == "" || t.Before(oldest) {
				lru, oldest = p, t
			}
		}
		delete(c.entries, lru)
		delete(c.access, lru)
	}

	c.entries[path] = h
	c.access[path] = time.Now()
}

func (c *cache) invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, path)
	delete(c.access, path)
}
