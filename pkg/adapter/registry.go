package adapter

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
)

// Config describes one configured source.
type Config struct {
	Name       string
	Type       string
	URL        string
	Calendar   string
	Username   string
	Credential string
	Kinds      []string
}

// Secrets looks up credentials by service name.
type Secrets interface {
	Get(service string) (string, error)
	Put(service, secret string) error
}

// Env carries what factories may need besides the source config.
type Env struct {
	Secrets  Secrets
	StateDir string
	Logger   *log.Logger
}

// Factory builds an adapter of one type.
type Factory func(ctx context.Context, cfg Config, env Env) (Adapter, error)

var factories = struct {
	mu sync.RWMutex
	m  map[string]Factory
}{m: map[string]Factory{}}

// Register makes a factory available under typ. Adapter packages call it
// from init.
func Register(typ string, f Factory) {
	typ = normalizeType(typ)
	if typ == "" || f == nil {
		return
	}
	factories.mu.Lock()
	defer factories.mu.Unlock()
	factories.m[typ] = f
}

// Types lists the registered adapter types.
func Types() []string {
	factories.mu.RLock()
	defer factories.mu.RUnlock()
	out := make([]string, 0, len(factories.m))
	for typ := range factories.m {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

// New builds the adapter for cfg.
func New(ctx context.Context, cfg Config, env Env) (Adapter, error) {
	factories.mu.RLock()
	f, ok := factories.m[normalizeType(cfg.Type)]
	factories.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("source %s: unknown adapter type %q", cfg.Name, cfg.Type)
	}
	return f(ctx, cfg, env)
}

func normalizeType(typ string) string {
	return strings.ToLower(strings.TrimSpace(typ))
}

// Set maps source names to adapters.
type Set struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewSet(adapters ...Adapter) *Set {
	s := &Set{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		s.Add(a)
	}
	return s
}

func (s *Set) Add(a Adapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adapters[a.Source()] = a
}

func (s *Set) Get(source string) (Adapter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.adapters[source]
	return a, ok
}

// Names returns the source names in sorted order.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.adapters))
	for name := range s.adapters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
