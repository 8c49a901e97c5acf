package resolver

import (
	"fmt"
	"sync"

	"chrreload/coloransi"
	"chrreload/process"
	"chrreload/search"

	"github.com/Moonlight-Companies/gologger/logger"
)

// ResolvedPointer is a cached chain result for the current attachment.
type ResolvedPointer struct {
	Name    string
	Address process.ProcessMemoryAddress
	Valid   bool
}

// Resolver evaluates named chains against one attached process and caches the results.
type Resolver struct {
	mu       sync.Mutex
	module   Module
	chains   map[string]Chain
	cache    map[string]ResolvedPointer
	scanOpts []search.Option
	log      *logger.Logger
}

type Option func(*Resolver)

// WithScanOptions forwards options to every scan step.
func WithScanOptions(opts ...search.Option) Option {
	return func(r *Resolver) {
		r.scanOpts = append(r.scanOpts, opts...)
	}
}

func New(m Module, chains []Chain, options ...Option) (*Resolver, error) {
	r := &Resolver{
		module: m,
		chains: make(map[string]Chain, len(chains)),
		cache:  make(map[string]ResolvedPointer),
		log:    logger.NewLogger(coloransi.Color(coloransi.ColorIndigo, coloransi.ColorOrange, "resolver")),
	}
	for _, c := range chains {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		r.chains[c.Name] = c
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// Resolve returns the cached pointer or evaluates its chain.
func (r *Resolver) Resolve(name string) (ResolvedPointer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveLocked(name)
}

func (r *Resolver) resolveLocked(name string) (ResolvedPointer, error) {
	if p, ok := r.cache[name]; ok && p.Valid {
		return p, nil
	}

	c, ok := r.chains[name]
	if !ok {
		return ResolvedPointer{Name: name}, fmt.Errorf("%s: %w", name, ErrUnknownPointer)
	}

	addr, err := Evaluate(r.module, c, r.scanOpts...)
	if err != nil {
		r.cache[name] = ResolvedPointer{Name: name}
		return ResolvedPointer{Name: name}, err
	}

	p := ResolvedPointer{Name: name, Address: addr, Valid: true}
	r.cache[name] = p
	r.log.Infoln("Resolved", name, "at", addr.ToString())
	return p, nil
}

// Require resolves every name. If any fails, the cache is dropped and the whole
// set is resolved once more before giving up.
func (r *Resolver) Require(names ...string) (map[string]process.ProcessMemoryAddress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out, err := r.requireLocked(names)
	if err == nil {
		return out, nil
	}

	r.log.Warn("Pointer resolution failed, rescanning: ", err)
	r.cache = make(map[string]ResolvedPointer)
	return r.requireLocked(names)
}

func (r *Resolver) requireLocked(names []string) (map[string]process.ProcessMemoryAddress, error) {
	out := make(map[string]process.ProcessMemoryAddress, len(names))
	for _, name := range names {
		p, err := r.resolveLocked(name)
		if err != nil {
			return nil, fmt.Errorf("locate %s: %w", name, err)
		}
		out[name] = p.Address
	}
	return out, nil
}

// Invalidate drops every cached pointer.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]ResolvedPointer)
}
