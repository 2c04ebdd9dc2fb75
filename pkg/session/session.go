// Package session ties attaching, layout resolution and decoding together.
//
// An Engine remembers the layout it resolved for each process instance, so
// reopening the same game skips the signature scan. A cached layout is
// dropped only when attaching to that process fails or on Forget.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/willibrandon/mimisweep/pkg/board"
	"github.com/willibrandon/mimisweep/pkg/layout"
	"github.com/willibrandon/mimisweep/pkg/procfind"
	"github.com/willibrandon/mimisweep/pkg/procmem"
	"github.com/willibrandon/mimisweep/pkg/sigscan"
)

// Options configures an Engine
type Options struct {
	// Variants are tried in order. Empty means layout.AllVariants.
	Variants []layout.Variant
	// CacheSize is the number of process instances whose layout is kept.
	CacheSize int
	Logger    *slog.Logger
	// Attach opens a process. Defaults to procmem.Attach.
	Attach func(pid int) (procmem.Target, error)
	// InstanceKey identifies one run of a process. Defaults to
	// procfind.InstanceKey.
	InstanceKey   func(pid int) (string, error)
	MaxRegionSize uint64
	// Module is the game executable name. It narrows the signature scan to
	// that module's code when regions carry names.
	Module string
}

// DefaultOptions returns the default engine options
func DefaultOptions() Options {
	return Options{
		Variants:      layout.AllVariants,
		CacheSize:     16,
		Logger:        slog.New(slog.DiscardHandler),
		Attach:        attachProcess,
		InstanceKey:   procfind.InstanceKey,
		MaxRegionSize: sigscan.DefaultMaxRegionSize,
	}
}

func attachProcess(pid int) (procmem.Target, error) {
	p, err := procmem.Attach(pid)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Engine opens sessions and caches resolved layouts per process instance.
type Engine struct {
	opts  Options
	cache *lru.Cache
}

// NewEngine creates an engine. Zero fields of opts take their defaults.
func NewEngine(opts Options) (*Engine, error) {
	def := DefaultOptions()
	if len(opts.Variants) == 0 {
		opts.Variants = def.Variants
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = def.CacheSize
	}
	if opts.Logger == nil {
		opts.Logger = def.Logger
	}
	if opts.Attach == nil {
		opts.Attach = def.Attach
	}
	if opts.InstanceKey == nil {
		opts.InstanceKey = def.InstanceKey
	}
	if opts.MaxRegionSize == 0 {
		opts.MaxRegionSize = def.MaxRegionSize
	}
	cache, err := lru.New(opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create layout cache: %w", err)
	}
	return &Engine{opts: opts, cache: cache}, nil
}

// Open attaches to pid and returns a session with a resolved layout.
func (e *Engine) Open(pid int) (*Session, error) {
	log := e.opts.Logger.With("pid", pid)

	key, keyErr := e.opts.InstanceKey(pid)
	target, err := e.opts.Attach(pid)
	if err != nil {
		e.forgetPID(pid)
		var ae *procmem.AttachError
		if !errors.As(err, &ae) {
			err = &procmem.AttachError{PID: pid, Err: err}
		}
		log.Debug("attach failed", "error", err)
		return nil, err
	}
	if keyErr != nil {
		target.Close()
		e.forgetPID(pid)
		return nil, &procmem.AttachError{PID: pid, Err: keyErr}
	}
	return e.open(key, target, log)
}

// OpenTarget returns a session over an already opened target, such as a
// loaded snapshot. key identifies the target in the layout cache.
func (e *Engine) OpenTarget(key string, target procmem.Target) (*Session, error) {
	return e.open(key, target, e.opts.Logger.With("target", key))
}

func (e *Engine) open(key string, target procmem.Target, log *slog.Logger) (*Session, error) {
	if v, ok := e.cache.Get(key); ok {
		l := v.(layout.ResolvedLayout)
		log.Debug("using cached layout", "variant", l.Variant(), "addr", fmt.Sprintf("%#x", l.Addr()))
		return &Session{key: key, target: target, layout: l, log: log}, nil
	}

	r := layout.NewResolver(target,
		layout.WithLogger(log),
		layout.WithMaxRegionSize(e.opts.MaxRegionSize),
		layout.WithModule(e.opts.Module))
	l, err := r.Find(e.opts.Variants...)
	if err != nil {
		target.Close()
		return nil, err
	}
	e.cache.Add(key, l)
	return &Session{key: key, target: target, layout: l, log: log}, nil
}

// Cached returns the layout cached for key.
func (e *Engine) Cached(key string) (layout.ResolvedLayout, bool) {
	v, ok := e.cache.Peek(key)
	if !ok {
		return nil, false
	}
	return v.(layout.ResolvedLayout), true
}

// Forget drops the cached layout for key.
func (e *Engine) Forget(key string) {
	e.cache.Remove(key)
}

// forgetPID drops every cached instance of pid.
func (e *Engine) forgetPID(pid int) {
	prefix := fmt.Sprintf("%d@", pid)
	for _, k := range e.cache.Keys() {
		if s, ok := k.(string); ok && strings.HasPrefix(s, prefix) {
			e.cache.Remove(k)
		}
	}
}

// Session is an attached process with a confirmed layout.
type Session struct {
	key    string
	target procmem.Target
	layout layout.ResolvedLayout
	log    *slog.Logger
}

// Key returns the process instance key.
func (s *Session) Key() string {
	return s.key
}

// Layout returns the resolved layout.
func (s *Session) Layout() layout.ResolvedLayout {
	return s.layout
}

// Memory returns the attached memory.
func (s *Session) Memory() procmem.Memory {
	return s.target
}

// Decode reads the current board.
func (s *Session) Decode() (*board.Board, error) {
	return board.Decode(s.target, s.layout)
}

// Watch decodes the board now and then every interval, passing each board
// to fn. It returns when ctx is done, when a decode fails or when fn
// returns an error. Failures are not retried.
func (s *Session) Watch(ctx context.Context, interval time.Duration, fn func(*board.Board) error) error {
	if interval <= 0 {
		return fmt.Errorf("watch: interval must be positive, got %v", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, err := s.Decode()
		if err != nil {
			return err
		}
		if err := fn(b); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close detaches from the process.
func (s *Session) Close() error {
	return s.target.Close()
}
