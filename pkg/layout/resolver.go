package layout

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/samber/lo"

	"github.com/willibrandon/mimisweep/pkg/procmem"
	"github.com/willibrandon/mimisweep/pkg/sigscan"
)

// ErrNoStructureFound is returned when no candidate validates.
var ErrNoStructureFound = errors.New("no board structure found")

// maxRejections bounds the rejection reasons kept in a ResolutionError.
const maxRejections = 32

// Rejection records why one candidate was discarded.
type Rejection struct {
	Variant   Variant
	Candidate uint64
	Err       error
}

func (r Rejection) Error() string {
	return fmt.Sprintf("%s candidate %#x: %v", r.Variant, r.Candidate, r.Err)
}

// ResolutionError reports that no candidate of any tried variant validated.
type ResolutionError struct {
	Variants   []Variant
	Candidates int
	Rejected   []Rejection
	// Err is the underlying failure, ErrNoStructureFound unless listing
	// regions failed.
	Err error
}

func (e *ResolutionError) Error() string {
	names := make([]string, len(e.Variants))
	for i, v := range e.Variants {
		names[i] = v.String()
	}
	msg := fmt.Sprintf("resolve layout (%s): %v after %d candidates", strings.Join(names, ", "), e.Err, e.Candidates)
	if len(e.Rejected) > 0 {
		msg += "; first rejection: " + e.Rejected[0].Error()
	}
	return msg
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func (e *ResolutionError) reject(v Variant, addr uint64, err error) {
	e.Candidates++
	if len(e.Rejected) < maxRejections {
		e.Rejected = append(e.Rejected, Rejection{Variant: v, Candidate: addr, Err: err})
	}
}

// ResolverOptions configures a Resolver
type ResolverOptions struct {
	Logger        *slog.Logger
	MaxRegionSize uint64
	// Module names the game executable. When regions carry names, only
	// executable regions of that module are scanned.
	Module string
}

// DefaultResolverOptions returns the default resolver options
func DefaultResolverOptions() ResolverOptions {
	return ResolverOptions{
		Logger:        slog.New(slog.DiscardHandler),
		MaxRegionSize: sigscan.DefaultMaxRegionSize,
	}
}

// WithLogger sets the resolver logger
func WithLogger(l *slog.Logger) func(*ResolverOptions) {
	return func(opts *ResolverOptions) {
		if l != nil {
			opts.Logger = l
		}
	}
}

// WithMaxRegionSize bounds the regions scanned for signatures
func WithMaxRegionSize(n uint64) func(*ResolverOptions) {
	return func(opts *ResolverOptions) {
		opts.MaxRegionSize = n
	}
}

// WithModule limits the signature scan to the regions of the named module
func WithModule(name string) func(*ResolverOptions) {
	return func(opts *ResolverOptions) {
		opts.Module = name
	}
}

// Resolver finds and validates board structures in one address space.
type Resolver struct {
	mem     procmem.Memory
	opts    ResolverOptions
	regions []procmem.Region
	code    []procmem.Region
}

// NewResolver creates a resolver over mem
func NewResolver(mem procmem.Memory, opts ...func(*ResolverOptions)) *Resolver {
	o := DefaultResolverOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Resolver{mem: mem, opts: o}
}

func (r *Resolver) loadRegions() ([]procmem.Region, error) {
	if r.regions != nil {
		return r.regions, nil
	}
	regions, err := r.mem.Regions()
	if err != nil {
		return nil, err
	}
	r.regions = regions
	return regions, nil
}

// codeRegions returns the regions searched for signatures: executable
// regions, narrowed to the game module when any region is named after it.
// Validation still uses every readable region.
func (r *Resolver) codeRegions() ([]procmem.Region, error) {
	if r.code != nil {
		return r.code, nil
	}
	regions, err := r.loadRegions()
	if err != nil {
		return nil, err
	}
	code := lo.Filter(regions, func(reg procmem.Region, _ int) bool {
		return reg.Perm&procmem.PermExec != 0
	})
	if r.opts.Module != "" {
		named := lo.Filter(code, func(reg procmem.Region, _ int) bool {
			return sameModule(reg.Name, r.opts.Module)
		})
		if len(named) > 0 {
			code = named
		}
	}
	r.opts.Logger.Debug("code regions", "regions", len(regions), "code", len(code), "module", r.opts.Module)
	r.code = code
	return code, nil
}

// sameModule compares a region name, possibly a full path, with a module
// file name, ignoring case.
func sameModule(regionName, module string) bool {
	if regionName == "" {
		return false
	}
	base := filepath.Base(strings.ReplaceAll(regionName, `\`, "/"))
	return strings.EqualFold(base, filepath.Base(strings.ReplaceAll(module, `\`, "/")))
}

// Candidates returns every signature hit of v in scan order.
func (r *Resolver) Candidates(v Variant) ([]uint64, error) {
	sig, ok := SignatureFor(v)
	if !ok {
		return nil, fmt.Errorf("no signature for %s", v)
	}
	code, err := r.codeRegions()
	if err != nil {
		return nil, err
	}
	var hits []uint64
	r.scanner().ScanRegions(code, sig.Pattern, func(addr uint64) bool {
		hits = append(hits, addr)
		return true
	})
	return hits, nil
}

func (r *Resolver) scanner() *sigscan.Scanner {
	return sigscan.NewScanner(r.mem,
		sigscan.WithLogger(r.opts.Logger),
		sigscan.WithMaxRegionSize(r.opts.MaxRegionSize))
}

// Resolve tries candidates of variant v in order and returns the first that
// leads to a valid structure.
func (r *Resolver) Resolve(candidates []uint64, v Variant) (ResolvedLayout, error) {
	rerr := &ResolutionError{Variants: []Variant{v}, Err: ErrNoStructureFound}
	regions, err := r.loadRegions()
	if err != nil {
		rerr.Err = err
		return nil, rerr
	}
	for _, c := range candidates {
		l, err := r.Confirm(regions, c, v)
		if err == nil {
			return l, nil
		}
		rerr.reject(v, c, err)
	}
	return nil, rerr
}

// Find scans for the signatures of each variant in order, legacy first when
// none are given, and stops at the first candidate that validates.
func (r *Resolver) Find(variants ...Variant) (ResolvedLayout, error) {
	if len(variants) == 0 {
		variants = AllVariants
	}
	rerr := &ResolutionError{Variants: variants, Err: ErrNoStructureFound}
	regions, err := r.loadRegions()
	if err != nil {
		rerr.Err = err
		return nil, rerr
	}
	code, err := r.codeRegions()
	if err != nil {
		rerr.Err = err
		return nil, rerr
	}
	log := r.opts.Logger
	s := r.scanner()

	for _, v := range variants {
		sig, ok := SignatureFor(v)
		if !ok {
			return nil, fmt.Errorf("no signature for %s", v)
		}
		var found ResolvedLayout
		stats := s.ScanRegions(code, sig.Pattern, func(addr uint64) bool {
			l, err := r.Confirm(regions, addr, v)
			if err != nil {
				log.Debug("rejected candidate", "variant", v, "addr", fmt.Sprintf("%#x", addr), "error", err)
				rerr.reject(v, addr, err)
				return true
			}
			found = l
			return false
		})
		log.Debug("signature scan complete",
			"variant", v,
			"regions", stats.Regions,
			"skipped", len(stats.Skipped),
			"matches", stats.Matches)
		if found != nil {
			log.Info("resolved board structure", "variant", v, "addr", fmt.Sprintf("%#x", found.Addr()))
			return found, nil
		}
	}
	return nil, rerr
}

// Confirm derives the structure address from one signature hit and
// validates it.
func (r *Resolver) Confirm(regions []procmem.Region, hit uint64, v Variant) (ResolvedLayout, error) {
	sig, ok := SignatureFor(v)
	if !ok {
		return nil, fmt.Errorf("no signature for %s", v)
	}
	instr := uint64(int64(hit) + sig.InstrOffset)
	root, err := operandTarget(r.mem, regions, instr, sig.Mode)
	if err != nil {
		return nil, err
	}
	addr, err := followChain(r.mem, root, sig.Chain, pointerSize(v))
	if err != nil {
		return nil, fmt.Errorf("follow pointers from %#x: %w", root, err)
	}
	l, _ := New(v, addr)
	if err := Validate(r.mem, regions, l); err != nil {
		return nil, err
	}
	r.opts.Logger.Debug("confirmed candidate",
		"variant", v,
		"hit", fmt.Sprintf("%#x", hit),
		"root", fmt.Sprintf("%#x", root),
		"struct", fmt.Sprintf("%#x", addr))
	return l, nil
}

func pointerSize(v Variant) int {
	if v == Legacy {
		return legacyOffsets.PointerSize
	}
	return modernOffsets.PointerSize
}

// Validate checks that the structure at l is a plausible board: the header
// is readable and in bounds and the whole cell array lies in one readable
// region. For the modern layout that region must be the structure's own.
func Validate(mem procmem.Memory, regions []procmem.Region, l ResolvedLayout) error {
	hsize := uint64(l.HeaderSize())
	hregion, ok := procmem.FindRegion(regions, l.Addr(), hsize)
	if !ok {
		return fmt.Errorf("header at %#x is outside readable memory", l.Addr())
	}
	raw, err := mem.ReadBytes(l.Addr(), int(hsize))
	if err != nil {
		return err
	}
	h, err := l.ParseHeader(raw)
	if err != nil {
		return err
	}
	if err := h.Validate(); err != nil {
		return err
	}

	size := uint64(h.CellCount() * l.CellStride())
	switch l.(type) {
	case LegacyLayout:
		if h.Cells == 0 {
			return fmt.Errorf("%w: null cell array pointer", ErrInvalidHeader)
		}
		if _, ok := procmem.FindRegion(regions, h.Cells, size); !ok {
			return fmt.Errorf("%w: cell array %#x+%#x is outside readable memory", ErrInvalidHeader, h.Cells, size)
		}
	case ModernLayout:
		if !hregion.Contains(h.Cells, size) {
			return fmt.Errorf("%w: inline cells %#x+%#x run past region end %#x", ErrInvalidHeader, h.Cells, size, hregion.End())
		}
	}
	return nil
}

// Resolve validates candidates of variant v against mem. See Resolver.Resolve.
func Resolve(mem procmem.Memory, candidates []uint64, v Variant) (ResolvedLayout, error) {
	return NewResolver(mem).Resolve(candidates, v)
}

// Find resolves the board structure in mem. See Resolver.Find.
func Find(mem procmem.Memory, variants ...Variant) (ResolvedLayout, error) {
	return NewResolver(mem).Find(variants...)
}
