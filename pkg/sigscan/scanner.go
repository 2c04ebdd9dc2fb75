package sigscan

import (
	"log/slog"

	"github.com/willibrandon/mimisweep/pkg/procmem"
)

const (
	// DefaultChunkSize is the largest single read issued while scanning.
	DefaultChunkSize = 4 << 20
	// DefaultMaxRegionSize is the size above which regions are not scanned.
	DefaultMaxRegionSize = 256 << 20
)

// ScannerOptions configures a Scanner
type ScannerOptions struct {
	Logger        *slog.Logger
	ChunkSize     int
	MaxRegionSize uint64
}

// DefaultScannerOptions returns the default scanner options
func DefaultScannerOptions() ScannerOptions {
	return ScannerOptions{
		Logger:        slog.New(slog.DiscardHandler),
		ChunkSize:     DefaultChunkSize,
		MaxRegionSize: DefaultMaxRegionSize,
	}
}

// WithLogger sets the logger used for per-region diagnostics
func WithLogger(l *slog.Logger) func(*ScannerOptions) {
	return func(opts *ScannerOptions) {
		if l != nil {
			opts.Logger = l
		}
	}
}

// WithChunkSize sets the read size for large regions
func WithChunkSize(n int) func(*ScannerOptions) {
	return func(opts *ScannerOptions) {
		if n > 0 {
			opts.ChunkSize = n
		}
	}
}

// WithMaxRegionSize skips regions larger than n bytes. Zero disables the limit.
func WithMaxRegionSize(n uint64) func(*ScannerOptions) {
	return func(opts *ScannerOptions) {
		opts.MaxRegionSize = n
	}
}

// SkippedRegion is a region the scanner could not read.
type SkippedRegion struct {
	Region procmem.Region
	Err    error
}

// Stats summarizes one scan.
type Stats struct {
	Regions int
	Bytes   uint64
	Matches int
	Skipped []SkippedRegion
	// Stopped is set when the visitor ended the scan early.
	Stopped bool
}

// Scanner searches the readable regions of a Memory.
type Scanner struct {
	mem  procmem.Memory
	opts ScannerOptions
}

// NewScanner creates a scanner over mem
func NewScanner(mem procmem.Memory, opts ...func(*ScannerOptions)) *Scanner {
	o := DefaultScannerOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Scanner{mem: mem, opts: o}
}

// Scan lists the regions of the memory and scans them. See ScanRegions.
func (s *Scanner) Scan(p Pattern, visit func(addr uint64) bool) (Stats, error) {
	regions, err := s.mem.Regions()
	if err != nil {
		return Stats{}, err
	}
	return s.ScanRegions(regions, p, visit), nil
}

// ScanRegions calls visit with the absolute address of every match, region
// by region in the given order and ascending within a region. A region that
// cannot be read is recorded in Stats.Skipped and the scan continues.
// Returning false from visit stops the scan.
func (s *Scanner) ScanRegions(regions []procmem.Region, p Pattern, visit func(addr uint64) bool) Stats {
	var stats Stats
	if p.Len() == 0 {
		return stats
	}
	log := s.opts.Logger

	for _, r := range regions {
		if s.opts.MaxRegionSize > 0 && r.Size > s.opts.MaxRegionSize {
			log.Debug("skipping oversized region", "region", r.String(), "size", r.Size)
			continue
		}
		if r.Size < uint64(p.Len()) {
			continue
		}
		stats.Regions++
		if !s.scanRegion(r, p, visit, &stats) {
			stats.Stopped = true
			break
		}
	}
	return stats
}

// scanRegion reads r in chunks that overlap by len(p)-1 bytes so a match
// across a chunk boundary is seen exactly once. It returns false if the
// visitor asked to stop.
func (s *Scanner) scanRegion(r procmem.Region, p Pattern, visit func(addr uint64) bool, stats *Stats) bool {
	chunk := uint64(s.opts.ChunkSize)
	overlap := uint64(p.Len() - 1)

	for off := uint64(0); off < r.Size; off += chunk {
		n := chunk + overlap
		if off+n > r.Size {
			n = r.Size - off
		}
		if n < uint64(p.Len()) {
			break
		}
		buf, err := s.mem.ReadBytes(r.Base+off, int(n))
		if err != nil {
			s.opts.Logger.Debug("skipping unreadable region", "region", r.String(), "offset", off, "error", err)
			stats.Skipped = append(stats.Skipped, SkippedRegion{Region: r, Err: err})
			return true
		}
		stats.Bytes += n
		for _, m := range FindMatches(buf, p) {
			// Matches in the overlap belong to the next chunk.
			if uint64(m) >= chunk {
				break
			}
			stats.Matches++
			if !visit(r.Base + off + uint64(m)) {
				return false
			}
		}
	}
	return true
}

// Candidates returns the addresses of every match in mem.
func (s *Scanner) Candidates(p Pattern) ([]uint64, Stats, error) {
	var out []uint64
	stats, err := s.Scan(p, func(addr uint64) bool {
		out = append(out, addr)
		return true
	})
	return out, stats, err
}
