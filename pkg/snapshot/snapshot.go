// Package snapshot saves the readable memory of a process to a directory
// and loads it back as an address space that can be resolved and decoded
// offline.
//
// A snapshot directory holds manifest.yaml, describing every captured
// region, and regions.bin.zst, the zstd-compressed concatenation of the
// region contents in manifest order.
package snapshot

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/willibrandon/mimisweep/pkg/procmem"
	"github.com/willibrandon/mimisweep/pkg/sigscan"
)

const (
	// FormatVersion is written to every manifest.
	FormatVersion = 1

	ManifestFile = "manifest.yaml"
	DataFile     = "regions.bin.zst"

	readChunk = 4 << 20

	// MaxRegionSize is the largest region Capture writes and Load accepts.
	MaxRegionSize = sigscan.DefaultMaxRegionSize
)

var (
	// ErrChecksum is returned when region data does not match its manifest entry.
	ErrChecksum = errors.New("snapshot checksum mismatch")
	// ErrRegionTooLarge is returned by Load for a manifest entry above MaxRegionSize.
	ErrRegionTooLarge = errors.New("snapshot region too large")
)

// RegionEntry describes one captured region.
type RegionEntry struct {
	Base   uint64 `yaml:"base"`
	Size   uint64 `yaml:"size"`
	Perm   string `yaml:"perm"`
	Name   string `yaml:"name,omitempty"`
	Offset uint64 `yaml:"offset"`
	SHA256 string `yaml:"sha256"`
}

// SkippedEntry describes a region that could not be read.
type SkippedEntry struct {
	Base   uint64 `yaml:"base"`
	Size   uint64 `yaml:"size"`
	Reason string `yaml:"reason"`
}

// Manifest describes a snapshot.
type Manifest struct {
	Version    int            `yaml:"version"`
	PID        int            `yaml:"pid,omitempty"`
	Process    string         `yaml:"process,omitempty"`
	Variant    string         `yaml:"variant,omitempty"`
	CapturedAt time.Time      `yaml:"captured_at"`
	TotalBytes uint64         `yaml:"total_bytes"`
	Regions    []RegionEntry  `yaml:"regions"`
	Skipped    []SkippedEntry `yaml:"skipped,omitempty"`
}

// Options configures Capture
type Options struct {
	PID     int
	Process string
	Variant string
	// MaxRegionSize skips larger regions. Zero or anything above the
	// package MaxRegionSize means MaxRegionSize.
	MaxRegionSize uint64
	// Filter selects the regions to capture. Nil captures all.
	Filter func(procmem.Region) bool
	Logger *slog.Logger
}

// DefaultOptions returns the default capture options
func DefaultOptions() Options {
	return Options{
		MaxRegionSize: sigscan.DefaultMaxRegionSize,
		Logger:        slog.New(slog.DiscardHandler),
	}
}

// Capture writes the readable regions of mem to dir, creating it if needed.
// Regions that fail to read are listed as skipped.
func Capture(mem procmem.Memory, dir string, opts Options) (*Manifest, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	regions, err := mem.Regions()
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	f, err := os.Create(filepath.Join(dir, DataFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	bw := bufio.NewWriter(f)
	zw, err := zstd.NewWriter(bw)
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		Version:    FormatVersion,
		PID:        opts.PID,
		Process:    opts.Process,
		Variant:    opts.Variant,
		CapturedAt: time.Now().UTC(),
	}
	limit := opts.MaxRegionSize
	if limit == 0 || limit > MaxRegionSize {
		limit = MaxRegionSize
	}
	var offset uint64
	for _, r := range regions {
		if opts.Filter != nil && !opts.Filter(r) {
			continue
		}
		if r.Size > limit {
			m.Skipped = append(m.Skipped, SkippedEntry{Base: r.Base, Size: r.Size, Reason: "region too large"})
			continue
		}
		data, err := readRegion(mem, r)
		if err != nil {
			opts.Logger.Debug("skipping unreadable region", "region", r.String(), "error", err)
			m.Skipped = append(m.Skipped, SkippedEntry{Base: r.Base, Size: r.Size, Reason: err.Error()})
			continue
		}
		if _, err := zw.Write(data); err != nil {
			zw.Close()
			return nil, err
		}
		sum := sha256.Sum256(data)
		m.Regions = append(m.Regions, RegionEntry{
			Base:   r.Base,
			Size:   r.Size,
			Perm:   r.Perm.String(),
			Name:   r.Name,
			Offset: offset,
			SHA256: hex.EncodeToString(sum[:]),
		})
		offset += r.Size
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	if err := bw.Flush(); err != nil {
		return nil, err
	}
	m.TotalBytes = lo.SumBy(m.Regions, func(e RegionEntry) uint64 { return e.Size })

	out, err := yaml.Marshal(m)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), out, 0644); err != nil {
		return nil, err
	}
	opts.Logger.Info("snapshot captured", "dir", dir, "regions", len(m.Regions), "skipped", len(m.Skipped), "bytes", m.TotalBytes)
	return m, nil
}

func readRegion(mem procmem.Memory, r procmem.Region) ([]byte, error) {
	data := make([]byte, 0, r.Size)
	for off := uint64(0); off < r.Size; off += readChunk {
		n := uint64(readChunk)
		if off+n > r.Size {
			n = r.Size - off
		}
		chunk, err := mem.ReadBytes(r.Base+off, int(n))
		if err != nil {
			return nil, err
		}
		data = append(data, chunk...)
	}
	return data, nil
}

// ReadManifest reads the manifest of the snapshot in dir.
func ReadManifest(dir string) (*Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", m.Version)
	}
	return &m, nil
}

// Load reads the snapshot in dir, verifies every region against its
// checksum and maps the regions at their original addresses.
func Load(dir string) (*procmem.BufferMemory, *Manifest, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(filepath.Join(dir, DataFile))
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	zr, err := zstd.NewReader(bufio.NewReader(f))
	if err != nil {
		return nil, nil, err
	}
	defer zr.Close()

	mem := procmem.NewBufferMemory()
	var offset uint64
	for _, e := range m.Regions {
		if e.Offset != offset {
			return nil, nil, fmt.Errorf("region %#x: offset %d, expected %d", e.Base, e.Offset, offset)
		}
		if e.Size > MaxRegionSize {
			return nil, nil, fmt.Errorf("region %#x: %d bytes: %w", e.Base, e.Size, ErrRegionTooLarge)
		}
		data := make([]byte, e.Size)
		if _, err := io.ReadFull(zr, data); err != nil {
			return nil, nil, fmt.Errorf("region %#x: %w", e.Base, err)
		}
		offset += e.Size
		sum := sha256.Sum256(data)
		if hex.EncodeToString(sum[:]) != e.SHA256 {
			return nil, nil, fmt.Errorf("region %#x: %w", e.Base, ErrChecksum)
		}
		perm, err := procmem.ParsePerm(e.Perm)
		if err != nil {
			return nil, nil, fmt.Errorf("region %#x: %w", e.Base, err)
		}
		if err := mem.MapNamed(e.Base, data, perm, e.Name); err != nil {
			return nil, nil, fmt.Errorf("region %#x: %w", e.Base, err)
		}
	}
	return mem, m, nil
}
