// Package procfind locates running Minesweeper processes.
package procfind

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/willibrandon/mimisweep/pkg/layout"
)

// executables maps lower-cased executable names to their layout.
var executables = map[string]layout.Variant{
	"winmine.exe":     layout.Legacy,
	"minesweeper.exe": layout.Modern,
}

// Target is a running game process.
type Target struct {
	PID     int
	Name    string
	Variant layout.Variant
	// CreateTime is the process start time in milliseconds since the epoch.
	CreateTime int64
}

// Key returns the instance key of the target.
func (t Target) Key() string {
	return instanceKey(t.PID, t.CreateTime)
}

// VariantForName returns the layout used by the executable name, which may
// be a full path. Matching ignores case.
func VariantForName(name string) (layout.Variant, bool) {
	base := strings.ToLower(filepath.Base(strings.ReplaceAll(name, `\`, "/")))
	v, ok := executables[base]
	return v, ok
}

type procInfo struct {
	pid     int32
	name    string
	created int64
}

func matchTargets(infos []procInfo, want func(name string) bool) []Target {
	targets := lo.FilterMap(infos, func(p procInfo, _ int) (Target, bool) {
		v, ok := VariantForName(p.name)
		if !ok || !want(p.name) {
			return Target{}, false
		}
		return Target{PID: int(p.pid), Name: p.name, Variant: v, CreateTime: p.created}, true
	})
	sort.Slice(targets, func(i, j int) bool {
		return targets[i].PID < targets[j].PID
	})
	return targets
}

func snapshot() ([]procInfo, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	return lo.FilterMap(procs, func(p *process.Process, _ int) (procInfo, bool) {
		name, err := p.Name()
		if err != nil {
			return procInfo{}, false
		}
		// A process that exits between listing and querying is left out.
		created, err := p.CreateTime()
		if err != nil {
			return procInfo{}, false
		}
		return procInfo{pid: p.Pid, name: name, created: created}, true
	}), nil
}

// Find returns every running process with a known game executable name,
// ordered by pid.
func Find() ([]Target, error) {
	infos, err := snapshot()
	if err != nil {
		return nil, err
	}
	return matchTargets(infos, func(string) bool { return true }), nil
}

// FindByName returns the running game processes named name, ignoring case.
func FindByName(name string) ([]Target, error) {
	infos, err := snapshot()
	if err != nil {
		return nil, err
	}
	return matchTargets(infos, func(n string) bool {
		return strings.EqualFold(filepath.Base(n), name)
	}), nil
}

// InstanceKey identifies one run of a process. A pid reused by a new
// process yields a different key.
func InstanceKey(pid int) (string, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", fmt.Errorf("process %d: %w", pid, err)
	}
	created, err := p.CreateTime()
	if err != nil {
		return "", fmt.Errorf("process %d start time: %w", pid, err)
	}
	return instanceKey(pid, created), nil
}

// Identify returns the executable name of pid.
func Identify(pid int) (string, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", fmt.Errorf("process %d: %w", pid, err)
	}
	return p.Name()
}

func instanceKey(pid int, created int64) string {
	return fmt.Sprintf("%d@%d", pid, created)
}
