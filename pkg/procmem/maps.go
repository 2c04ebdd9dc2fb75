package procmem

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// ParseMaps parses the /proc/<pid>/maps format and returns the readable
// private mappings in file order. Shared mappings and kernel pseudo regions
// such as [vvar] are left out.
func ParseMaps(r io.Reader) ([]Region, error) {
	var regions []Region
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 5 {
			continue
		}

		start, end, ok := strings.Cut(fields[0], "-")
		if !ok {
			continue
		}
		lo, err := strconv.ParseUint(start, 16, 64)
		if err != nil {
			continue
		}
		hi, err := strconv.ParseUint(end, 16, 64)
		if err != nil || hi <= lo {
			continue
		}

		perms := fields[1]
		if len(perms) < 4 || perms[0] != 'r' || perms[3] != 'p' {
			continue
		}
		var name string
		if len(fields) >= 6 {
			name = strings.Join(fields[5:], " ")
		}
		if name == "[vvar]" || name == "[vsyscall]" {
			continue
		}

		perm := PermRead
		if perms[1] == 'w' {
			perm |= PermWrite
		}
		if perms[2] == 'x' {
			perm |= PermExec
		}
		regions = append(regions, Region{Base: lo, Size: hi - lo, Perm: perm, Name: name})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return regions, nil
}
