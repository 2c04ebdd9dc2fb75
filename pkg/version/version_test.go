package version

import (
	"strings"
	"testing"
)

func TestGetVersionInfo(t *testing.T) {
	oldVersion, oldTime := Version, BuildTime
	defer func() { Version, BuildTime = oldVersion, oldTime }()

	Version = "1.2.3"
	BuildTime = "2024-01-01T00:00:00Z"

	info := GetVersionInfo()
	if !strings.HasPrefix(info, "mimisweep v1.2.3 (built: 2024-01-01T00:00:00Z") {
		t.Errorf("GetVersionInfo() = %q", info)
	}
	if GetVersion() != "1.2.3" {
		t.Errorf("GetVersion() = %q", GetVersion())
	}
	if GetBuildTime() != BuildTime {
		t.Errorf("GetBuildTime() = %q", GetBuildTime())
	}
}
