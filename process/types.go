package process

import (
	"path/filepath"
	"strings"
)

// ProcessID represents a unique identifier for a process
type ProcessID int

// ProcessInfo contains basic information about a process
type ProcessInfo struct {
	PID  ProcessID // Process ID
	Name string    // Image name, e.g. "eldenring.exe"
	Exe  string    // Path to the executable, may be empty
}

// ImageNameMatches compares a running image name against a configured one.
// The comparison ignores case, directories and a trailing ".exe".
func ImageNameMatches(image, want string) bool {
	return strings.EqualFold(trimImage(image), trimImage(want))
}

func trimImage(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if len(name) > 4 && strings.EqualFold(name[len(name)-4:], ".exe") {
		name = name[:len(name)-4]
	}
	return name
}
