//go:build windows

package process_windows

import (
	"fmt"

	"chrreload/process"

	gops "github.com/shirou/gopsutil/v3/process"
)

// FindProcessByName returns the first running process whose image name matches name.
func FindProcessByName(name string) (process.ProcessInfo, error) {
	procs, err := gops.Processes()
	if err != nil {
		return process.ProcessInfo{}, fmt.Errorf("list processes: %w", err)
	}
	for _, p := range procs {
		procName, err := p.Name()
		if err != nil || !process.ImageNameMatches(procName, name) {
			continue
		}
		exe, _ := p.Exe()
		return process.ProcessInfo{PID: process.ProcessID(p.Pid), Name: procName, Exe: exe}, nil
	}
	return process.ProcessInfo{}, fmt.Errorf("%s: %w", name, process.ErrProcessNotFound)
}

func pidExists(pid process.ProcessID) bool {
	ok, err := gops.PidExists(int32(pid))
	return err == nil && ok
}
