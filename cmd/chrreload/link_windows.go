//go:build windows

package main

import (
	"chrreload/process"
	"chrreload/process_windows"
)

func newLink() (process.Target, error) {
	return process_windows.New(), nil
}
