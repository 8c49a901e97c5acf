//go:build !windows

package main

import (
	"errors"

	"chrreload/process"
)

func newLink() (process.Target, error) {
	return nil, errors.New("live scanning is only supported on Windows; use -image")
}
