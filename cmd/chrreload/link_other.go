//go:build !windows

package main

import (
	"errors"

	"chrreload/process"
)

func newLink() (process.Target, error) {
	return nil, errors.New("reloading needs a running Windows game; use aobscan -image to test signatures offline")
}
