package reload

import (
	"chrreload/process"

	"github.com/Moonlight-Companies/gologger/logger"
)

// session tracks what one reload changed in the target so cleanup can undo it.
type session struct {
	link    process.Process
	allocs  []process.Allocation
	reverts []func() error
	log     *logger.Logger
}

func (s *session) allocate(size int) (process.Allocation, error) {
	a, err := s.link.Allocate(process.ProcessMemorySize(size))
	if err != nil {
		return process.Allocation{}, err
	}
	s.allocs = append(s.allocs, a)
	s.log.Debugln("Allocated", a.ToString())
	return a, nil
}

func (s *session) onCleanup(fn func() error) {
	s.reverts = append(s.reverts, fn)
}

// cleanup reverts patches in reverse order, then frees every allocation.
// Failures are logged; there is nothing left to hand them to.
func (s *session) cleanup() {
	for i := len(s.reverts) - 1; i >= 0; i-- {
		if err := s.reverts[i](); err != nil {
			s.log.Warn("Revert failed: ", err)
		}
	}
	s.reverts = nil

	for _, a := range s.allocs {
		if err := s.link.Free(a.Address); err != nil {
			s.log.Warn("Free failed for ", a.ToString(), ": ", err)
			continue
		}
		s.log.Debugln("Freed", a.Address.ToString())
	}
	s.allocs = nil
}
