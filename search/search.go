package search

import (
	"errors"
	"fmt"

	"chrreload/coloransi"
	"chrreload/process"

	"github.com/Moonlight-Companies/gologger/logger"
)

const (
	// DefaultUpperBound is the top of the 64-bit user address space.
	DefaultUpperBound = process.ProcessMemoryAddress(0x7FFFFFFFFFFF)

	DefaultChunkSize = 64 << 20
)

var (
	ErrPatternNotFound = errors.New("pattern not found")
	ErrInvalidPattern  = errors.New("invalid pattern")
)

var defaultLog = logger.NewLogger(coloransi.Color(coloransi.ColorTeal, coloransi.Black, "scan"))

// Scanner holds configuration for a region walk
type Scanner struct {
	Start      process.ProcessMemoryAddress
	UpperBound process.ProcessMemoryAddress
	ChunkSize  uint64
	log        *logger.Logger
}

// Option is a function that configures a Scanner
type Option func(*Scanner)

// WithStartAddress sets where the walk begins, normally the main module base.
func WithStartAddress(addr process.ProcessMemoryAddress) Option {
	return func(s *Scanner) {
		s.Start = addr
	}
}

// WithUpperBound stops the walk at addr (exclusive).
func WithUpperBound(addr process.ProcessMemoryAddress) Option {
	return func(s *Scanner) {
		s.UpperBound = addr
	}
}

func WithChunkSize(size uint64) Option {
	return func(s *Scanner) {
		s.ChunkSize = size
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Scanner) {
		s.log = l
	}
}

func newScanner(options ...Option) *Scanner {
	s := &Scanner{
		UpperBound: DefaultUpperBound,
		ChunkSize:  DefaultChunkSize,
		log:        defaultLog,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// FindFirst returns the lowest address at or above the start address where aob matches.
func FindFirst(reader process.RegionReader, aob process.AOB, options ...Option) (process.ProcessMemoryAddress, error) {
	var found process.ProcessMemoryAddress
	ok, err := newScanner(options...).walk(reader, aob, func(addr process.ProcessMemoryAddress) bool {
		found = addr
		return false
	})
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%s: %w", aob.String(), ErrPatternNotFound)
	}
	return found, nil
}

// FindAll returns every match in ascending order, up to limit matches (0 for no limit).
func FindAll(reader process.RegionReader, aob process.AOB, limit int, options ...Option) ([]process.ProcessMemoryAddress, error) {
	var results []process.ProcessMemoryAddress
	_, err := newScanner(options...).walk(reader, aob, func(addr process.ProcessMemoryAddress) bool {
		results = append(results, addr)
		return limit <= 0 || len(results) < limit
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// walk visits matches in ascending order until visit returns false.
// It reports whether any match was seen.
func (s *Scanner) walk(reader process.RegionReader, aob process.AOB, visit func(process.ProcessMemoryAddress) bool) (bool, error) {
	if !aob.IsValid() {
		return false, fmt.Errorf("pattern of %d bytes with %d mask bytes: %w", len(aob.Pattern), len(aob.Mask), ErrInvalidPattern)
	}

	plen := uint64(aob.Len())
	chunk := s.ChunkSize
	if chunk < plen {
		chunk = plen
	}

	s.log.Debugln("Scanning from", s.Start.ToString(), "to", s.UpperBound.ToString(), "for", aob.String())

	seen := false
	addr := uint64(s.Start)
	upper := uint64(s.UpperBound)
	regions := 0

	for addr < upper {
		region, err := reader.QueryRegion(process.ProcessMemoryAddress(addr))
		if err != nil {
			s.log.Debugln("Region query stopped at", process.ProcessMemoryAddress(addr).ToString(), err)
			break
		}
		end := region.End()
		if region.Size == 0 || end <= addr {
			break
		}
		if end > upper {
			end = upper
		}

		if region.IsScannable() {
			regions++
			for off := addr; off+plen <= end; {
				n := chunk
				if off+n > end {
					n = end - off
				}
				data, err := reader.ReadMemory(process.ProcessMemoryAddress(off), process.ProcessMemorySize(n))
				if err != nil {
					s.log.Debugln("Failed to read memory region at", fmt.Sprintf("%x", off), err)
					break
				}
				for _, i := range matchAll(data, aob) {
					seen = true
					if !visit(process.ProcessMemoryAddress(off + uint64(i))) {
						return true, nil
					}
				}
				if off+n >= end {
					break
				}
				// overlap so a match straddling the chunk boundary is still seen
				off += n - (plen - 1)
			}
		}

		addr = region.End()
	}

	s.log.Debugln("Scan complete,", regions, "regions read")
	return seen, nil
}

// MatchFirst returns the offset of the first match of aob in data, or -1.
func MatchFirst(data []byte, aob process.AOB) int {
	if !aob.IsValid() {
		return -1
	}
	for i := 0; i+len(aob.Pattern) <= len(data); i++ {
		if matchAt(data, i, aob) {
			return i
		}
	}
	return -1
}

func matchAll(data []byte, aob process.AOB) []int {
	var matches []int
	for i := 0; i+len(aob.Pattern) <= len(data); i++ {
		if matchAt(data, i, aob) {
			matches = append(matches, i)
		}
	}
	return matches
}

func matchAt(data []byte, i int, aob process.AOB) bool {
	for j := 0; j < len(aob.Pattern); j++ {
		if aob.Mask[j] == 0 {
			continue
		}
		if data[i+j]&aob.Mask[j] != aob.Pattern[j]&aob.Mask[j] {
			return false
		}
	}
	return true
}
