// Package reload drives one character reload inside a running game: attach,
// locate the engine structures, stage the record and the shellcode in fresh
// remote memory, run it on a remote thread and clean everything up.
package reload

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"chrreload/coloransi"
	"chrreload/hexdump"
	"chrreload/process"
	"chrreload/process/memory_map"
	"chrreload/resolver"
	"chrreload/search"
	"chrreload/shellcode"
	"chrreload/titles"

	"github.com/Moonlight-Companies/gologger/logger"
)

// Result describes a completed reload.
type Result struct {
	Title     string
	ID        string
	Record    process.Allocation
	Code      process.Allocation
	Shellcode shellcode.Buffer
	Elapsed   time.Duration
}

// Reloader serializes reloads against a single process link.
type Reloader struct {
	mu       sync.Mutex
	link     process.Target
	table    *titles.Table
	attached *titles.Title
	resolver *resolver.Resolver
	scanOpts []search.Option
	dump     bool
	phase    atomic.Int32
	log      *logger.Logger
}

type Option func(*Reloader)

// WithScanOptions forwards options to every signature scan.
func WithScanOptions(opts ...search.Option) Option {
	return func(r *Reloader) {
		r.scanOpts = append(r.scanOpts, opts...)
	}
}

// WithCodeDump logs a hexdump of every record and stub written to the target.
func WithCodeDump(enabled bool) Option {
	return func(r *Reloader) {
		r.dump = enabled
	}
}

func New(link process.Target, table *titles.Table, options ...Option) *Reloader {
	r := &Reloader{
		link:  link,
		table: table,
		log:   logger.NewLogger(coloransi.Color(coloransi.ColorLimeGreen, coloransi.Black, "reload")),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *Reloader) Phase() Phase {
	return Phase(r.phase.Load())
}

func (r *Reloader) setPhase(p Phase) {
	r.phase.Store(int32(p))
}

// Reload reloads character chrID in the given title, waiting for any reload in flight.
func (r *Reloader) Reload(titleID, version, chrID string) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reload(titleID, version, chrID)
}

// TryReload is Reload that fails with ErrBusy instead of waiting.
func (r *Reloader) TryReload(titleID, version, chrID string) (*Result, error) {
	if !r.mu.TryLock() {
		return nil, &Error{Category: CategoryExecution, Phase: r.Phase(), Title: titleID, Err: ErrBusy}
	}
	defer r.mu.Unlock()
	return r.reload(titleID, version, chrID)
}

// Attach connects to the title's process without reloading anything.
func (r *Reloader) Attach(titleID, version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	title, err := r.table.Lookup(titleID, version)
	if err != nil {
		return r.fail(nil, CategoryInput, err)
	}
	if err := r.ensureAttached(title); err != nil {
		err = r.fail(title, classify(err), err)
		r.setPhase(NotAttached)
		return err
	}
	return nil
}

// Detach drops the process handle and every cached pointer.
func (r *Reloader) Detach() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropSession()
	return r.link.Detach()
}

func (r *Reloader) dropSession() {
	if r.resolver != nil {
		r.resolver.Invalidate()
	}
	r.resolver = nil
	r.attached = nil
	r.setPhase(NotAttached)
}

func (r *Reloader) ensureAttached(title *titles.Title) error {
	if r.attached != nil && r.attached.Key() == title.Key() && r.link.IsAttached() && r.link.IsAlive() {
		return nil
	}

	r.setPhase(Attaching)
	if r.link.IsAttached() {
		if err := r.link.Detach(); err != nil {
			r.log.Warn("Detach failed: ", err)
		}
	}
	r.dropSession()
	r.setPhase(Attaching)

	chains, err := title.Chains()
	if err != nil {
		return err
	}

	var errs []error
	for _, name := range title.ProcessNames {
		if err := r.link.Attach(name); err != nil {
			errs = append(errs, err)
			continue
		}

		res, err := resolver.New(r.link, chains, resolver.WithScanOptions(r.scanOpts...))
		if err != nil {
			return err
		}
		r.resolver = res
		r.attached = title
		r.log.Infoln("Attached to", r.link.GetName(), "pid", r.link.GetPID(), "base", r.link.BaseAddress().ToString())
		return nil
	}
	return errors.Join(errs...)
}

func (r *Reloader) fail(title *titles.Title, cat Category, err error) error {
	e := &Error{Category: cat, Phase: r.Phase(), Err: err}
	if title != nil {
		e.Title = title.ID
		e.AntiCheat = title.AntiCheat
	}
	switch cat {
	case CategoryScan, CategoryResolution, CategoryMemoryOp:
		if r.resolver != nil {
			r.resolver.Invalidate()
		}
	}
	r.log.Warn(e.Error())
	return e
}

func (r *Reloader) reload(titleID, version, chrID string) (res *Result, err error) {
	start := time.Now()

	var (
		title *titles.Title
		s     *session
	)
	defer func() {
		if p := recover(); p != nil {
			res = nil
			err = r.fail(title, CategoryExecution, fmt.Errorf("panic: %v", p))
		}
		r.setPhase(Cleanup)
		if s != nil {
			s.cleanup()
		}
		r.setPhase(Done)
	}()

	title, err = r.table.Lookup(titleID, version)
	if err != nil {
		return nil, r.fail(nil, CategoryInput, err)
	}
	id, err := NormalizeID(chrID, title.IDPrefix)
	if err != nil {
		return nil, r.fail(title, CategoryInput, err)
	}
	name, err := EncodeID(id, title.Encoding)
	if err != nil {
		return nil, r.fail(title, CategoryInput, err)
	}
	recSize, err := recordSize(title.Record, name)
	if err != nil {
		return nil, r.fail(title, CategoryInput, err)
	}
	tmpl, err := title.Shellcode()
	if err != nil {
		return nil, r.fail(title, CategoryExecution, err)
	}

	if err := r.ensureAttached(title); err != nil {
		return nil, r.fail(title, classify(err), err)
	}
	ptrs, err := r.resolver.Require(title.Required...)
	if err != nil {
		return nil, r.fail(title, classify(err), err)
	}
	r.setPhase(PointersResolved)

	s = &session{link: r.link, log: r.log}

	rec, err := s.allocate(recSize)
	if err != nil {
		return nil, r.fail(title, classify(err), err)
	}
	codeSize := title.CodeBufferSize()
	if tmpl.Len() > codeSize {
		codeSize = tmpl.Len()
	}
	code, err := s.allocate(codeSize)
	if err != nil {
		return nil, r.fail(title, classify(err), err)
	}

	if title.ReloadFlag != "" {
		if err := process.WriteUINT8(r.link, ptrs[title.ReloadFlag], 1); err != nil {
			err = fmt.Errorf("set reload flag: %w", err)
			return nil, r.fail(title, classify(err), err)
		}
	}

	record, err := buildRecord(title.Record, rec.Address, name, ptrs, r.link)
	if err != nil {
		return nil, r.fail(title, classify(err), err)
	}
	if err := r.link.WriteMemory(rec.Address, record); err != nil {
		err = fmt.Errorf("write record at %s: %w", rec.Address.ToString(), err)
		return nil, r.fail(title, classify(err), err)
	}
	r.setPhase(DataPrepared)
	r.dumpRecord(rec.Address, record)

	r.applyCrashGuard(s, title, ptrs)
	r.setPhase(PatchApplied)

	values := map[string]uint64{shellcode.SlotRecord: uint64(rec.Address)}
	for slot, ptr := range title.Bindings {
		values[slot] = uint64(ptrs[ptr])
	}
	for slot, v := range title.Offsets {
		values[slot] = uint64(int64(v))
	}
	buf, err := tmpl.Assemble(values)
	if err != nil {
		return nil, r.fail(title, CategoryExecution, err)
	}
	if err := r.link.WriteMemory(code.Address, buf.Bytes); err != nil {
		err = fmt.Errorf("write code at %s: %w", code.Address.ToString(), err)
		return nil, r.fail(title, classify(err), err)
	}
	r.setPhase(CodeWritten)
	r.debugDump(buf.Template, code.Address, buf.Bytes, buf.Sites...)

	r.setPhase(Executing)
	r.log.Infoln("Running", buf.Template, "at", code.Address.ToString(), "for", id)
	if err := r.link.RunRemote(code.Address, title.Wait()); err != nil {
		return nil, r.fail(title, classify(err), err)
	}

	res = &Result{
		Title:     title.ID,
		ID:        id,
		Record:    rec,
		Code:      code,
		Shellcode: buf,
		Elapsed:   time.Since(start),
	}
	r.log.Infoln("Reloaded", id, "in", title.Name, "after", res.Elapsed)
	return res, nil
}

func (r *Reloader) applyCrashGuard(s *session, title *titles.Title, ptrs map[string]process.ProcessMemoryAddress) {
	guard, err := title.GuardBytes()
	if err != nil || guard == nil {
		return
	}

	site := ptrs[title.CrashGuard.Pointer]
	orig, err := r.link.ReadMemory(site, process.ProcessMemorySize(len(guard)))
	if err != nil {
		r.log.Warn("Crash guard not applied, read failed at ", site.ToString(), ": ", err)
		return
	}
	if err := r.link.WriteMemory(site, guard); err != nil {
		r.log.Warn("Crash guard not applied, write failed at ", site.ToString(), ": ", err)
		return
	}
	r.log.Infoln("Crash guard applied at", site.ToString())

	if title.CrashGuard.Revert {
		s.onCleanup(func() error {
			return r.link.WriteMemory(site, orig)
		})
	}
}

// dumpRecord shows the record with every qword that points into live memory called out.
func (r *Reloader) dumpRecord(addr process.ProcessMemoryAddress, data []byte) {
	if !r.dump {
		return
	}
	r.log.Infoln("record at", addr.ToString(), "\n"+hexdump.HexdumpBasic(data, uint64(addr), pointerRegions(r.link, data)))
}

// pointerRegions returns the committed regions that qwords in data point into, sorted by address.
func pointerRegions(link process.RegionReader, data []byte) []memory_map.MemoryRegion {
	var regions []memory_map.MemoryRegion
	for at := 0; at+8 <= len(data); at += 8 {
		ptr := binary.LittleEndian.Uint64(data[at:])
		if ptr == 0 || memory_map.FindRegion(ptr, regions) != nil {
			continue
		}
		region, err := link.QueryRegion(process.ProcessMemoryAddress(ptr))
		if err != nil || !region.IsCommitted() || !region.Contains(ptr) {
			continue
		}
		regions = append(regions, region)
		sort.Slice(regions, func(i, j int) bool { return regions[i].Address < regions[j].Address })
	}
	return regions
}

func (r *Reloader) debugDump(what string, addr process.ProcessMemoryAddress, data []byte, sites ...shellcode.PatchSite) {
	if !r.dump {
		return
	}
	spans := make([]hexdump.Span, 0, len(sites))
	for _, s := range sites {
		spans = append(spans, hexdump.Span{Offset: s.Offset, Len: int(s.Width)})
	}
	r.log.Infoln(what, "at", addr.ToString(), "\n"+hexdump.DumpWithHighlight(data, uint64(addr), spans...))
}
