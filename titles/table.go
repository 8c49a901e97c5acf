package titles

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"chrreload/process"
	"chrreload/resolver"
	"chrreload/shellcode"

	"gopkg.in/yaml.v2"
)

//go:embed titles.yaml
var bundled []byte

var (
	ErrUnknownTitle = errors.New("unknown title")
	ErrInvalidTitle = errors.New("invalid title configuration")
)

type file struct {
	Titles []*Title `yaml:"titles"`
}

// Table is the set of supported titles keyed by (id, version).
type Table struct {
	titles map[Key]*Title
}

// Default returns the bundled table.
func Default() (*Table, error) {
	return Parse(bundled)
}

func Parse(data []byte) (*Table, error) {
	var f file
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse title table: %w", err)
	}

	t := &Table{titles: make(map[Key]*Title, len(f.Titles))}
	for _, title := range f.Titles {
		if title.Version == "" {
			title.Version = DefaultVersion
		}
		if err := title.Validate(); err != nil {
			return nil, err
		}
		if _, dup := t.titles[title.Key()]; dup {
			return nil, fmt.Errorf("%s defined twice: %w", title.Key(), ErrInvalidTitle)
		}
		t.titles[title.Key()] = title
	}
	return t, nil
}

func Load(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read title table: %w", err)
	}
	return Parse(data)
}

func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Merge copies every entry of o into t, replacing entries with the same key.
func (t *Table) Merge(o *Table) {
	for k, v := range o.titles {
		t.titles[k] = v
	}
}

// Lookup finds a title by id (case-insensitive) and version; an empty version means the default.
func (t *Table) Lookup(id, version string) (*Title, error) {
	if version == "" {
		version = DefaultVersion
	}
	key := Key{ID: strings.ToUpper(strings.TrimSpace(id)), Version: version}
	title, ok := t.titles[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrUnknownTitle)
	}
	return title, nil
}

// Titles lists entries sorted by key.
func (t *Table) Titles() []*Title {
	out := make([]*Title, 0, len(t.titles))
	for _, v := range t.titles {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key().String() < out[j].Key().String()
	})
	return out
}

// Chains converts the pointer configuration into resolver chains.
func (t *Title) Chains() ([]resolver.Chain, error) {
	chains := make([]resolver.Chain, 0, len(t.Pointers))
	for _, p := range t.Pointers {
		c := resolver.Chain{Name: p.Name}
		for i, s := range p.Steps {
			step := resolver.Step{
				Kind:       resolver.StepKind(s.Op),
				Offset:     int64(s.Offset),
				DispOffset: int64(s.DispOffset),
				InstrLen:   int64(s.InstrLen),
			}
			if step.Kind == resolver.StepScan {
				aob, err := process.ParseAOB(s.Pattern)
				if err != nil {
					return nil, fmt.Errorf("%s pointer %s step %d: %w", t.Key(), p.Name, i, err)
				}
				step.Pattern = aob
			}
			c.Steps = append(c.Steps, step)
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", t.Key(), err)
		}
		chains = append(chains, c)
	}
	return chains, nil
}

func (t *Title) Shellcode() (shellcode.Template, error) {
	return shellcode.Lookup(t.Template)
}

// GuardBytes returns the crash guard patch, or nil when the title has none.
func (t *Title) GuardBytes() ([]byte, error) {
	if t.CrashGuard == nil {
		return nil, nil
	}
	aob, err := process.ParseAOB(t.CrashGuard.Bytes)
	if err != nil {
		return nil, err
	}
	for _, m := range aob.Mask {
		if m == 0 {
			return nil, fmt.Errorf("crash guard bytes cannot contain wildcards")
		}
	}
	return aob.Pattern, nil
}

func (t *Title) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%s: %s: %w", t.Key(), fmt.Sprintf(format, args...), ErrInvalidTitle)
	}

	if t.ID == "" {
		return invalid("missing id")
	}
	if len(t.ProcessNames) == 0 {
		return invalid("no process names")
	}
	switch t.Encoding {
	case EncodingUTF16LE, EncodingASCII:
	default:
		return invalid("unsupported encoding %q", t.Encoding)
	}

	chains, err := t.Chains()
	if err != nil {
		return invalid("%v", err)
	}
	pointers := make(map[string]bool, len(chains))
	for _, c := range chains {
		if pointers[c.Name] {
			return invalid("pointer %s defined twice", c.Name)
		}
		pointers[c.Name] = true
	}
	required := make(map[string]bool, len(t.Required))
	for _, name := range t.Required {
		if !pointers[name] {
			return invalid("required pointer %s has no chain", name)
		}
		required[name] = true
	}

	// everything the reload touches must be resolved up front
	uses := []string{t.ReloadFlag}
	for _, p := range t.Bindings {
		uses = append(uses, p)
	}
	for _, f := range t.Record.Fields {
		uses = append(uses, f.Pointer)
	}
	if t.CrashGuard != nil {
		uses = append(uses, t.CrashGuard.Pointer)
	}
	for _, name := range uses {
		if name != "" && !required[name] {
			return invalid("pointer %s is used but not required", name)
		}
	}

	tmpl, err := t.Shellcode()
	if err != nil {
		return invalid("%v", err)
	}
	provided := map[string]bool{shellcode.SlotRecord: true}
	for slot := range t.Bindings {
		provided[slot] = true
	}
	for slot := range t.Offsets {
		if provided[slot] {
			return invalid("slot %s is both bound and constant", slot)
		}
		provided[slot] = true
	}
	wanted := make(map[string]bool)
	for _, slot := range tmpl.Slots() {
		wanted[slot] = true
		if !provided[slot] {
			return invalid("template %s slot %s has no value", tmpl.Name, slot)
		}
	}
	for slot := range provided {
		if !wanted[slot] && slot != shellcode.SlotRecord {
			return invalid("template %s has no slot %s", tmpl.Name, slot)
		}
	}
	if tmpl.Len() > t.CodeBufferSize() {
		return invalid("template %s needs %d bytes, code_size is %d", tmpl.Name, tmpl.Len(), t.CodeBufferSize())
	}

	if err := t.validateRecord(); err != nil {
		return invalid("%v", err)
	}
	if _, err := t.GuardBytes(); err != nil {
		return invalid("%v", err)
	}
	return nil
}

func (t *Title) validateRecord() error {
	r := t.Record
	if r.Size < 0 || r.NameOffset < 0 {
		return fmt.Errorf("negative record size or name offset")
	}
	if r.Size > 0 && r.NameOffset >= r.Size {
		return fmt.Errorf("name offset %#x outside record of %#x bytes", int64(r.NameOffset), int64(r.Size))
	}
	for _, f := range r.Fields {
		switch f.Kind {
		case FieldPointerValue:
			if f.Pointer == "" {
				return fmt.Errorf("field at %#x has no pointer", int64(f.Offset))
			}
		case FieldNamePointer, FieldByte:
		default:
			return fmt.Errorf("field at %#x has unknown kind %q", int64(f.Offset), f.Kind)
		}
		end := int64(f.Offset) + int64(f.Kind.Width())
		if f.Offset < 0 || end > int64(r.NameOffset) {
			return fmt.Errorf("field at %#x does not fit before the name", int64(f.Offset))
		}
	}
	return nil
}
