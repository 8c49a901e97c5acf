package titles

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	EncodingUTF16LE = "utf-16le"
	EncodingASCII   = "ascii"

	DefaultVersion  = "default"
	DefaultTimeout  = 5 * time.Second
	DefaultCodeSize = 256
)

// Number accepts decimal or 0x-prefixed hex, signed.
type Number int64

func (n *Number) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := parseNumber(s)
	if err != nil {
		return err
	}
	*n = Number(v)
	return nil
}

func parseNumber(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "_", "")
	if v, err := strconv.ParseInt(s, 0, 64); err == nil {
		return v, nil
	}
	u, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return int64(u), nil
}

// Duration is a time.Duration written as "5s", "1500ms", ...
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

type StepConfig struct {
	Op         string `yaml:"op"`
	Pattern    string `yaml:"pattern,omitempty"`
	Offset     Number `yaml:"offset,omitempty"`
	DispOffset Number `yaml:"disp_offset,omitempty"`
	InstrLen   Number `yaml:"instr_len,omitempty"`
}

type PointerConfig struct {
	Name  string       `yaml:"name"`
	Steps []StepConfig `yaml:"steps"`
}

type FieldKind string

const (
	// FieldPointerValue stores the 8 bytes read at a resolved pointer + Add.
	FieldPointerValue FieldKind = "pointer_value"
	// FieldNamePointer stores the remote address of the encoded name.
	FieldNamePointer FieldKind = "name_pointer"
	// FieldByte stores Value as a single byte.
	FieldByte FieldKind = "byte"
)

func (k FieldKind) Width() int {
	if k == FieldByte {
		return 1
	}
	return 8
}

type Field struct {
	Offset  Number    `yaml:"offset"`
	Kind    FieldKind `yaml:"kind"`
	Pointer string    `yaml:"pointer,omitempty"`
	Add     Number    `yaml:"add,omitempty"`
	Value   Number    `yaml:"value,omitempty"`
}

// Record describes the auxiliary block written next to the shellcode.
// A zero Size means the record is just the encoded name.
type Record struct {
	Size       Number  `yaml:"size,omitempty"`
	NameOffset Number  `yaml:"name_offset,omitempty"`
	Fields     []Field `yaml:"fields,omitempty"`
}

// CrashGuard patches a few bytes of game code before the reload runs.
type CrashGuard struct {
	Pointer string `yaml:"pointer"`
	Bytes   string `yaml:"bytes"`
	Revert  bool   `yaml:"revert"`
}

type Title struct {
	ID           string            `yaml:"id"`
	Name         string            `yaml:"name"`
	Version      string            `yaml:"version"`
	ProcessNames []string          `yaml:"process_names"`
	AntiCheat    bool              `yaml:"anti_cheat"`
	Encoding     string            `yaml:"encoding"`
	IDPrefix     string            `yaml:"id_prefix"`
	Template     string            `yaml:"template"`
	CodeSize     Number            `yaml:"code_size,omitempty"`
	Timeout      Duration          `yaml:"timeout,omitempty"`
	Pointers     []PointerConfig   `yaml:"pointers"`
	Required     []string          `yaml:"required"`
	ReloadFlag   string            `yaml:"reload_flag,omitempty"`
	Bindings     map[string]string `yaml:"bindings,omitempty"`
	Offsets      map[string]Number `yaml:"offsets,omitempty"`
	Record       Record            `yaml:"record,omitempty"`
	CrashGuard   *CrashGuard       `yaml:"crash_guard,omitempty"`
}

type Key struct {
	ID      string
	Version string
}

func (k Key) String() string {
	return k.ID + "@" + k.Version
}

func (t *Title) Key() Key {
	return Key{ID: strings.ToUpper(t.ID), Version: t.Version}
}

func (t *Title) Wait() time.Duration {
	if t.Timeout <= 0 {
		return DefaultTimeout
	}
	return time.Duration(t.Timeout)
}

func (t *Title) CodeBufferSize() int {
	if t.CodeSize <= 0 {
		return DefaultCodeSize
	}
	return int(t.CodeSize)
}
