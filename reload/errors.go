package reload

import (
	"errors"
	"fmt"

	"chrreload/process"
	"chrreload/resolver"
	"chrreload/search"
	"chrreload/shellcode"
	"chrreload/titles"
)

// Category groups failures by what the user can do about them.
type Category int

const (
	CategoryNone Category = iota
	CategoryInput
	CategoryAttachment
	CategoryScan
	CategoryResolution
	CategoryMemoryOp
	CategoryExecution
)

func (c Category) String() string {
	switch c {
	case CategoryInput:
		return "input"
	case CategoryAttachment:
		return "attachment"
	case CategoryScan:
		return "scan"
	case CategoryResolution:
		return "resolution"
	case CategoryMemoryOp:
		return "memory"
	case CategoryExecution:
		return "execution"
	}
	return "none"
}

var (
	// ErrBusy is returned by TryReload while another reload is running.
	ErrBusy = errors.New("reload already in progress")

	ErrInvalidID = errors.New("invalid character id")
)

// Error is the single error type returned by the Reloader.
type Error struct {
	Category  Category
	Phase     Phase
	Title     string
	AntiCheat bool
	Err       error
}

func (e *Error) Error() string {
	if e.Title == "" {
		return fmt.Sprintf("%s error during %s: %v", e.Category, e.Phase, e.Err)
	}
	return fmt.Sprintf("%s: %s error during %s: %v", e.Title, e.Category, e.Phase, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage is the one-line explanation shown to the person running the tool.
func (e *Error) UserMessage() string {
	switch e.Category {
	case CategoryInput:
		return fmt.Sprintf("Invalid input: %v", e.Err)
	case CategoryAttachment:
		msg := "Could not open the game process. Make sure the game is running and start this tool as administrator."
		if e.AntiCheat {
			msg += " The game must be started with EasyAntiCheat disabled."
		}
		return msg
	case CategoryScan, CategoryResolution:
		return "Could not locate the game's character data. The game version may be unsupported or the game is still loading."
	case CategoryMemoryOp:
		return "Reading or writing game memory failed. The game may have closed."
	case CategoryExecution:
		return "The reload did not finish in time or could not be started."
	}
	return e.Err.Error()
}

// CategoryOf returns the category of a Reloader error, or classifies a raw error.
func CategoryOf(err error) Category {
	if err == nil {
		return CategoryNone
	}
	var re *Error
	if errors.As(err, &re) {
		return re.Category
	}
	return classify(err)
}

func classify(err error) Category {
	switch {
	case errors.Is(err, ErrInvalidID), errors.Is(err, titles.ErrUnknownTitle):
		return CategoryInput
	case errors.Is(err, process.ErrProcessNotFound), errors.Is(err, process.ErrAccessDenied), errors.Is(err, process.ErrProcessNotOpen):
		return CategoryAttachment
	case errors.Is(err, search.ErrPatternNotFound):
		return CategoryScan
	case errors.Is(err, resolver.ErrNullPointer), errors.Is(err, resolver.ErrUnknownPointer):
		return CategoryResolution
	case errors.Is(err, process.ErrThreadCreate), errors.Is(err, process.ErrThreadTimeout),
		errors.Is(err, shellcode.ErrMissingSlot), errors.Is(err, shellcode.ErrDisplacementRange):
		return CategoryExecution
	}
	return CategoryMemoryOp
}
