package reload

// Phase is the step a reload is in. Any phase may jump straight to Cleanup.
type Phase int32

const (
	NotAttached Phase = iota
	Attaching
	PointersResolved
	DataPrepared
	PatchApplied
	CodeWritten
	Executing
	Cleanup
	Done
)

func (p Phase) String() string {
	switch p {
	case NotAttached:
		return "not-attached"
	case Attaching:
		return "attaching"
	case PointersResolved:
		return "pointers-resolved"
	case DataPrepared:
		return "data-prepared"
	case PatchApplied:
		return "patch-applied"
	case CodeWritten:
		return "code-written"
	case Executing:
		return "executing"
	case Cleanup:
		return "cleanup"
	case Done:
		return "done"
	}
	return "unknown"
}
