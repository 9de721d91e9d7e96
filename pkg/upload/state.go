package upload

import "fmt"

// State is the terminal state a sample reaches.
type State int

const (
	// Rejected samples failed the naming gate.
	Rejected State = iota
	// Skipped samples were already published, filtered by release, or already uploaded this run.
	Skipped
	// Conflict samples named a key another source already claimed.
	Conflict
	// AnnotatedUpstream samples were uploaded and their public URLs written back.
	AnnotatedUpstream
	// UploadOnlyMode samples were uploaded (or would have been) without write-back.
	UploadOnlyMode
	// Failed samples hit a transport error on the primary image or the write-back.
	Failed
)

func (s State) String() string {
	switch s {
	case Rejected:
		return "Rejected"
	case Skipped:
		return "Skipped"
	case Conflict:
		return "Conflict"
	case AnnotatedUpstream:
		return "AnnotatedUpstream"
	case UploadOnlyMode:
		return "UploadOnlyMode"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
