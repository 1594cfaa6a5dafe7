package converter

import "github.com/menta2k/imagesort/pkg/fingerprint"

// Status is the outcome class of one conversion attempt.
type Status string

const (
	StatusConverted Status = "converted"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// SkipReason explains a StatusSkipped result.
type SkipReason string

const (
	ReasonDuplicate     SkipReason = "duplicate"
	ReasonTooLarge      SkipReason = "too_large"
	ReasonAlreadyExists SkipReason = "already_exists"
)

// Result describes what happened to a single source file.
type Result struct {
	Source      string
	Output      string
	Status      Status
	Reason      SkipReason
	Err         error
	Fingerprint fingerprint.Fingerprint
	Width       int
	Height      int
	// Bytes is the size of the written output, zero unless converted.
	Bytes int64
}

// Converted reports whether a new output file was written.
func (r Result) Converted() bool {
	return r.Status == StatusConverted
}

// Label is a short human form such as "skipped (duplicate)".
func (r Result) Label() string {
	if r.Status == StatusSkipped && r.Reason != "" {
		return string(r.Status) + " (" + string(r.Reason) + ")"
	}
	return string(r.Status)
}
