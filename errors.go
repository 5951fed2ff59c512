package dssim

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by Compare and CompareFiles is a
// *StageError whose Kind is one of these, so callers can test with
// errors.Is(err, dssim.ErrNoAdapter).
var (
	// ErrPrecondition covers invalid inputs: mismatched dimensions, empty
	// or truncated pixel buffers, undecodable files, bad options.
	ErrPrecondition = errors.New("dssim: precondition failed")

	// ErrNoAdapter is returned when no GPU backend or adapter is available.
	ErrNoAdapter = errors.New("dssim: no GPU adapter")

	// ErrNoDevice is returned when the adapter refuses to open a device.
	ErrNoDevice = errors.New("dssim: no GPU device")

	// ErrResource is returned when a shader, pipeline, buffer, bind group
	// or submission fails.
	ErrResource = errors.New("dssim: GPU resource failure")

	// ErrReadback is returned when mapping a result buffer fails.
	ErrReadback = errors.New("dssim: GPU readback failure")
)

// Pipeline stages reported in StageError.
const (
	StageDecode    = "decode"
	StageValidate  = "validate"
	StageAcquire   = "acquire"
	StagePipeline  = "pipeline"
	StageDispatch  = "dispatch"
	StageReadback  = "readback"
	StageObserve   = "observe"
	StageAggregate = "aggregate"
	StageReport    = "report"
)

// StageError is a terminal failure of one pipeline stage.
type StageError struct {
	// Stage is one of the Stage* constants.
	Stage string

	// Kind is the error class, or nil when the cause is a context error or
	// an error returned by a level observer.
	Kind error

	// Err is the underlying cause.
	Err error
}

// Error renders the one-line diagnostic "stage: cause".
func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap exposes both the class and the cause.
func (e *StageError) Unwrap() []error {
	if e.Kind == nil {
		return []error{e.Err}
	}
	return []error{e.Kind, e.Err}
}

func stageErr(stage string, kind, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}
