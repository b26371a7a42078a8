package pipeline

import (
	"github.com/mattermost/polyglot/cmd/polyglot/transcribe"
)

const (
	StepDetecting = "1/4"
	StepResolving = "2/4"
	StepStreaming = "3/4"
	StepSaving    = "4/4"
	StepDone      = "done"
)

// Event is one of Progress, SegmentProcessed, Finished or Failed. Events of
// a run are delivered in order, exactly once, and the terminal one
// (Finished or Failed) is always last.
type Event interface {
	event()
}

// Progress is a human readable status update.
type Progress struct {
	Message string
	Percent int
	Step    string
}

// SegmentProcessed is emitted once per segment appended to the run.
type SegmentProcessed struct {
	Index   int
	Segment transcribe.Segment
}

// Finished is emitted when a run completes or is cancelled. Path is empty
// if the final artifact could not be written.
type Finished struct {
	State      State
	Segments   transcribe.Transcription
	Path       string
	WebVTTPath string
}

// Failed is emitted when a run fails.
type Failed struct {
	Message string
}

func (Progress) event()         {}
func (SegmentProcessed) event() {}
func (Finished) event()         {}
func (Failed) event()           {}
