package seed

import "fmt"

// Phase is the framework phase the process is executing.
type Phase int

const (
	PhaseUnknown Phase = iota
	PhaseServiceConstruction
	PhaseModuleConstruction
	PhaseModuleBeginRun
	PhaseEventProcessing
	PhaseModuleEndJob
	PhaseEndJob
)

var phaseNames = map[Phase]string{
	PhaseUnknown:             "unknown",
	PhaseServiceConstruction: "service-construction",
	PhaseModuleConstruction:  "module-construction",
	PhaseModuleBeginRun:      "module-begin-run",
	PhaseEventProcessing:     "event-processing",
	PhaseModuleEndJob:        "module-end-job",
	PhaseEndJob:              "end-job",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// EventID identifies an event. Timestamp is carried for policies that want it
// but the EventTimestamp_v1 algorithm hashes only run, subrun and event.
type EventID struct {
	Run       uint32
	SubRun    uint32
	Event     uint32
	Timestamp uint64
}

// IsValid reports whether the id names a real event.
func (e EventID) IsValid() bool {
	return e.Run != 0 || e.SubRun != 0 || e.Event != 0
}

func (e EventID) String() string {
	return fmt.Sprintf("%d:%d:%d", e.Run, e.SubRun, e.Event)
}
