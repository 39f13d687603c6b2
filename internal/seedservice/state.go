package seedservice

import (
	"fmt"

	"github.com/roach88/nutools/internal/seed"
)

// ArtState records what the framework is currently doing: the phase, the
// module whose code is running or being constructed, and the current event.
type ArtState struct {
	phase  seed.Phase
	module string
	event  seed.EventID
}

func (s *ArtState) Phase() seed.Phase {
	return s.phase
}

func (s *ArtState) Module() string {
	return s.module
}

func (s *ArtState) Event() seed.EventID {
	return s.event
}

func (s *ArtState) SetPhase(p seed.Phase) {
	s.phase = p
}

func (s *ArtState) SetModule(label string) {
	s.module = label
}

func (s *ArtState) SetEvent(ev seed.EventID) {
	s.event = ev
}

func (s *ArtState) ResetPhase() {
	s.phase = seed.PhaseUnknown
}

func (s *ArtState) ResetModule() {
	s.module = ""
}

func (s *ArtState) ResetEvent() {
	s.event = seed.EventID{}
}

func (s *ArtState) String() string {
	return fmt.Sprintf("phase=%s module=%q event=%s", s.phase, s.module, s.event)
}
