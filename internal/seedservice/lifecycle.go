package seedservice

import (
	"fmt"

	"github.com/roach88/nutools/internal/seed"
)

// Handle applies one lifecycle callback.
func (s *Service) Handle(ev LifecycleEvent) error {
	switch ev.Kind {
	case PostServiceConstruction:
		s.state.ResetPhase()

	case PreModuleConstruction:
		s.state.SetPhase(seed.PhaseModuleConstruction)
		s.state.SetModule(ev.Module)
	case PostModuleConstruction:
		s.state.ResetPhase()
		s.state.ResetModule()

	case PreModuleBeginRun:
		s.state.SetPhase(seed.PhaseModuleBeginRun)
		s.state.SetModule(ev.Module)
	case PostModuleBeginRun:
		s.state.ResetPhase()
		s.state.ResetModule()

	case PreProcessEvent:
		s.state.SetPhase(seed.PhaseEventProcessing)
		s.state.SetEvent(ev.Event)
		s.master.OnNewEvent()
		if err := s.ReseedGlobal(); err != nil {
			return fmt.Errorf("%s: %w", ev, err)
		}
	case PreModule:
		s.state.SetModule(ev.Module)
		if err := s.ReseedModule(ev.Module); err != nil {
			return fmt.Errorf("%s: %w", ev, err)
		}
	case PostModule:
		s.state.ResetModule()
	case PostProcessEvent:
		s.state.ResetEvent()
		s.state.ResetModule()
		s.state.ResetPhase()

	case PreModuleEndJob:
		s.state.SetPhase(seed.PhaseModuleEndJob)
		s.state.SetModule(ev.Module)
	case PostModuleEndJob:
		s.state.ResetPhase()
		s.state.ResetModule()

	case PostEndJob:
		s.state.SetPhase(seed.PhaseEndJob)
		if s.master.EndOfJobSummary() {
			s.WriteSummary(s.summaryOut)
		}
		s.state.ResetPhase()

	default:
		return fmt.Errorf("unknown lifecycle event kind %d", int(ev.Kind))
	}
	return nil
}

// Post queues ev for delivery by Flush.
func (s *Service) Post(ev LifecycleEvent) {
	s.mailbox.Enqueue(ev)
}

// Pending returns the number of queued messages.
func (s *Service) Pending() int {
	return s.mailbox.Len()
}

// Flush delivers queued messages in order. It stops at the first failure and
// leaves the failed message and everything after it queued.
func (s *Service) Flush() error {
	for {
		ev, ok := s.mailbox.Peek()
		if !ok {
			return nil
		}
		if err := s.Handle(ev); err != nil {
			return err
		}
		s.mailbox.Drop()
	}
}
