package seed

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes seed errors. Every code is fatal for the job.
type ErrorCode string

const (
	// ErrCodeBadConfig indicates a malformed service configuration.
	ErrCodeBadConfig ErrorCode = "BAD_CONFIG"

	// ErrCodeBadPhase indicates an engine registered outside its allowed phase.
	ErrCodeBadPhase ErrorCode = "BAD_PHASE"

	// ErrCodeDuplicateEngine indicates the same engine id registered twice.
	ErrCodeDuplicateEngine ErrorCode = "DUPLICATE_ENGINE"

	// ErrCodeDuplicateSeed indicates two engines would share a seed.
	ErrCodeDuplicateSeed ErrorCode = "DUPLICATE_SEED"

	// ErrCodeNoSuchEngine indicates an engine id that was never registered.
	ErrCodeNoSuchEngine ErrorCode = "NO_SUCH_ENGINE"

	// ErrCodeAlreadyDefined indicates a second seeder for the same engine.
	ErrCodeAlreadyDefined ErrorCode = "ALREADY_DEFINED"

	// ErrCodeBadPolicyConfig indicates a policy rejected its options or ran
	// out of seeds in its configured range.
	ErrCodeBadPolicyConfig ErrorCode = "BAD_POLICY_CONFIG"
)

// Error is returned by every operation in this package and by the seed service.
type Error struct {
	Code    ErrorCode
	Message string

	// Engine is the affected engine, zero when not engine specific.
	Engine EngineID

	// Seed is the offending seed for DUPLICATE_SEED.
	Seed Seed
}

func (e *Error) Error() string {
	if !e.Engine.IsZero() {
		return fmt.Sprintf("%s: %s (engine=%s)", e.Code, e.Message, e.Engine)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsCode reports whether err wraps an *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// NewBadConfigError reports a malformed service configuration.
func NewBadConfigError(format string, args ...any) *Error {
	return &Error{Code: ErrCodeBadConfig, Message: fmt.Sprintf(format, args...)}
}

// NewBadPhaseError reports a registration attempted in the wrong phase.
func NewBadPhaseError(id EngineID, phase Phase) *Error {
	want := PhaseModuleConstruction
	if id.Global {
		want = PhaseServiceConstruction
	}
	return &Error{
		Code:    ErrCodeBadPhase,
		Message: fmt.Sprintf("engine registered during %s, allowed only during %s", phase, want),
		Engine:  id,
	}
}

// NewDuplicateEngineError reports a second registration of id.
func NewDuplicateEngineError(id EngineID) *Error {
	return &Error{Code: ErrCodeDuplicateEngine, Message: "engine already registered", Engine: id}
}

// NewDuplicateSeedError reports that seed is already owned by owner.
func NewDuplicateSeedError(id EngineID, seed Seed, owner EngineID) *Error {
	return &Error{
		Code:    ErrCodeDuplicateSeed,
		Message: fmt.Sprintf("seed %d already used by %s", seed, owner),
		Engine:  id,
		Seed:    seed,
	}
}

// NewNoSuchEngineError reports an unknown engine id.
func NewNoSuchEngineError(id EngineID) *Error {
	return &Error{Code: ErrCodeNoSuchEngine, Message: "engine not registered", Engine: id}
}

// NewAlreadyDefinedError reports a second seeder for id.
func NewAlreadyDefinedError(id EngineID) *Error {
	return &Error{Code: ErrCodeAlreadyDefined, Message: "engine already has a seeder", Engine: id}
}

// NewBadPolicyConfigError reports a policy option problem.
func NewBadPolicyConfigError(policy string, format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeBadPolicyConfig,
		Message: fmt.Sprintf("policy %s: %s", policy, fmt.Sprintf(format, args...)),
	}
}
