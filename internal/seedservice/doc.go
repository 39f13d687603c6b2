// Package seedservice is the per-process facade that framework modules use to
// obtain reproducible seeds for their random number engines.
//
// The service owns a seed.Master and an ArtState. The host framework drives it
// by delivering LifecycleEvent messages, either directly through Handle or by
// queueing them with Post and delivering them with Flush. Messages are handled
// in order on the caller's goroutine; the service never starts goroutines.
//
// # Registration phases
//
// Module engines may be registered only while their module is being
// constructed. Global engines may be registered only while services are being
// constructed, which is the phase a freshly built Service starts in. Anything
// else fails with BAD_PHASE.
//
// # Reseeding
//
// With an event-dependent policy, PreProcessEvent reseeds every global engine
// and PreModule reseeds every engine owned by that module before the module
// runs. Frozen engines are never reseeded.
package seedservice
