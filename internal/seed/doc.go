// Package seed is the authority on which seed each random number engine uses.
//
// Engines are identified by an EngineID (module label, instance name, global
// flag). A Master keeps one EngineRecord per id, asks the configured Policy for
// seeds, and refuses any seed already handed to a different engine. Seeds that
// come from explicit configuration are frozen: no policy may replace them.
//
// # Determinism
//
// Every policy is a pure function of its options and the order in which engines
// first ask for a seed. Records are kept in registration order so summaries and
// traces are reproducible between jobs.
//
// Event-dependent policies (perEvent) derive seeds from a domain-separated
// SHA-256 hash of the event id and the engine id, with labels NFC-normalised
// before hashing.
package seed
