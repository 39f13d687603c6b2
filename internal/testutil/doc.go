// Package testutil holds deterministic stand-ins used across package tests:
// a sleeper that records waits instead of blocking, a fixed jitter source,
// and a sequential id generator.
package testutil
