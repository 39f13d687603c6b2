// Package harness replays scripted jobs against the seed service.
//
// A scenario describes what a framework job would do: which engines are
// registered during service and module construction, which events are
// processed and which engines are reseeded explicitly. The harness drives a
// fresh seedservice.Service through the lifecycle callbacks in framework
// order and records every seed handed to an engine.
//
// # Scenario Format
//
//	name: linear_mapping
//	description: "Three module engines and a frozen override"
//	config:
//	  policy: linearMapping
//	  baseSeed: 1000
//	  stride: 10
//	globals:
//	  - instance: svcG
//	modules:
//	  - label: modA
//	    engines:
//	      - instance: ""
//	      - instance: alt
//	  - label: modB
//	    engines:
//	      - instance: alt
//	        params: { Seed_alt: 777 }
//	events:
//	  - { run: 1, subRun: 0, event: 1, reseed: ["modA:alt"] }
//	assertions:
//	  - { type: seed_equals, engine: "modB:alt", seed: 777 }
//	  - { type: seeds_distinct }
//
// Engines are registered with RegisterEngine unless mode says otherwise
// (declare, create, getSeed). A step with expectError must fail with that
// error code; the job continues.
//
// # Assertion Types
//
//   - seed_equals: the engine's job-level seed
//   - seeds_distinct: no two engines share a job-level seed
//   - frozen: the engine's seed came from an override
//   - apply_count: how many times a seed was handed to the engine
//
// # Golden Traces
//
// Render produces a stable text form of a result. RunWithGolden compares it
// with testdata/golden/<name>.golden through goldie.
package harness
