package seed

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// Seed is a 64-bit engine seed. Policies only produce positive seeds.
type Seed int64

// InvalidSeed marks "no seed": unassigned records and policies without
// per-event seeds.
const InvalidSeed Seed = 0

// Domain prefixes keep engine and event hashes in separate spaces.
// The version suffix leaves room for new algorithms.
const (
	DomainEngine           = "nutools/seed/engine/v1"
	DomainEventTimestampV1 = "nutools/seed/EventTimestamp_v1"
)

// hashWithDomain computes SHA256(domain 0x00 part1 0x00 part2 0x00 ...) and
// returns the first eight bytes. Every part is NFC-normalised so labels that
// render identically hash identically.
func hashWithDomain(domain string, parts ...string) uint64 {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	for _, p := range parts {
		h.Write([]byte(norm.NFC.String(p)))
		h.Write([]byte{0x00})
	}
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

// toSeed folds a hash into the positive seed range. 63 bits survive.
func toSeed(v uint64) Seed {
	s := Seed(v & math.MaxInt64)
	if s == InvalidSeed {
		s = 1
	}
	return s
}

// EngineHash is the job-independent hash of an engine id.
func EngineHash(id EngineID) Seed {
	kind := "module"
	if id.Global {
		kind = "global"
	}
	return toSeed(hashWithDomain(DomainEngine, kind, id.ModuleLabel, id.InstanceName))
}

// EventTimestampV1 hashes (run, subRun, event, moduleLabel, instanceName).
func EventTimestampV1(id EngineID, ev EventID) Seed {
	return toSeed(hashWithDomain(DomainEventTimestampV1,
		strconv.FormatUint(uint64(ev.Run), 10),
		strconv.FormatUint(uint64(ev.SubRun), 10),
		strconv.FormatUint(uint64(ev.Event), 10),
		id.ModuleLabel,
		id.InstanceName,
	))
}
