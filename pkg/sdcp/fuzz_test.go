// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sdcp

import (
	"encoding/json"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

var fuzzTopics = []string{
	"sdcp/status/update",
	"sdcp/status/mb1",
	"sdcp/response/mb1",
	"sdcp/attributes/mb1",
	"sdcp/notice/mb1",
	"",
}

var fuzzKeys = []string{
	"CurrentStatus", "PrintInfo", "TempOfUVLED", "TempOfBox", "UVOn", "UVLEDStatus",
	"Status", "CurrentLayer", "TotalLayer", "Cmd", "Result", "ErrorCode", "Data", "Ack",
}

// randomValue builds a random JSON-compatible value, nesting up to depth levels
func randomValue(rng *rand.Rand, depth int) any {
	switch rng.Intn(7) {
	case 0:
		return rng.Intn(200) - 50
	case 1:
		return rng.Float64() * 100
	case 2:
		return rng.Intn(2) == 1
	case 3:
		return "x" + strconv.Itoa(rng.Intn(100))
	case 4:
		return nil
	case 5:
		if depth <= 0 {
			return []any{}
		}
		list := make([]any, rng.Intn(3))
		for i := range list {
			list[i] = randomValue(rng, depth-1)
		}
		return list
	default:
		if depth <= 0 {
			return map[string]any{}
		}
		obj := make(map[string]any)
		for i := 0; i < rng.Intn(5); i++ {
			obj[fuzzKeys[rng.Intn(len(fuzzKeys))]] = randomValue(rng, depth-1)
		}
		return obj
	}
}

// ============================================================
// Decoder Fuzz Tests
// ============================================================

func TestFuzzDecodeStructured(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		msg := map[string]any{"Topic": fuzzTopics[rng.Intn(len(fuzzTopics))]}
		for _, key := range []string{"Status", "Data", "Attributes"} {
			if rng.Intn(2) == 1 {
				msg[key] = randomValue(rng, 3)
			}
		}
		raw, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("round %d: marshal: %v", i, err)
		}

		f := Decode(raw)
		checkFrameInvariants(t, i, f)
	}
}

func TestFuzzDecodeRandomBytes(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		raw := make([]byte, rng.Intn(128))
		rng.Read(raw)
		f := Decode(raw)
		checkFrameInvariants(t, i, f)
	}
}

func checkFrameInvariants(t *testing.T, round int, f Frame) {
	t.Helper()
	switch f.Kind {
	case KindStatus:
		if f.Status == nil {
			t.Fatalf("round %d: status frame without Status", round)
		}
	case KindAttributes:
		if f.Attributes == nil {
			t.Fatalf("round %d: attributes frame without Attributes", round)
		}
	case KindResult:
		if f.Result == nil {
			t.Fatalf("round %d: result frame without Result", round)
		}
	case KindMalformed:
		if f.Err == nil {
			t.Fatalf("round %d: malformed frame without Err", round)
		}
	}
	// Formatting must be total over every decoded frame
	_ = FormatFrame(f)
}
