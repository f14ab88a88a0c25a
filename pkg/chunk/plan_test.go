package chunk_test

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero5yt/StreamixBot2.0/pkg/chunk"
)

const mib = 1048576

func TestNewPlan(t *testing.T) {
	tc := []struct {
		name       string
		start, end int64
		expected   chunk.Plan
	}{
		{
			name:     "first whole chunk",
			start:    0,
			end:      1048575,
			expected: chunk.Plan{AlignedOffset: 0, FirstTrim: 0, LastTrim: mib, Count: 1, ChunkSize: mib},
		},
		{
			name:     "second whole chunk",
			start:    1048576,
			end:      2097151,
			expected: chunk.Plan{AlignedOffset: mib, FirstTrim: 0, LastTrim: mib, Count: 1, ChunkSize: mib},
		},
		{
			name:     "range across one boundary",
			start:    500000,
			end:      1500000,
			expected: chunk.Plan{AlignedOffset: 0, FirstTrim: 500000, LastTrim: 451425, Count: 2, ChunkSize: mib},
		},
		{
			name:     "short range straddling a boundary",
			start:    1000000,
			end:      1100000,
			expected: chunk.Plan{AlignedOffset: 0, FirstTrim: 1000000, LastTrim: 51425, Count: 2, ChunkSize: mib},
		},
		{
			name:     "single byte",
			start:    42,
			end:      42,
			expected: chunk.Plan{AlignedOffset: 0, FirstTrim: 42, LastTrim: 43, Count: 1, ChunkSize: mib},
		},
		{
			name:     "three chunks",
			start:    1000000,
			end:      2999999,
			expected: chunk.Plan{AlignedOffset: 0, FirstTrim: 1000000, LastTrim: 902848, Count: 3, ChunkSize: mib},
		},
	}

	for _, tc := range tc {
		t.Run(tc.name, func(t *testing.T) {
			plan := chunk.NewPlan(tc.start, tc.end, mib)
			assert.Equal(t, tc.expected, plan)
			assert.Equal(t, tc.end-tc.start+1, plan.Length())
		})
	}
}

func TestPlanOffset(t *testing.T) {
	plan := chunk.NewPlan(1500000, 5000000, mib)
	assert.Equal(t, int64(mib), plan.Offset(1))
	assert.Equal(t, int64(2*mib), plan.Offset(2))
	assert.Equal(t, int64(4*mib), plan.Offset(4))
}

func TestTrimShortChunk(t *testing.T) {
	plan := chunk.NewPlan(10, 90, 100)
	assert.Equal(t, []byte{}, plan.Trim(1, make([]byte, 5)))

	plan = chunk.NewPlan(10, 250, 100)
	assert.Len(t, plan.Trim(3, make([]byte, 20)), 20)
}

// reassemble applies the plan against src as if every fetch returned a full
// chunk (or whatever remains of src).
func reassemble(src []byte, plan chunk.Plan) []byte {
	var out []byte
	for part := 1; part <= plan.Count; part++ {
		off := plan.Offset(part)
		if off >= int64(len(src)) {
			break
		}
		end := off + plan.ChunkSize
		if end > int64(len(src)) {
			end = int64(len(src))
		}
		out = append(out, plan.Trim(part, src[off:end])...)
	}
	return out
}

func TestPlanReassemblesExactRange(t *testing.T) {
	rnd := rand.New(rand.NewSource(99))
	src := make([]byte, 10000)
	_, err := rnd.Read(src)
	require.NoError(t, err)

	for _, chunkSize := range []int64{1, 7, 64, 100, 999, 4096, 20000} {
		for i := 0; i < 200; i++ {
			start := rnd.Int63n(int64(len(src)))
			end := start + rnd.Int63n(int64(len(src))-start)
			plan := chunk.NewPlan(start, end, chunkSize)
			got := reassemble(src, plan)
			if !assert.True(t, bytes.Equal(src[start:end+1], got), "chunkSize=%d range=%d-%d", chunkSize, start, end) {
				return
			}
			assert.Equal(t, end-start+1, int64(len(got)))
		}
	}
}
