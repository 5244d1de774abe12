package id

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUnique(t *testing.T) {
	gen := NewGenerator()
	assert.NotEqual(t, gen.Generate().String(), gen.Generate().String())
}

func TestPrefixedIDs(t *testing.T) {
	bc := NewBroadcastID()
	req := NewRequestID()

	assert.True(t, strings.HasPrefix(bc.String(), "bc_"), bc)
	assert.True(t, strings.HasPrefix(req.String(), "req_"), req)
	assert.Len(t, strings.TrimPrefix(bc.String(), "bc_"), 26)
}

func TestTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Second)
	bc := NewBroadcastID()

	ts, err := Timestamp(bc.String())
	require.NoError(t, err)
	assert.True(t, ts.After(before))

	_, err = Timestamp("bc_not-a-ulid")
	assert.Error(t, err)
}

func TestDeterministicEntropy(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, 64)
	a := NewGeneratorWithEntropy(bytes.NewReader(seed)).Generate()
	b := NewGeneratorWithEntropy(bytes.NewReader(seed)).Generate()

	// Same entropy, so only the timestamp half may differ.
	assert.Equal(t, a.Entropy(), b.Entropy())
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()
	var mu sync.Mutex
	seen := make(map[string]struct{})
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s := gen.GenerateWithPrefix(BroadcastPrefix)
				mu.Lock()
				seen[s] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 800)
}
