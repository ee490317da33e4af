package id

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateWithPrefix(t *testing.T) {
	gen := NewGenerator()

	for _, prefix := range []string{BuildPrefix, RequestPrefix} {
		s := gen.GenerateWithPrefix(prefix)
		assert.True(t, strings.HasPrefix(s, prefix+"_"), s)
		assert.True(t, IsPrefixed(s, prefix), s)
	}
}

func TestBuildIDsSortByCreation(t *testing.T) {
	first := NewBuildID()
	second := NewBuildID()
	assert.Less(t, first.String(), second.String())
}

func TestValidBuildID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"generated", NewBuildID().String(), true},
		{"missing prefix", Default().Generate().String(), false},
		{"wrong prefix", "req_" + Default().Generate().String(), false},
		{"traversal", "bld_../../etc", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidBuildID(tt.input))
		})
	}
}

func TestSessionIDs(t *testing.T) {
	a, b := NewSessionID(), NewSessionID()
	assert.NotEqual(t, a, b)
	assert.True(t, ValidSessionID(a.String()))
	assert.False(t, ValidSessionID("not-a-session"))
}

func TestTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Second)
	ts, err := Timestamp(NewBuildID().String())
	require.NoError(t, err)
	assert.True(t, ts.After(before))

	_, err = Timestamp("bld_garbage")
	assert.Error(t, err)
}

func TestConcurrentGeneration(t *testing.T) {
	const n = 200
	var (
		mu   sync.Mutex
		seen = make(map[BuildID]struct{}, n)
		wg   sync.WaitGroup
	)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b := NewBuildID()
			mu.Lock()
			seen[b] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
}
