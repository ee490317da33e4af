package utils

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasherAlgorithms(t *testing.T) {
	data := []byte("hello")

	sha := NewHasher(SHA256).Hash(data)
	b3 := NewHasher(BLAKE3).Hash(data)

	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", sha)
	assert.Len(t, b3, 64)
	assert.NotEqual(t, sha, b3)
}

func TestCacheKeyIsOrderSensitive(t *testing.T) {
	assert.Equal(t, CacheKey("react", "18.2.0"), CacheKey("react", "18.2.0"))
	assert.NotEqual(t, CacheKey("react", "18.2.0"), CacheKey("18.2.0", "react"))
}

func TestIntegrity(t *testing.T) {
	data := []byte("console.log(1)")
	digest := Integrity(data)

	assert.True(t, strings.HasPrefix(digest, IntegrityPrefix))

	streamed, err := IntegrityReader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, digest, streamed)
	assert.NotEqual(t, digest, Integrity([]byte("console.log(2)")))
}

func TestParseNamespace(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Namespace
		wantErr bool
	}{
		{"app", "app:a1", Namespace{AppID: "a1"}, false},
		{"room", "app:a1:room:lobby-2", Namespace{AppID: "a1", RoomCode: "lobby-2"}, false},
		{"uppercase room", "app:a1:room:Lobby", Namespace{}, true},
		{"no prefix", "a1", Namespace{}, true},
		{"empty", "", Namespace{}, true},
		{"bad app", "app:a/1", Namespace{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseNamespace(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoomNamespaceLowercases(t *testing.T) {
	assert.Equal(t, "app:a1:room:lobby", RoomNamespace("a1", "LOBBY"))
}

func TestValidatePinAndKey(t *testing.T) {
	assert.NoError(t, ValidatePin("1234"))
	assert.NoError(t, ValidatePin("12345678"))
	assert.Error(t, ValidatePin("123"))
	assert.Error(t, ValidatePin("12a4"))

	assert.NoError(t, ValidateKey("k"))
	assert.Error(t, ValidateKey(""))
	assert.Error(t, ValidateKey(strings.Repeat("k", MaxKeyLength+1)))
}
