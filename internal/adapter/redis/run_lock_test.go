package redis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLockKeyIsStablePerForum(t *testing.T) {
	a := lockKey("https://bbs.boniu123.cc")
	require.True(t, strings.HasPrefix(a, runLockPrefix))
	require.Equal(t, a, lockKey("https://bbs.boniu123.cc"))
	require.NotEqual(t, a, lockKey("https://other.example.com"))
}

func TestTokensAreUnique(t *testing.T) {
	a, err := newToken()
	require.NoError(t, err)
	b, err := newToken()
	require.NoError(t, err)
	require.Len(t, a, 32)
	require.NotEqual(t, a, b)
}
