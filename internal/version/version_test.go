package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFullUsesCommit(t *testing.T) {
	prev := Commit
	t.Cleanup(func() { Commit = prev })

	Commit = "0123456789abcdef0123"
	require.Equal(t, Version()+" (commit 0123456789ab)", Full())
}

func TestSanitize(t *testing.T) {
	require.Equal(t, "rc-1meta", sanitize("rc.-1+meta!"))
	require.Equal(t, "beta2", sanitize("beta 2"))
}
