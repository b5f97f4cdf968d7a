package tools

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func EnsureSetup(t *testing.T, errored bool) {
	require.True(t, errored, "Error during test setup")
}
