package uuid

import (
	"testing"

	guuid "github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNewIDIsV7(t *testing.T) {
	t.Parallel()

	g := NewUUIDGenerator()
	s, err := g.NewID()
	require.NoError(t, err)

	parsed, err := guuid.Parse(s)
	require.NoError(t, err)
	require.Equal(t, guuid.Version(7), parsed.Version())
}

func TestNewIDsAreOrdered(t *testing.T) {
	t.Parallel()

	g := NewUUIDGenerator()
	a, err := g.NewID()
	require.NoError(t, err)
	b, err := g.NewID()
	require.NoError(t, err)
	require.LessOrEqual(t, a, b)
}
