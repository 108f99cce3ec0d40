package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Stats(t *testing.T) {
	s, _, _ := setupTestStore(t)
	ctx := context.Background()

	assert.Equal(t, Stats{}, s.Stats())

	_, _ = s.Remember(ctx, "hola")              // 0.5
	_, _ = s.Remember(ctx, "un error")          // 0.6
	_, _ = s.Remember(ctx, postgresFact)        // 0.7
	_, _ = s.Remember(ctx, "bug en el cliente") // 0.7
	require.NoError(t, s.RememberShortTerm("orquestador", "k", "v"))
	require.NoError(t, s.SetWorking("a", 1))
	require.NoError(t, s.SetWorking("b", 2))

	st := s.Stats()
	assert.Equal(t, 1, st.ShortTermAgents)
	assert.Equal(t, 4, st.LongTermFacts)
	assert.Equal(t, 2, st.WorkingContextKeys)
	assert.Equal(t, 0.63, st.AvgImportance)
}
