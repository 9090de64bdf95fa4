package agent

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Check(t *testing.T) {
	r := DefaultRegistry()

	v := r.Check(RoleIngest, nil)
	assert.Equal(t, Verdict{Valid: true}, v, "roles without a contract are valid")

	v = r.Check("unknown", map[string]any{"x": 1.0})
	assert.True(t, v.Valid)
	assert.False(t, v.HasContract)

	v = r.Check(RoleCleaner, nil)
	assert.True(t, v.HasContract)
	assert.False(t, v.Valid)
	assert.NotEmpty(t, v.Errors)

	v = r.Check(RoleCleaner, map[string]any{"cleaned_output": "done"})
	assert.True(t, v.Valid)
}

func TestRegistry_RolesSorted(t *testing.T) {
	roles := DefaultRegistry().Roles()
	require.Len(t, roles, 10)
	assert.Equal(t, RoleAnalyzerA, roles[0])
	assert.NotContains(t, roles, RoleIngest)
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := DefaultRegistry()
	r.Register(Contract{Role: RoleCleaner, Fields: []Field{{Name: "summary", Type: FieldString}}})

	v := r.Check(RoleCleaner, map[string]any{"cleaned_output": "done"})
	assert.False(t, v.Valid)

	v = r.Check(RoleCleaner, map[string]any{"summary": "done"})
	assert.True(t, v.Valid)
	assert.Len(t, r.Roles(), 10)
}

func TestRegistry_CustomRole(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.Roles())

	r.Register(Contract{Role: "linter", Fields: stringArrays("findings")})
	c, ok := r.Lookup("linter")
	require.True(t, ok)
	assert.Equal(t, Role("linter"), c.Role)

	v := r.Check("linter", map[string]any{"findings": []any{"unused import"}})
	assert.True(t, v.Valid)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := DefaultRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Register(Contract{Role: "custom", Fields: stringArrays("items")})
			_ = r.Check(RolePlanner, map[string]any{})
			_ = r.Roles()
		}()
	}
	wg.Wait()
	_, ok := r.Lookup("custom")
	assert.True(t, ok)
}
