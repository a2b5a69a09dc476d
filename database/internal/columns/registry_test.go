package columns

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Timestamps struct {
	CreatedAt time.Time  `db:"created_at,omitempty"`
	DeletedAt *time.Time `db:"deleted_at"`
}

type RegistryUser struct {
	ID    int64  `db:"id,pk"`
	Name  string `db:"name"`
	Email string `db:"email"`
	Notes string `db:"-"`
	Rank  int    `db:"rank,readonly"`
	Timestamps
	internal string //nolint:unused // verifies unexported fields are skipped
}

func TestRegistryParsesTaggedFields(t *testing.T) {
	r := &Registry{}

	m, err := r.Get(&RegistryUser{})
	require.NoError(t, err)

	assert.Equal(t, "RegistryUser", m.TypeName)
	assert.Equal(t, []string{"id", "name", "email", "rank", "created_at", "deleted_at"}, m.Names())

	pk := m.PrimaryKey()
	require.NotNil(t, pk)
	assert.Equal(t, "ID", pk.FieldName)

	col, ok := m.Column("DELETED_AT")
	require.True(t, ok)
	assert.Equal(t, []int{5, 1}, col.Index)

	_, ok = m.Field("Notes")
	assert.False(t, ok)
}

func TestRegistryCachesByType(t *testing.T) {
	r := &Registry{}

	first, err := r.Get(RegistryUser{})
	require.NoError(t, err)
	second, err := r.Get(reflect.TypeOf(&RegistryUser{}))
	require.NoError(t, err)
	assert.Same(t, first, second)

	r.Clear()
	third, err := r.Get(&RegistryUser{})
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := &Registry{}
	var wg sync.WaitGroup
	results := make([]*Metadata, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := r.Get(&RegistryUser{})
			assert.NoError(t, err)
			results[i] = m
		}(i)
	}
	wg.Wait()
	for _, m := range results[1:] {
		assert.Same(t, results[0], m)
	}
}

func TestRegistryRejectsInvalidTypes(t *testing.T) {
	r := &Registry{}

	_, err := r.Get(42)
	assert.Error(t, err)

	type untagged struct{ A int }
	_, err = r.Get(untagged{})
	assert.ErrorContains(t, err, "no fields with `db` tags")

	type injected struct {
		A int `db:"a; DROP TABLE users"`
	}
	_, err = r.Get(injected{})
	assert.ErrorContains(t, err, "invalid db tag")

	type quoted struct {
		A int `db:"\"a\""`
	}
	_, err = r.Get(quoted{})
	assert.ErrorContains(t, err, "contains quotes")

	type twoKeys struct {
		A int `db:"a,pk"`
		B int `db:"b,pk"`
	}
	_, err = r.Get(twoKeys{})
	assert.ErrorContains(t, err, "more than one pk")

	type dup struct {
		A int `db:"a"`
		B int `db:"A"`
	}
	_, err = r.Get(dup{})
	assert.ErrorContains(t, err, "duplicate column")

	type badOpt struct {
		A int `db:"a,autoinc"`
	}
	_, err = r.Get(badOpt{})
	assert.ErrorContains(t, err, "unknown db tag option")
}

func TestMetadataValues(t *testing.T) {
	m, err := Lookup(&RegistryUser{})
	require.NoError(t, err)

	u := &RegistryUser{ID: 9, Name: "ann", Email: "a@example.com", Rank: 3}

	values, err := m.Values(u, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"name":       "ann",
		"email":      "a@example.com",
		"deleted_at": (*time.Time)(nil),
	}, values)

	values, err = m.Values(*u, true)
	require.NoError(t, err)
	assert.Equal(t, int64(9), values["id"])
	assert.Equal(t, []string{"deleted_at", "email", "id", "name"}, SortedKeys(values))

	_, err = m.Values((*RegistryUser)(nil), false)
	assert.Error(t, err)
	_, err = m.Values(struct{}{}, false)
	assert.Error(t, err)
	_, err = m.Values(nil, false)
	assert.Error(t, err)
}
