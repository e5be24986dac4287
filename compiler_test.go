package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompileQueries(t *testing.T) {
	statements, err := CompileQueries([]Query{
		{"get": map[string]any{"accounts": nil}},
	}, &TransactionOptions{Models: []*Model{accountModel(t)}})
	require.NoError(t, err)
	require.Len(t, statements, 1)
}

func TestStatementCache(t *testing.T) {
	cache, err := NewCache()
	require.NoError(t, err)

	doc := Query{"get": map[string]any{"accounts": map[string]any{
		"with": map[string]any{"handle": "elaine"},
	}}}
	opts := func() *TransactionOptions {
		return &TransactionOptions{Models: []*Model{accountModel(t)}, Cache: cache}
	}

	first, err := NewTransaction([]Query{doc}, opts())
	require.NoError(t, err)
	second, err := NewTransaction([]Query{doc}, opts())
	require.NoError(t, err)

	require.Equal(t, first.Statements, second.Statements)

	// A schema change misses the cache instead of serving stale SQL.
	changed := accountModel(t)
	changed.Fields = append(changed.Fields, Field{Slug: "email", Type: TypeString})
	third, err := NewTransaction([]Query{doc}, &TransactionOptions{
		Models: []*Model{changed}, Cache: cache,
	})
	require.NoError(t, err)
	require.Contains(t, third.Statements[0].Statement, `"email"`)
}

func TestLoadModels(t *testing.T) {
	models, err := LoadModels([]byte(`
models:
  - slug: account
    fields:
      handle: {type: string, unique: true, required: true}
  - slug: team
    fields:
      locations: {type: json}
`))
	require.NoError(t, err)
	require.Len(t, models, 2)
	require.Equal(t, "accounts", models[0].PluralSlug)
	require.Equal(t, "handle", models[0].Identifiers.Name)

	f, ok := models[1].Field("locations")
	require.True(t, ok)
	require.Equal(t, TypeJSON, f.Type)

	// The loaded models compile directly.
	_, err = NewTransaction([]Query{
		{"get": map[string]any{"accounts": nil}},
	}, &TransactionOptions{Models: models})
	require.NoError(t, err)
}

func TestLoadModelsList(t *testing.T) {
	models, err := LoadModels([]byte(`[{"slug": "account"}]`))
	require.NoError(t, err)
	require.Len(t, models, 1)
}

func TestLoadModelsRejectsScalar(t *testing.T) {
	_, err := LoadModels([]byte(`42`))
	require.True(t, HasErrorCode(err, ErrInvalidModelValue))
}

func TestErrorShape(t *testing.T) {
	_, err := NewTransaction([]Query{
		{"get": map[string]any{"ghosts": nil}},
	}, nil)
	require.Error(t, err)

	var e *Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, ErrModelNotFound, e.Code)
	require.NotEmpty(t, e.Message)
}

func TestMutuallyExclusiveCursorError(t *testing.T) {
	_, err := NewTransaction([]Query{
		{"get": map[string]any{"accounts": map[string]any{
			"before": "a", "after": "b",
		}}},
	}, &TransactionOptions{Models: []*Model{accountModel(t)}})
	require.True(t, HasErrorCode(err, ErrMutuallyExclusiveInstructions))

	var e *Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, []string{"before", "after"}, e.Fields)
}
