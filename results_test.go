package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ronin-co/compiler/internal/cursor"
)

func row(values ...any) any { return values }

func TestFormatSingleRecord(t *testing.T) {
	tx, err := NewTransaction([]Query{
		{"get": map[string]any{"account": map[string]any{
			"with": map[string]any{"handle": "elaine"},
		}}},
	}, &TransactionOptions{Models: []*Model{accountModel(t)}})
	require.NoError(t, err)

	results, err := tx.FormatResults([][]any{
		{row("acc_1", "2024-03-01T12:00:00.000Z", nil, "2024-03-01T12:00:00.000Z", nil, "elaine")},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	result := results[0]
	require.True(t, result.HasRecord)
	require.Equal(t, "acc_1", result.Record["id"])
	require.Equal(t, "elaine", result.Record["handle"])

	ronin, ok := result.Record["ronin"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "2024-03-01T12:00:00.000Z", ronin["createdAt"])

	require.Equal(t, "string", result.ModelFields["handle"])
	require.Equal(t, "date", result.ModelFields["ronin.createdAt"])
}

func TestFormatMissingSingleRecord(t *testing.T) {
	tx, err := NewTransaction([]Query{
		{"get": map[string]any{"account": nil}},
	}, &TransactionOptions{Models: []*Model{accountModel(t)}})
	require.NoError(t, err)

	results, err := tx.FormatResults([][]any{{}})
	require.NoError(t, err)
	require.True(t, results[0].HasRecord)
	require.Nil(t, results[0].Record)
}

func TestFormatCount(t *testing.T) {
	tx, err := NewTransaction([]Query{
		{"count": map[string]any{"accounts": nil}},
	}, &TransactionOptions{Models: []*Model{accountModel(t)}})
	require.NoError(t, err)

	results, err := tx.FormatResults([][]any{{row(int64(7))}})
	require.NoError(t, err)
	require.NotNil(t, results[0].Amount)
	require.Equal(t, int64(7), *results[0].Amount)
}

func TestFormatDeserializesValues(t *testing.T) {
	team := &Model{
		Slug: "team",
		Fields: []Field{
			{Slug: "locations", Type: TypeJSON},
			{Slug: "active", Type: TypeBoolean},
		},
	}
	tx, err := NewTransaction([]Query{
		{"get": map[string]any{"team": nil}},
	}, &TransactionOptions{Models: []*Model{team}})
	require.NoError(t, err)

	results, err := tx.FormatResults([][]any{
		{row("tea_1", nil, nil, nil, nil, `{"europe":"berlin"}`, int64(1))},
	})
	require.NoError(t, err)

	record := results[0].Record
	require.Equal(t, map[string]any{"europe": "berlin"}, record["locations"])
	require.Equal(t, true, record["active"])
}

func TestFormatObjectRows(t *testing.T) {
	tx, err := NewTransaction([]Query{
		{"get": map[string]any{"account": nil}},
	}, &TransactionOptions{Models: []*Model{accountModel(t)}})
	require.NoError(t, err)

	results, err := tx.FormatResults([][]any{
		{map[string]any{
			"id":              "acc_1",
			"ronin.createdAt": "2024-03-01T12:00:00.000Z",
			"handle":          "elaine",
		}},
	})
	require.NoError(t, err)
	require.Equal(t, "acc_1", results[0].Record["id"])
	require.Equal(t, "elaine", results[0].Record["handle"])
}

func multiJoinTransaction(t *testing.T) *Transaction {
	team := &Model{
		Slug: "team",
		Fields: []Field{
			{Slug: "name", Type: TypeString},
		},
	}
	member := &Model{
		Slug: "member",
		Fields: []Field{
			{Slug: "team", Type: TypeLink, Target: "team"},
		},
	}
	tx, err := NewTransaction([]Query{
		{"get": map[string]any{"team": map[string]any{
			"including": map[string]any{
				"members": map[string]any{"__RONIN_QUERY": map[string]any{
					"get": map[string]any{"members": map[string]any{
						"with": map[string]any{"team": map[string]any{
							"__RONIN_EXPRESSION": "__RONIN_FIELD_PARENT_id",
						}},
					}},
				}},
			},
		}}},
	}, &TransactionOptions{Models: []*Model{team, member}})
	require.NoError(t, err)
	return tx
}

func TestFormatMergesJoinRows(t *testing.T) {
	tx := multiJoinTransaction(t)

	// Two flat rows repeat the same parent with different joined
	// members: 6 parent columns, then 6 joined member columns.
	results, err := tx.FormatResults([][]any{{
		row("tea_1", "t0", nil, "t0", nil, "ops", "mem_1", "m0", nil, "m0", nil, "tea_1"),
		row("tea_1", "t0", nil, "t0", nil, "ops", "mem_2", "m1", nil, "m1", nil, "tea_1"),
	}})
	require.NoError(t, err)

	record := results[0].Record
	require.Equal(t, "tea_1", record["id"])

	members, ok := record["members"].([]any)
	require.True(t, ok)
	require.Len(t, members, 2)
	require.Equal(t, "mem_1", members[0].(map[string]any)["id"])
	require.Equal(t, "mem_2", members[1].(map[string]any)["id"])
}

func TestFormatEmptyJoinMountsEmptyList(t *testing.T) {
	tx := multiJoinTransaction(t)

	results, err := tx.FormatResults([][]any{{
		row("tea_1", "t0", nil, "t0", nil, "ops", nil, nil, nil, nil, nil, nil),
	}})
	require.NoError(t, err)

	members, ok := results[0].Record["members"].([]any)
	require.True(t, ok)
	require.Empty(t, members)
}

func TestFormatPagination(t *testing.T) {
	tx, err := NewTransaction([]Query{
		{"get": map[string]any{"accounts": map[string]any{
			"orderedBy": map[string]any{"ascending": []any{"handle"}},
			"limitedTo": float64(2),
		}}},
	}, &TransactionOptions{Models: []*Model{accountModel(t)}})
	require.NoError(t, err)

	// Three rows arrive for a page size of two: the lookahead row is
	// trimmed and a cursor to the page boundary produced.
	results, err := tx.FormatResults([][]any{{
		row("acc_1", "t1", nil, "t1", nil, "ava"),
		row("acc_2", "t2", nil, "t2", nil, "ben"),
		row("acc_3", "t3", nil, "t3", nil, "cleo"),
	}})
	require.NoError(t, err)

	result := results[0]
	require.Len(t, result.Records, 2)
	require.Empty(t, result.MoreBefore)
	require.NotEmpty(t, result.MoreAfter)

	values, err := cursor.Decode(result.MoreAfter)
	require.NoError(t, err)
	require.Equal(t, []any{"ben", "t2", "acc_2"}, values)
}

func TestFormatPaginationSecondPage(t *testing.T) {
	after := cursor.Encode([]any{"ben", "t2", "acc_2"})
	tx, err := NewTransaction([]Query{
		{"get": map[string]any{"accounts": map[string]any{
			"orderedBy": map[string]any{"ascending": []any{"handle"}},
			"limitedTo": float64(2),
			"after":     after,
		}}},
	}, &TransactionOptions{Models: []*Model{accountModel(t)}})
	require.NoError(t, err)

	results, err := tx.FormatResults([][]any{{
		row("acc_3", "t3", nil, "t3", nil, "cleo"),
		row("acc_4", "t4", nil, "t4", nil, "dan"),
	}})
	require.NoError(t, err)

	result := results[0]
	require.Len(t, result.Records, 2)
	// The provided cursor proves a previous page exists.
	require.NotEmpty(t, result.MoreBefore)
	require.Empty(t, result.MoreAfter)

	values, err := cursor.Decode(result.MoreBefore)
	require.NoError(t, err)
	require.Equal(t, []any{"cleo", "t3", "acc_3"}, values)
}

func TestFormatStripsExcludedFields(t *testing.T) {
	tx, err := NewTransaction([]Query{
		{"get": map[string]any{"account": map[string]any{
			"selecting": []any{"handle"},
		}}},
	}, &TransactionOptions{Models: []*Model{accountModel(t)}})
	require.NoError(t, err)

	results, err := tx.FormatResults([][]any{{row("acc_1", "elaine")}})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"handle": "elaine"}, results[0].Record)
}

func TestFormatExpandAll(t *testing.T) {
	team := &Model{Slug: "team"}
	tx, err := NewTransaction([]Query{
		{"get": map[string]any{"all": nil}},
	}, &TransactionOptions{Models: []*Model{accountModel(t), team}})
	require.NoError(t, err)

	results, err := tx.FormatResults([][]any{
		{row("acc_1", nil, nil, nil, nil, "elaine")},
		{row("tea_1", nil, nil, nil, nil)},
	})
	require.NoError(t, err)

	require.Len(t, results, 1)
	require.Contains(t, results[0].Models, "accounts")
	require.Contains(t, results[0].Models, "teams")
	require.Len(t, results[0].Models["accounts"].Records, 1)
}

func TestFormatSkipsNonReturningStatements(t *testing.T) {
	tx, err := NewTransaction([]Query{
		{"create": map[string]any{"model": map[string]any{"slug": "account"}}},
	}, nil)
	require.NoError(t, err)
	require.Len(t, tx.Statements, 2)

	// The CREATE TABLE slot carries no rows; the insert returns one.
	results, err := tx.FormatResults([][]any{
		nil,
		{row("mod_1", "t0", nil, "t0", nil, "Account", "Accounts", "account", "accounts", "acc", "accounts", "id", "id", "{}", "{}", "{}")},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "account", results[0].Record["slug"])
}

func TestFormatResultsIdempotent(t *testing.T) {
	tx := multiJoinTransaction(t)
	rows := [][]any{{
		row("tea_1", "t0", nil, "t0", nil, "ops", "mem_1", "m0", nil, "m0", nil, "tea_1"),
	}}

	first, err := tx.FormatResults(rows)
	require.NoError(t, err)
	second, err := tx.FormatResults(rows)
	require.NoError(t, err)
	require.Equal(t, first, second)
}
