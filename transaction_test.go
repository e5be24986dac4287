package compiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func accountModel(t *testing.T) *Model {
	t.Helper()
	return &Model{
		Slug: "account",
		Fields: []Field{
			{Slug: "handle", Type: TypeString},
		},
	}
}

func TestTransactionSimpleRead(t *testing.T) {
	tx, err := NewTransaction([]Query{
		{"get": map[string]any{"account": map[string]any{
			"with": map[string]any{"handle": "elaine"},
		}}},
	}, &TransactionOptions{Models: []*Model{accountModel(t)}})
	require.NoError(t, err)

	require.Len(t, tx.Statements, 1)
	require.Equal(t,
		`SELECT "id", "ronin.createdAt", "ronin.createdBy", "ronin.updatedAt", "ronin.updatedBy", "handle" FROM "accounts" WHERE "handle" = ?1 LIMIT 1`,
		tx.Statements[0].Statement)
	require.Equal(t, []any{"elaine"}, tx.Statements[0].Params)
	require.True(t, tx.Statements[0].Returning)
}

func TestTransactionPreservesQueryOrder(t *testing.T) {
	tx, err := NewTransaction([]Query{
		{"get": map[string]any{"accounts": nil}},
		{"count": map[string]any{"accounts": nil}},
	}, &TransactionOptions{Models: []*Model{accountModel(t)}})
	require.NoError(t, err)

	require.Len(t, tx.Statements, 2)
	require.True(t, strings.HasPrefix(tx.Statements[0].Statement, `SELECT "id"`))
	require.True(t, strings.HasPrefix(tx.Statements[1].Statement, `SELECT (COUNT(*))`))
}

func TestCreateModel(t *testing.T) {
	tx, err := NewTransaction([]Query{
		{"create": map[string]any{"model": map[string]any{
			"slug": "account",
			"fields": map[string]any{
				"handle": map[string]any{"type": "string"},
			},
		}}},
	}, nil)
	require.NoError(t, err)

	require.Len(t, tx.Statements, 2)
	require.Equal(t,
		`CREATE TABLE "accounts" ("id" TEXT PRIMARY KEY DEFAULT ('acc_' || lower(substr(hex(randomblob(12)), 1, 16))), "ronin.createdAt" DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%f', 'now') || 'Z'), "ronin.createdBy" TEXT, "ronin.updatedAt" DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%f', 'now') || 'Z'), "ronin.updatedBy" TEXT, "handle" TEXT)`,
		tx.Statements[0].Statement)
	require.False(t, tx.Statements[0].Returning)

	insert := tx.Statements[1]
	require.Equal(t,
		`INSERT INTO "ronin_schema" ("fields", "idPrefix", "identifiers.name", "identifiers.slug", "indexes", "name", "pluralName", "pluralSlug", "presets", "slug", "table", "id", "ronin.createdAt", "ronin.updatedAt") VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11, 'mod_' || lower(substr(hex(randomblob(12)), 1, 16)), strftime('%Y-%m-%dT%H:%M:%f', 'now') || 'Z', strftime('%Y-%m-%dT%H:%M:%f', 'now') || 'Z') RETURNING "id", "ronin.createdAt", "ronin.createdBy", "ronin.updatedAt", "ronin.updatedBy", "name", "pluralName", "slug", "pluralSlug", "idPrefix", "table", "identifiers.name", "identifiers.slug", "fields", "indexes", "presets"`,
		insert.Statement)
	require.True(t, insert.Returning)

	require.Equal(t, "acc", insert.Params[1])
	require.Equal(t, "id", insert.Params[2])
	require.Equal(t, "id", insert.Params[3])
	require.Equal(t, "{}", insert.Params[4])
	require.Equal(t, "Account", insert.Params[5])
	require.Equal(t, "Accounts", insert.Params[6])
	require.Equal(t, "accounts", insert.Params[7])
	require.Equal(t, "account", insert.Params[9])
	require.Equal(t, "accounts", insert.Params[10])

	fields, ok := insert.Params[0].(string)
	require.True(t, ok)
	require.Contains(t, fields, `"handle":{"name":"Handle","type":"string"}`)
	require.Contains(t, fields, `"id":{"name":"ID","type":"string"`)

	// The transaction's model list picked the model up, with defaults
	// applied.
	created := tx.Models[len(tx.Models)-1]
	require.Equal(t, "account", created.Slug)
	require.Equal(t, "accounts", created.PluralSlug)
	require.Equal(t, "accounts", created.Table)
	require.Len(t, created.Fields, 6)
}

func TestCreateModelWithManyLink(t *testing.T) {
	tx, err := NewTransaction([]Query{
		{"create": map[string]any{"model": map[string]any{
			"slug": "account",
			"fields": map[string]any{
				"followers": map[string]any{
					"type": "link", "target": "account", "kind": "many",
				},
			},
		}}},
	}, nil)
	require.NoError(t, err)

	require.Len(t, tx.Statements, 3)

	require.NotContains(t, tx.Statements[0].Statement, "followers")
	require.True(t, strings.HasPrefix(tx.Statements[0].Statement, `CREATE TABLE "accounts"`))

	assoc := tx.Statements[1].Statement
	require.True(t, strings.HasPrefix(assoc, `CREATE TABLE "ronin_link_account_followers"`))
	require.Contains(t, assoc, `"source" TEXT REFERENCES "accounts"("id") ON DELETE CASCADE ON UPDATE CASCADE`)
	require.Contains(t, assoc, `"target" TEXT REFERENCES "accounts"("id") ON DELETE CASCADE ON UPDATE CASCADE`)

	require.True(t, strings.HasPrefix(tx.Statements[2].Statement, `INSERT INTO "ronin_schema"`))

	// No followers column materializes, and the hidden model joined
	// the list.
	account := tx.Models[0]
	for _, f := range account.Fields {
		if f.Slug == "followers" {
			require.Equal(t, KindMany, f.Kind)
		}
	}
	assocModel := tx.Models[1]
	require.Equal(t, "roninLinkAccountFollowers", assocModel.Slug)
	require.NotNil(t, assocModel.System)
	require.Equal(t, "followers", assocModel.System.AssociationSlug)
}

func TestCreateModelTwiceFails(t *testing.T) {
	_, err := NewTransaction([]Query{
		{"create": map[string]any{"model": map[string]any{"slug": "account"}}},
		{"create": map[string]any{"model": map[string]any{"slug": "account"}}},
	}, nil)
	require.True(t, HasErrorCode(err, ErrExistingModelEntity))
}

func TestDropModel(t *testing.T) {
	tx, err := NewTransaction([]Query{
		{"drop": map[string]any{"model": "account"}},
	}, &TransactionOptions{Models: []*Model{accountModel(t)}})
	require.NoError(t, err)

	require.Len(t, tx.Statements, 2)
	require.Equal(t, `DROP TABLE "accounts"`, tx.Statements[0].Statement)
	require.Equal(t,
		`DELETE FROM "ronin_schema" WHERE "slug" = ?1 RETURNING "id", "ronin.createdAt", "ronin.createdBy", "ronin.updatedAt", "ronin.updatedBy", "name", "pluralName", "slug", "pluralSlug", "idPrefix", "table", "identifiers.name", "identifiers.slug", "fields", "indexes", "presets"`,
		tx.Statements[1].Statement)
	require.Equal(t, []any{"account"}, tx.Statements[1].Params)
	require.Empty(t, tx.Models)
}

func TestDropMissingModelFails(t *testing.T) {
	_, err := NewTransaction([]Query{
		{"drop": map[string]any{"model": "ghost"}},
	}, nil)
	require.True(t, HasErrorCode(err, ErrModelNotFound))
}

func TestAlterModelSlug(t *testing.T) {
	tx, err := NewTransaction([]Query{
		{"alter": map[string]any{
			"model": "account",
			"to":    map[string]any{"slug": "user"},
		}},
	}, &TransactionOptions{Models: []*Model{accountModel(t)}})
	require.NoError(t, err)

	require.Equal(t, `ALTER TABLE "accounts" RENAME TO "users"`, tx.Statements[0].Statement)
	require.True(t, strings.HasPrefix(tx.Statements[1].Statement, `UPDATE "ronin_schema" SET`))
	require.Contains(t, tx.Statements[1].Statement, `WHERE "slug" = ?`)

	m := tx.Models[0]
	require.Equal(t, "user", m.Slug)
	require.Equal(t, "users", m.PluralSlug)
	require.Equal(t, "users", m.Table)
	require.Equal(t, "User", m.Name)
}

func TestAlterModelCreateField(t *testing.T) {
	tx, err := NewTransaction([]Query{
		{"alter": map[string]any{
			"model": "account",
			"create": map[string]any{
				"field": map[string]any{"slug": "email", "type": "string"},
			},
		}},
	}, &TransactionOptions{Models: []*Model{accountModel(t)}})
	require.NoError(t, err)

	require.Len(t, tx.Statements, 2)
	require.Equal(t, `ALTER TABLE "accounts" ADD COLUMN "email" TEXT`, tx.Statements[0].Statement)
	require.Equal(t,
		`UPDATE "ronin_schema" SET "fields" = json_insert("fields", '$.email', json('{"name":"Email","type":"string"}')), "ronin.updatedAt" = strftime('%Y-%m-%dT%H:%M:%f', 'now') || 'Z' WHERE "slug" = ?1 RETURNING "id", "ronin.createdAt", "ronin.createdBy", "ronin.updatedAt", "ronin.updatedBy", "name", "pluralName", "slug", "pluralSlug", "idPrefix", "table", "identifiers.name", "identifiers.slug", "fields", "indexes", "presets"`,
		tx.Statements[1].Statement)

	_, ok := tx.Models[0].Field("email")
	require.True(t, ok)
}

func TestAlterModelAlterField(t *testing.T) {
	tx, err := NewTransaction([]Query{
		{"alter": map[string]any{
			"model": "account",
			"alter": map[string]any{
				"field": "handle",
				"to":    map[string]any{"unique": true},
			},
		}},
	}, &TransactionOptions{Models: []*Model{accountModel(t)}})
	require.NoError(t, err)

	require.Len(t, tx.Statements, 1)
	require.Contains(t, tx.Statements[0].Statement,
		`"fields" = json_set("fields", '$.handle', json_patch(json_extract("fields", '$.handle'), '{"unique":true}'))`)

	f, _ := tx.Models[0].Field("handle")
	require.True(t, f.Unique)
}

func TestAlterModelRenameField(t *testing.T) {
	tx, err := NewTransaction([]Query{
		{"alter": map[string]any{
			"model": "account",
			"alter": map[string]any{
				"field": "handle",
				"to":    map[string]any{"slug": "nick"},
			},
		}},
	}, &TransactionOptions{Models: []*Model{accountModel(t)}})
	require.NoError(t, err)

	require.Equal(t, `ALTER TABLE "accounts" RENAME COLUMN "handle" TO "nick"`,
		tx.Statements[0].Statement)
	require.Contains(t, tx.Statements[1].Statement, `json_insert(json_remove("fields", '$.handle'), '$.nick'`)
}

func TestDropSystemFieldFails(t *testing.T) {
	_, err := NewTransaction([]Query{
		{"alter": map[string]any{
			"model": "account",
			"drop":  map[string]any{"field": "id"},
		}},
	}, &TransactionOptions{Models: []*Model{accountModel(t)}})
	require.True(t, HasErrorCode(err, ErrRequiredModelEntity))
}

func TestDropMissingFieldFails(t *testing.T) {
	_, err := NewTransaction([]Query{
		{"alter": map[string]any{
			"model": "account",
			"drop":  map[string]any{"field": "ghost"},
		}},
	}, &TransactionOptions{Models: []*Model{accountModel(t)}})
	require.True(t, HasErrorCode(err, ErrFieldNotFound))
}

func TestAlterModelCreateIndex(t *testing.T) {
	tx, err := NewTransaction([]Query{
		{"alter": map[string]any{
			"model": "account",
			"create": map[string]any{
				"index": map[string]any{
					"slug":   "byHandle",
					"unique": true,
					"fields": []any{map[string]any{"slug": "handle"}},
				},
			},
		}},
	}, &TransactionOptions{Models: []*Model{accountModel(t)}})
	require.NoError(t, err)

	require.Equal(t, `CREATE UNIQUE INDEX "by_handle" ON "accounts" ("handle")`,
		tx.Statements[0].Statement)
	require.Contains(t, tx.Statements[1].Statement, `"indexes" = json_insert("indexes", '$.byHandle'`)
}

func TestAlterModelDropIndex(t *testing.T) {
	account := accountModel(t)
	account.Indexes = []Index{{Slug: "byHandle", Fields: []IndexField{{Slug: "handle"}}}}

	tx, err := NewTransaction([]Query{
		{"alter": map[string]any{
			"model": "account",
			"drop":  map[string]any{"index": "byHandle"},
		}},
	}, &TransactionOptions{Models: []*Model{account}})
	require.NoError(t, err)

	require.Equal(t, `DROP INDEX "by_handle"`, tx.Statements[0].Statement)
	require.Contains(t, tx.Statements[1].Statement, `json_remove("indexes", '$.byHandle')`)
	require.Empty(t, tx.Models[0].Indexes)
}

func TestAlterMissingIndexFails(t *testing.T) {
	_, err := NewTransaction([]Query{
		{"alter": map[string]any{
			"model": "account",
			"drop":  map[string]any{"index": "ghost"},
		}},
	}, &TransactionOptions{Models: []*Model{accountModel(t)}})
	require.True(t, HasErrorCode(err, ErrIndexNotFound))
}

func TestAlterModelPresets(t *testing.T) {
	tx, err := NewTransaction([]Query{
		{"alter": map[string]any{
			"model": "account",
			"create": map[string]any{
				"preset": map[string]any{
					"slug": "active",
					"instructions": map[string]any{
						"with": map[string]any{"handle": map[string]any{"notBeing": nil}},
					},
				},
			},
		}},
	}, &TransactionOptions{Models: []*Model{accountModel(t)}})
	require.NoError(t, err)

	// Presets change no tables; only the schema row updates.
	require.Len(t, tx.Statements, 1)
	require.Contains(t, tx.Statements[0].Statement, `"presets" = json_insert("presets", '$.active'`)

	_, ok := tx.Models[0].Preset("active")
	require.True(t, ok)

	_, err = NewTransaction([]Query{
		{"alter": map[string]any{
			"model": "account",
			"drop":  map[string]any{"preset": "ghost"},
		}},
	}, &TransactionOptions{Models: []*Model{accountModel(t)}})
	require.True(t, HasErrorCode(err, ErrPresetNotFound))
}

func TestListModels(t *testing.T) {
	tx, err := NewTransaction([]Query{
		{"list": map[string]any{"models": nil}},
	}, nil)
	require.NoError(t, err)

	require.Len(t, tx.Statements, 1)
	require.Equal(t,
		`SELECT "id", "ronin.createdAt", "ronin.createdBy", "ronin.updatedAt", "ronin.updatedBy", "name", "pluralName", "slug", "pluralSlug", "idPrefix", "table", "identifiers.name", "identifiers.slug", "fields", "indexes", "presets" FROM "ronin_schema"`,
		tx.Statements[0].Statement)

	tx, err = NewTransaction([]Query{
		{"list": map[string]any{"model": "account"}},
	}, nil)
	require.NoError(t, err)
	require.Contains(t, tx.Statements[0].Statement, `WHERE "slug" = ?1 LIMIT 1`)
}

func TestRootModelDDL(t *testing.T) {
	tx, err := NewTransaction([]Query{
		{"create": map[string]any{"model": map[string]any{"slug": "roninModel"}}},
	}, nil)
	require.NoError(t, err)

	// Only the CREATE TABLE; no row describes the root model.
	require.Len(t, tx.Statements, 1)
	require.True(t, strings.HasPrefix(tx.Statements[0].Statement, `CREATE TABLE "ronin_schema"`))
	require.False(t, tx.Statements[0].Returning)
}

func TestDDLThenDMLInOneTransaction(t *testing.T) {
	tx, err := NewTransaction([]Query{
		{"create": map[string]any{"model": map[string]any{
			"slug": "account",
			"fields": map[string]any{
				"handle": map[string]any{"type": "string"},
			},
		}}},
		{"add": map[string]any{"account": map[string]any{
			"to": map[string]any{"handle": "elaine"},
		}}},
	}, nil)
	require.NoError(t, err)

	require.Len(t, tx.Statements, 3)
	require.True(t, strings.HasPrefix(tx.Statements[2].Statement, `INSERT INTO "accounts"`))
}

func TestExpandAllTransaction(t *testing.T) {
	team := &Model{Slug: "team"}
	tx, err := NewTransaction([]Query{
		{"get": map[string]any{"all": nil}},
	}, &TransactionOptions{Models: []*Model{accountModel(t), team}})
	require.NoError(t, err)

	require.Len(t, tx.Statements, 2)
	require.Contains(t, tx.Statements[0].Statement, `FROM "accounts"`)
	require.Contains(t, tx.Statements[1].Statement, `FROM "teams"`)
}

func TestAssociationRenameOnFieldRename(t *testing.T) {
	account := &Model{
		Slug: "account",
		Fields: []Field{
			{Slug: "followers", Type: TypeLink, Target: "account", Kind: KindMany},
		},
	}
	tx, err := NewTransaction([]Query{
		{"alter": map[string]any{
			"model": "account",
			"alter": map[string]any{
				"field": "followers",
				"to":    map[string]any{"slug": "fans"},
			},
		}},
	}, &TransactionOptions{Models: []*Model{account}})
	require.NoError(t, err)

	var renames []string
	for _, st := range tx.Statements {
		if strings.HasPrefix(st.Statement, "ALTER TABLE") {
			renames = append(renames, st.Statement)
		}
	}
	require.Contains(t, renames,
		`ALTER TABLE "ronin_link_account_followers" RENAME TO "ronin_link_account_fans"`)

	assoc, err2 := findAssoc(tx.Models, "roninLinkAccountFans")
	require.NoError(t, err2)
	require.Equal(t, "fans", assoc.System.AssociationSlug)
}

func findAssoc(models []*Model, slug string) (*Model, error) {
	for _, m := range models {
		if m.Slug == slug {
			return m, nil
		}
	}
	return nil, &Error{Code: ErrModelNotFound}
}

func TestAssociationDropOnFieldDrop(t *testing.T) {
	account := &Model{
		Slug: "account",
		Fields: []Field{
			{Slug: "followers", Type: TypeLink, Target: "account", Kind: KindMany},
		},
	}
	tx, err := NewTransaction([]Query{
		{"alter": map[string]any{
			"model": "account",
			"drop":  map[string]any{"field": "followers"},
		}},
	}, &TransactionOptions{Models: []*Model{account}})
	require.NoError(t, err)

	var dropped bool
	for _, st := range tx.Statements {
		if st.Statement == `DROP TABLE "ronin_link_account_followers"` {
			dropped = true
		}
	}
	require.True(t, dropped)
	require.Len(t, tx.Models, 1)
}
