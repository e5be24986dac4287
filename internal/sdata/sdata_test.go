package sdata

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ronin-co/compiler/internal/rerr"
)

func TestNormalizeDerivesAttributes(t *testing.T) {
	m := &Model{
		Slug: "account",
		Fields: []Field{
			{Slug: "handle", Type: TypeString},
		},
	}
	require.NoError(t, Normalize(m))

	require.Equal(t, "accounts", m.PluralSlug)
	require.Equal(t, "Account", m.Name)
	require.Equal(t, "Accounts", m.PluralName)
	require.Equal(t, "acc", m.IDPrefix)
	require.Equal(t, "accounts", m.Table)
	require.Equal(t, "id", m.Identifiers.Name)
	require.Equal(t, "id", m.Identifiers.Slug)

	// The five system fields head the field list in stable order.
	require.GreaterOrEqual(t, len(m.Fields), 6)
	slugs := []string{
		m.Fields[0].Slug, m.Fields[1].Slug, m.Fields[2].Slug,
		m.Fields[3].Slug, m.Fields[4].Slug,
	}
	require.Equal(t, []string{
		"id", "ronin.createdAt", "ronin.createdBy", "ronin.updatedAt", "ronin.updatedBy",
	}, slugs)
	require.Equal(t, "handle", m.Fields[5].Slug)
}

func TestNormalizeIdentifierFromUniqueRequiredString(t *testing.T) {
	m := &Model{
		Slug: "account",
		Fields: []Field{
			{Slug: "handle", Type: TypeString, Unique: true, Required: true},
		},
	}
	require.NoError(t, Normalize(m))
	require.Equal(t, "handle", m.Identifiers.Name)
}

func TestNormalizeCamelCaseSlug(t *testing.T) {
	m := &Model{Slug: "blogPost"}
	require.NoError(t, Normalize(m))
	require.Equal(t, "blogPosts", m.PluralSlug)
	require.Equal(t, "blog_posts", m.Table)
	require.Equal(t, "Blog post", m.Name)
}

func TestNormalizeRejectsMissingSlug(t *testing.T) {
	err := Normalize(&Model{})
	require.Error(t, err)
	require.True(t, rerr.HasCode(err, rerr.InvalidModelValue))
}

func TestNormalizeRejectsScalarJSONDefault(t *testing.T) {
	m := &Model{
		Slug: "team",
		Fields: []Field{
			{Slug: "settings", Type: TypeJSON, DefaultValue: "oops"},
		},
	}
	err := Normalize(m)
	require.True(t, rerr.HasCode(err, rerr.InvalidModelValue))
}

func TestSystemFieldDefaults(t *testing.T) {
	fields := SystemFields("acc")
	require.Equal(t,
		Expr{Expression: `'acc_' || lower(substr(hex(randomblob(12)), 1, 16))`},
		fields[0].DefaultValue)
	require.Equal(t,
		Expr{Expression: `strftime('%Y-%m-%dT%H:%M:%f', 'now') || 'Z'`},
		fields[1].DefaultValue)
}

func TestRootModel(t *testing.T) {
	m := RootModel()
	require.Equal(t, "roninModel", m.Slug)
	require.Equal(t, "ronin_schema", m.Table)
	require.Equal(t, "mod", m.IDPrefix)
	require.NotNil(t, m.System)
	require.Equal(t, "root", m.System.Model)

	f, ok := m.Field("fields")
	require.True(t, ok)
	require.Equal(t, TypeJSON, f.Type)
}

func TestAssociationModel(t *testing.T) {
	owner := &Model{
		Slug: "account",
		Fields: []Field{
			{Slug: "followers", Type: TypeLink, Target: "account", Kind: KindMany},
		},
	}
	require.NoError(t, Normalize(owner))

	assocs := AssociationModels(owner)
	require.Len(t, assocs, 1)

	assoc := assocs[0]
	require.Equal(t, "roninLinkAccountFollowers", assoc.Slug)
	require.Equal(t, "ronin_link_account_followers", assoc.Table)
	require.Equal(t, owner.ID, assoc.System.Model)
	require.Equal(t, "followers", assoc.System.AssociationSlug)

	source, ok := assoc.Field("source")
	require.True(t, ok)
	require.Equal(t, "account", source.Target)
	require.Equal(t, "CASCADE", source.Actions.OnDelete)
	require.Equal(t, "CASCADE", source.Actions.OnUpdate)

	target, ok := assoc.Field("target")
	require.True(t, ok)
	require.Equal(t, "account", target.Target)
}

func TestModelBySlug(t *testing.T) {
	models := []*Model{{Slug: "account", PluralSlug: "accounts"}}

	m, err := ModelBySlug(models, "account")
	require.NoError(t, err)
	require.Equal(t, "account", m.Slug)

	m, err = ModelBySlug(models, "accounts")
	require.NoError(t, err)
	require.Equal(t, "account", m.Slug)

	_, err = ModelBySlug(models, "missing")
	require.True(t, rerr.HasCode(err, rerr.ModelNotFound))
}

func TestResolveField(t *testing.T) {
	m := &Model{
		Slug: "team",
		Fields: []Field{
			{Slug: "locations", Type: TypeJSON},
		},
	}
	require.NoError(t, Normalize(m))

	resolved, err := ResolveField(m, "ronin.createdAt", "orderedBy", false)
	require.NoError(t, err)
	require.Equal(t, `"ronin.createdAt"`, resolved.Selector)

	resolved, err = ResolveField(m, "locations.europe", "with", false)
	require.NoError(t, err)
	require.Equal(t, `json_extract(locations, '$.europe')`, resolved.Selector)
	require.Equal(t, "europe", resolved.JSONPath)

	resolved, err = ResolveField(m, "locations.europe", "to", true)
	require.NoError(t, err)
	require.Equal(t, `"locations"`, resolved.Selector)

	_, err = ResolveField(m, "missing", "with", false)
	require.True(t, rerr.HasCode(err, rerr.FieldNotFound))
}

func TestResolveFieldWithAlias(t *testing.T) {
	m := &Model{Slug: "team"}
	require.NoError(t, Normalize(m))
	m.TableAlias = "including_team"

	resolved, err := ResolveField(m, "id", "with", false)
	require.NoError(t, err)
	require.Equal(t, `"including_team"."id"`, resolved.Selector)
}

func TestSlugToName(t *testing.T) {
	require.Equal(t, "Member amount", SlugToName("memberAmount"))
	require.Equal(t, "Handle", SlugToName("handle"))
}

func TestNewRecordID(t *testing.T) {
	id := NewRecordID("acc")
	require.True(t, strings.HasPrefix(id, "acc_"))
	require.Len(t, id, len("acc_")+16)
	require.Equal(t, strings.ToLower(id), id)
}

func TestFieldsJSONRoundTrip(t *testing.T) {
	m := &Model{
		Slug: "account",
		Fields: []Field{
			{Slug: "handle", Type: TypeString, Unique: true},
		},
	}
	require.NoError(t, Normalize(m))

	raw := FieldsJSON(m)
	var parsed map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &parsed))

	require.Contains(t, parsed, "id")
	require.Contains(t, parsed, "handle")
	require.Equal(t, "string", parsed["handle"]["type"])
	require.Equal(t, true, parsed["handle"]["unique"])
	require.Equal(t, true, parsed["id"]["system"].(bool))
}

func TestDecodeModelFromDocument(t *testing.T) {
	m, err := DecodeModel(map[string]any{
		"slug": "account",
		"fields": map[string]any{
			"handle": map[string]any{"type": "string", "required": true},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "accounts", m.PluralSlug)

	f, ok := m.Field("handle")
	require.True(t, ok)
	require.Equal(t, TypeString, f.Type)
	require.True(t, f.Required)
	require.Equal(t, "Handle", f.Name)
}

func TestDecodeIndexRequiresFields(t *testing.T) {
	_, err := DecodeIndex("byHandle", map[string]any{"fields": []any{}})
	require.True(t, rerr.HasCode(err, rerr.InvalidModelValue))
}
