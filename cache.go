package compiler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ronin-co/compiler/internal/sqlite"
)

const cacheSize = 5000

// Cache reuses compiled statements across transactions for identical
// read queries against an unchanged model list.
type Cache struct {
	cache *lru.TwoQueueCache[string, *sqlite.Compiled]
}

// NewCache returns an empty statement cache.
func NewCache() (*Cache, error) {
	c, err := lru.New2Q[string, *sqlite.Compiled](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Cache{cache: c}, nil
}

// key fingerprints a query document together with the schema it
// compiles against.
func (c *Cache) key(doc Query, models []*Model) string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	_ = enc.Encode(doc)
	for _, m := range models {
		for _, s := range []string{m.Slug, m.PluralSlug, m.Table, m.Identifiers.Name, m.Identifiers.Slug} {
			h.Write([]byte(s))
			h.Write([]byte{0})
		}
		for i := range m.Fields {
			h.Write([]byte(m.Fields[i].Slug))
			h.Write([]byte(m.Fields[i].Type))
			h.Write([]byte(m.Fields[i].Kind))
			h.Write([]byte(m.Fields[i].Target))
			h.Write([]byte{0})
		}
		_ = enc.Encode(m.Presets)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) get(key string) (*sqlite.Compiled, bool) {
	return c.cache.Get(key)
}

func (c *Cache) set(key string, compiled *sqlite.Compiled) {
	c.cache.Add(key, compiled)
}
