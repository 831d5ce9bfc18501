package queryset

import "github.com/Aleph-Alpha/annotation-engine/v1/attribute"

// Casts collects the typed projections a compiled predicate depends on, one
// per attribute name, in first-use order.
type Casts struct {
	order  []string
	byName map[string]Projection
}

// NewCasts returns an empty collection.
func NewCasts() *Casts {
	return &Casts{byName: map[string]Projection{}}
}

// Add registers the projection for def and returns its alias. The boolean is
// false when the dtype cannot be projected.
func (c *Casts) Add(def attribute.Definition) (string, bool) {
	if p, ok := c.byName[def.Name]; ok {
		return p.Alias, true
	}
	sql, vars, ok := attribute.CastExpr(def)
	if !ok {
		return "", false
	}
	p := Projection{Alias: attribute.CastAlias(def.Name), SQL: sql, Vars: vars}
	c.byName[def.Name] = p
	c.order = append(c.order, def.Name)
	return p.Alias, true
}

// Len is the number of distinct attributes collected.
func (c *Casts) Len() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}

// Names returns the attribute names in first-use order.
func (c *Casts) Names() []string {
	return append([]string(nil), c.order...)
}

// Projections returns one projection per collected attribute.
func (c *Casts) Projections() []Projection {
	out := make([]Projection, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.byName[name])
	}
	return out
}
