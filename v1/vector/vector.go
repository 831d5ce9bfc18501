// Package vector ranks entities by the distance between a float_array
// attribute and a query vector, using pgvector operators.
package vector

import (
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/Aleph-Alpha/annotation-engine/v1/attribute"
	"github.com/Aleph-Alpha/annotation-engine/v1/queryset"
)

// Metric selects the pgvector distance operator.
type Metric string

const (
	L2Norm Metric = "l2norm"
	Cosine Metric = "cosine"
	// InnerProduct is pgvector's negative inner product, so smaller is
	// more similar for every metric.
	InnerProduct Metric = "ip"
)

var operators = map[Metric]string{
	L2Norm:       "<->",
	Cosine:       "<=>",
	InnerProduct: "<#>",
}

const (
	Asc  = "asc"
	Desc = "desc"
)

// Query is one float_array similarity request.
type Query struct {
	Name       string    `json:"name"`
	Center     []float32 `json:"center"`
	UpperBound *float64  `json:"upper_bound,omitempty"`
	LowerBound *float64  `json:"lower_bound,omitempty"`
	Metric     Metric    `json:"metric,omitempty"`
	Order      string    `json:"order,omitempty"`
}

func (q Query) metric() Metric {
	if q.Metric == "" {
		return L2Norm
	}
	return q.Metric
}

func (q Query) order() string {
	if q.Order == "" {
		return Asc
	}
	return strings.ToLower(q.Order)
}

// Validate checks the metric and order and that a center was supplied.
func (q Query) Validate() error {
	if q.Name == "" {
		return attribute.Validationf("float_array query needs a name")
	}
	if len(q.Center) == 0 {
		return attribute.Validationf("float_array query %q needs a center", q.Name)
	}
	if _, ok := operators[q.metric()]; !ok {
		return attribute.Validationf("unknown metric %q", q.Metric)
	}
	if o := q.order(); o != Asc && o != Desc {
		return attribute.Validationf("unknown order %q", q.Order)
	}
	return nil
}

// Alias names the projected distance column for the attribute.
func Alias(name string) string {
	return "distance" + strings.TrimPrefix(attribute.CastAlias(name), "casted")
}

// Apply projects the distance between the stored vector and the center,
// bounds it inclusively and orders by it. def must be the float_array
// definition of q.Name on the pinned entity type.
func Apply(qs *queryset.QuerySet, def attribute.Definition, q Query) (*queryset.QuerySet, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if def.DType != attribute.FloatArray {
		return nil, attribute.Validationf("attribute %q is %s, not float_array", def.Name, def.DType)
	}
	if def.Size > 0 && def.Size != len(q.Center) {
		return nil, attribute.Validationf("center has %d dimensions, %q has %d", len(q.Center), def.Name, def.Size)
	}

	size := def.Size
	if size == 0 {
		size = len(q.Center)
	}
	alias := Alias(def.Name)
	qs = qs.Project(queryset.Projection{
		Alias: alias,
		SQL:   fmt.Sprintf("CAST(attributes ->> ? AS vector(%d)) %s ?", size, operators[q.metric()]),
		Vars:  []interface{}{def.Name, pgvector.NewVector(q.Center)},
	})

	if q.UpperBound != nil {
		qs = qs.Filter(alias+" <= ?", *q.UpperBound)
	}
	if q.LowerBound != nil {
		qs = qs.Filter(alias+" >= ?", *q.LowerBound)
	}
	if q.order() == Desc {
		return qs.OrderBy(alias + " DESC"), nil
	}
	return qs.OrderBy(alias + " ASC"), nil
}
