// Package attribute holds the static tables of the attribute query engine:
// the schema resolver for user-defined and built-in attributes, the type cast
// table that projects schemaless jsonb values into typed columns, and the
// operator allow-table consulted before any predicate is compiled.
//
// Every table in this package is read-only after initialization and safe for
// concurrent use.
//
// Flat filters arrive as name::value pairs:
//
//	ops, err := attribute.ParseFilterOps(attribute.Filters{
//		Eq: []string{"Species::cod"},
//		Gt: []string{"Length::20"},
//	}, entityType.Schema())
//	if errors.Is(err, attribute.ErrValidation) {
//		// reject the request
//	}
package attribute
