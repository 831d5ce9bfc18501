package models

import (
	"fmt"

	"gorm.io/gorm/clause"
)

// Kind names an entity collection the query engine can search.
type Kind string

const (
	KindLocalization Kind = "localization"
	KindState        Kind = "state"
	KindMedia        Kind = "media"
	KindFile         Kind = "file"
	KindLeaf         Kind = "leaf"
)

// Entity describes how an entity collection is stored.
type Entity struct {
	Kind Kind
	// Table holds the instances, TypeTable their entity types.
	Table     string
	TypeTable string
	// TypeColumn references TypeTable from Table.
	TypeColumn string
	// VariantDeleted is set for collections with the variant_deleted flag.
	VariantDeleted bool
}

var entities = map[Kind]Entity{
	KindLocalization: {Kind: KindLocalization, Table: "localizations", TypeTable: "localization_types", TypeColumn: "type_id", VariantDeleted: true},
	KindState:        {Kind: KindState, Table: "states", TypeTable: "state_types", TypeColumn: "type_id", VariantDeleted: true},
	KindMedia:        {Kind: KindMedia, Table: "media", TypeTable: "media_types", TypeColumn: "type_id"},
	KindFile:         {Kind: KindFile, Table: "files", TypeTable: "file_types", TypeColumn: "meta_id"},
	KindLeaf:         {Kind: KindLeaf, Table: "leaves", TypeTable: "leaf_types", TypeColumn: "type_id"},
}

// Annotations are the kinds related searches run against.
var Annotations = []Kind{KindState, KindLocalization}

// EntityOf returns the descriptor for kind.
func EntityOf(kind Kind) (Entity, error) {
	e, ok := entities[kind]
	if !ok {
		return Entity{}, fmt.Errorf("unknown entity kind %q", kind)
	}
	return e, nil
}

// MustEntity is EntityOf for kinds known at compile time.
func MustEntity(kind Kind) Entity {
	e, err := EntityOf(kind)
	if err != nil {
		panic(err)
	}
	return e
}

// MediaMembership restricts the collection to rows that belong to one of the
// media returned by mediaIDs, a subquery selecting media ids. Collections
// without a media relation match nothing.
func (e Entity) MediaMembership(mediaIDs interface{}) clause.Expression {
	switch e.Kind {
	case KindMedia:
		return clause.Expr{SQL: "id IN (?)", Vars: []interface{}{mediaIDs}}
	case KindLocalization:
		return clause.Expr{SQL: "media_id IN (?)", Vars: []interface{}{mediaIDs}}
	case KindState:
		return clause.Expr{
			SQL:  "id IN (SELECT state_media.state_id FROM state_media WHERE state_media.media_id IN (?))",
			Vars: []interface{}{mediaIDs},
		}
	}
	return clause.Expr{SQL: "FALSE"}
}

// MediaLink names the table that relates rows of the collection to their
// owning media: the column holding the row id and the column holding the
// media id. Only annotations have one; a state may link to several media.
func (e Entity) MediaLink() (table, rowColumn, mediaColumn string, ok bool) {
	switch e.Kind {
	case KindLocalization:
		return "localizations", "id", "media_id", true
	case KindState:
		return "state_media", "state_id", "media_id", true
	}
	return "", "", "", false
}
