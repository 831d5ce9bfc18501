package query

import (
	"github.com/Aleph-Alpha/annotation-engine/v1/attribute"
	"github.com/Aleph-Alpha/annotation-engine/v1/search"
	"github.com/Aleph-Alpha/annotation-engine/v1/vector"
)

// AnnotationParams are the query parameters of a localization or state
// listing. Which id lists apply depends on the kind being queried: for
// localizations IDs are localization ids and StateIDs select through the
// states; for states IDs are state ids and LocalizationIDs select through the
// localizations.
type AnnotationParams struct {
	MediaID         []int64 `json:"media_id,omitempty"`
	MediaIDs        []int64 `json:"media_ids,omitempty"`
	IDs             []int64 `json:"ids,omitempty"`
	StateIDs        []int64 `json:"state_ids,omitempty"`
	LocalizationIDs []int64 `json:"localization_ids,omitempty"`

	Type        *int64  `json:"type,omitempty"`
	Version     []int64 `json:"version,omitempty"`
	ElementalID *string `json:"elemental_id,omitempty"`
	Frame       *int64  `json:"frame,omitempty"`
	After       *int64  `json:"after,omitempty"`
	Section     *int64  `json:"section,omitempty"`

	attribute.Filters
	RelatedFilters

	ObjectSearch         *search.Node   `json:"object_search,omitempty"`
	EncodedSearch        string         `json:"encoded_search,omitempty"`
	EncodedRelatedSearch string         `json:"encoded_related_search,omitempty"`
	RelatedID            []int64        `json:"related_id,omitempty"`
	FloatArray           []vector.Query `json:"float_array,omitempty"`

	Merge       bool     `json:"merge,omitempty"`
	ShowDeleted bool     `json:"show_deleted,omitempty"`
	SortBy      []string `json:"sort_by,omitempty"`
	Start       *int     `json:"start,omitempty"`
	Stop        *int     `json:"stop,omitempty"`
}

// RelatedFilters are flat attribute filters evaluated against the media an
// annotation belongs to.
type RelatedFilters struct {
	RelatedEq       []string `json:"related_attribute,omitempty"`
	RelatedLt       []string `json:"related_attribute_lt,omitempty"`
	RelatedLte      []string `json:"related_attribute_lte,omitempty"`
	RelatedGt       []string `json:"related_attribute_gt,omitempty"`
	RelatedGte      []string `json:"related_attribute_gte,omitempty"`
	RelatedContains []string `json:"related_attribute_contains,omitempty"`
	RelatedDistance []string `json:"related_attribute_distance,omitempty"`
	RelatedNull     []string `json:"related_attribute_null,omitempty"`
}

// Filters strips the related_ prefix.
func (r RelatedFilters) Filters() attribute.Filters {
	return attribute.Filters{
		Eq:       r.RelatedEq,
		Lt:       r.RelatedLt,
		Lte:      r.RelatedLte,
		Gt:       r.RelatedGt,
		Gte:      r.RelatedGte,
		Contains: r.RelatedContains,
		Distance: r.RelatedDistance,
		Null:     r.RelatedNull,
	}
}

// LeafParams are the query parameters of a leaf listing.
type LeafParams struct {
	LeafID []int64 `json:"leaf_id,omitempty"`
	// IDs distinguishes an explicit empty list, which matches nothing, from
	// an absent one.
	IDs   *[]int64 `json:"ids,omitempty"`
	Depth *int     `json:"depth,omitempty"`
	Name  *string  `json:"name,omitempty"`
	Type  *int64   `json:"type,omitempty"`

	attribute.Filters

	ObjectSearch  *search.Node `json:"object_search,omitempty"`
	EncodedSearch string       `json:"encoded_search,omitempty"`

	Start *int `json:"start,omitempty"`
	Stop  *int `json:"stop,omitempty"`
}

// FileParams are the query parameters of a file listing.
type FileParams struct {
	FileID []int64 `json:"file_id,omitempty"`
	IDs    []int64 `json:"ids,omitempty"`
	Name   *string `json:"name,omitempty"`
	// Meta is the file type.
	Meta *int64 `json:"meta,omitempty"`

	attribute.Filters

	Start *int `json:"start,omitempty"`
	Stop  *int `json:"stop,omitempty"`
}
