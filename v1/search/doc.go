// Package search compiles attribute searches into predicates over the entity
// tables.
//
// Two request shapes are supported. A boolean search tree (Node) nests
// and/or/not methods over comparison leaves and is sent either as JSON or
// base64 encoded JSON. The flat form (AttributeFilter) carries name::value
// operator pairs, null checks and vector similarity queries, and is compiled
// through the same leaf compiler so both forms share one set of casts.
//
// Saved sections narrow media by a section path, a media search and a
// related search. A related search evaluates a tree against every state and
// localization type of the project and keeps the media owning a match:
//
//	searcher := search.NewSearcher(db, search.NewCatalog(db), projectID)
//	media, err := searcher.RelatedSearch(ctx, searcher.Base(mediaEntity), tree)
//
// Every matching media row carries an "incident" column counting its
// matches.
package search
