// Package types provides shared type definitions for the docstore MCP server.
//
// # Attributes
//
// An Attribute is a typed fact about a document: a kind such as "speaker"
// or "mention" and a free-text value. A document may carry several
// attributes of the same kind, and duplicates are tolerated.
//
//	attrs := []types.Attribute{
//	    {Kind: types.KindSpeaker, Value: "alice"},
//	    {Kind: types.KindMention, Value: "bob"},
//	}
//
// # Attribute Filters
//
// AttributeFilter expresses set intersection. Every listed value of every
// listed kind must be present on a document for it to match:
//
//	// Documents spoken by both alice and bob that mention carol
//	filter := types.AttributeFilter{
//	    types.KindSpeaker: {"alice", "bob"},
//	    types.KindMention: {"carol"},
//	}
//
// Pairs flattens a filter into sorted, deduplicated (kind, value) pairs,
// which the storage layer turns into one INTERSECTed subquery each.
package types
