// Package stats ranks users by how often they are quoted and mentioned.
//
// A Builder accumulates (username, kind, count) triples, typically the
// output of an attribute aggregate over a collection, and produces a
// Table ranked by spoken count, then mention count:
//
//	b := stats.NewBuilder()
//	b.Add("alice", types.KindSpeaker, 3)
//	b.Add("alice", types.KindMention, 1)
//	b.Add("bob", types.KindSpeaker, 2)
//	table := b.Build()
//	for _, line := range table.Lines() {
//	    fmt.Println(line)
//	}
//
// Ties keep the order in which users were first added. The Table also
// carries column widths so callers can render fixed-width output.
package stats
