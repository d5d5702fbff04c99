// Package importer bulk-loads documents into a collection from JSON Lines.
//
// Each non-blank line is one record:
//
//	{"submitter": "bob", "body": "I'll be back.", "attributes": {"speaker": ["arnold"]}}
//
// Records are inserted concurrently by a bounded worker pool. Use a single
// worker when insertion order (and therefore "latest") must follow the input.
// Records that fail to parse or insert are reported in Statistics and do not
// stop the import.
package importer
