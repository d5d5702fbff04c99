// Package docset implements named collections of tagged text documents.
//
// A DocumentSet owns two tables, <name>_documents and <name>_attributes, and
// answers random, latest, paginated and counted queries that combine an
// attribute filter (AND across every kind and value) with free-text terms
// matched case-insensitively against the body. Queries that match nothing
// return the set's null document rather than an error.
//
// A Registry keeps one live DocumentSet per name and records collections in
// the backend catalog so a restarted process can reopen them.
package docset
