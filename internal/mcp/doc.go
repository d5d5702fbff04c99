// Package mcp implements the Model Context Protocol (MCP) server for docstore.
//
// The server exposes the collections of a docset.Registry as tools:
//   - create_collection, destroy_collection, list_collections
//   - add_document
//   - random_document, latest_document, list_documents, count_documents
//   - user_stats
//   - delete_documents
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is started via the serve command:
//
//	docstore serve
//
// # Filters and queries
//
// Query tools take an optional "attributes" object keyed by kind and an
// optional "query" string. A document matches when it carries every listed
// value of every listed kind and its body matches every query term:
//
//	Request:
//	{
//	  "name": "random_document",
//	  "arguments": {
//	    "collection": "quote",
//	    "attributes": {"speaker": ["alice"]},
//	    "query": "\"good morning\" coffee"
//	  }
//	}
//
//	Response:
//	{
//	  "found": true,
//	  "id": 42,
//	  "body": "Good morning, coffee first.",
//	  "submitter": "bob",
//	  "attributes": {"speaker": ["alice"]}
//	}
//
// When nothing matches, the response is {"found": false, "body": "<not found message>"}.
//
// # Pagination
//
// list_documents returns documents in insertion order. Pass the returned
// "end_cursor" as "after" to fetch the next page while "has_next_page" is true.
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "docstore": {
//	      "command": "/usr/local/bin/docstore",
//	      "args": ["serve", "--config", "/etc/docstore.yaml"]
//	    }
//	  }
//	}
//
// # Error Handling
//
// Errors carry a JSON-RPC code and a data object naming the parameter:
//
//	{
//	  "error": {
//	    "code": -32002,
//	    "message": "invalid query",
//	    "data": {"param": "query", "offset": 0, "reason": "unterminated delimiter"}
//	  }
//	}
//
// Error codes:
//   - -32602: Invalid params (missing or malformed arguments)
//   - -32603: Internal error (database failures)
//   - -32001: Collection not found
//   - -32002: Malformed query string
//
// # Logging
//
// The server logs to stderr through zap (stdout is reserved for MCP protocol).
package mcp
