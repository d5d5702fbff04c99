package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func collectionProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Collection name: lowercase letters and digits, starting with a letter",
		"pattern":     "^[a-z][a-z0-9]{0,47}$",
	}
}

func queryProperty() map[string]interface{} {
	return map[string]interface{}{
		"type": "string",
		"description": "Free-text terms matched case-insensitively against the body. " +
			"Whitespace separates terms, quotes group words, backslash escapes the next character. " +
			"Every term must match.",
	}
}

func attributesProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": description,
		"additionalProperties": map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "string"},
		},
	}
}

const filterDescription = "Attribute filter keyed by kind (subject, speaker, mention). " +
	"A document must carry every listed value of every listed kind."

// createCollectionTool returns the tool definition for create_collection
func createCollectionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "create_collection",
		Description: "Create a document collection, or open it if it already exists",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"collection": collectionProperty(),
				"not_found_message": map[string]interface{}{
					"type":        "string",
					"description": "Body returned when a query matches nothing",
				},
			},
			Required: []string{"collection"},
		},
	}
}

// destroyCollectionTool returns the tool definition for destroy_collection
func destroyCollectionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "destroy_collection",
		Description: "Drop a collection and every document in it",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"collection": collectionProperty(),
			},
			Required: []string{"collection"},
		},
	}
}

// listCollectionsTool returns the tool definition for list_collections
func listCollectionsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_collections",
		Description: "List every known collection",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// addDocumentTool returns the tool definition for add_document
func addDocumentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "add_document",
		Description: "Store a document with its attributes",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"collection": collectionProperty(),
				"body": map[string]interface{}{
					"type":        "string",
					"description": "Document text",
				},
				"submitter": map[string]interface{}{
					"type":        "string",
					"description": "Who submitted the document",
				},
				"attributes": attributesProperty("Attributes keyed by kind, for example {\"speaker\": [\"alice\"]}"),
			},
			Required: []string{"collection", "body"},
		},
	}
}

func matchingSchema() mcp.ToolInputSchema {
	return mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"collection": collectionProperty(),
			"query":      queryProperty(),
			"attributes": attributesProperty(filterDescription),
		},
		Required: []string{"collection"},
	}
}

// randomDocumentTool returns the tool definition for random_document
func randomDocumentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "random_document",
		Description: "Return a random document matching the attributes and query",
		InputSchema: matchingSchema(),
	}
}

// latestDocumentTool returns the tool definition for latest_document
func latestDocumentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "latest_document",
		Description: "Return the most recently added document matching the attributes and query",
		InputSchema: matchingSchema(),
	}
}

// countDocumentsTool returns the tool definition for count_documents
func countDocumentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "count_documents",
		Description: "Count documents matching the attributes and query",
		InputSchema: matchingSchema(),
	}
}

// listDocumentsTool returns the tool definition for list_documents
func listDocumentsTool() mcp.Tool {
	schema := matchingSchema()
	schema.Properties["page_size"] = map[string]interface{}{
		"type":        "integer",
		"description": "Maximum number of documents to return",
		"minimum":     1,
	}
	schema.Properties["after"] = map[string]interface{}{
		"type":        "integer",
		"description": "Cursor: end_cursor of the previous page",
		"minimum":     0,
		"default":     0,
	}
	return mcp.Tool{
		Name:        "list_documents",
		Description: "Page through matching documents in insertion order",
		InputSchema: schema,
	}
}

// userStatsTool returns the tool definition for user_stats
func userStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "user_stats",
		Description: "Rank users by how many documents they speak in, then by mentions",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"collection": collectionProperty(),
				"kinds": map[string]interface{}{
					"type":        "array",
					"description": "Attribute kinds to aggregate",
					"items":       map[string]interface{}{"type": "string"},
				},
				"refresh": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, discard remembered results first",
					"default":     false,
				},
			},
			Required: []string{"collection"},
		},
	}
}

// deleteDocumentsTool returns the tool definition for delete_documents
func deleteDocumentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "delete_documents",
		Description: "Delete documents matching the attributes. At least one attribute value is required.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"collection": collectionProperty(),
				"attributes": attributesProperty(filterDescription),
			},
			Required: []string{"collection", "attributes"},
		},
	}
}
