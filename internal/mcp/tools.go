package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/docstore-mcp/internal/docset"
	"github.com/dshills/docstore-mcp/internal/query"
	"github.com/dshills/docstore-mcp/internal/storage"
	"github.com/dshills/docstore-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams     = -32602 // Invalid method parameters
	ErrorCodeInternalError     = -32603 // Internal JSON-RPC error
	ErrorCodeUnknownCollection = -32001 // Collection has not been created
	ErrorCodeInvalidQuery      = -32002 // Query string is malformed
)

// handleCreateCollection handles the create_collection tool invocation
func (s *Server) handleCreateCollection(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	name, err := requireString(args, "collection")
	if err != nil {
		return nil, err
	}

	set, err := s.registry.Open(ctx, name, getStringDefault(args, "not_found_message", ""))
	if err != nil {
		return nil, toolError("failed to open collection", err)
	}

	response := map[string]interface{}{
		"collection":        set.Name(),
		"document_table":    set.DocumentTableName(),
		"attribute_table":   set.AttributeTableName(),
		"not_found_message": set.NullDocument().Body(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleDestroyCollection handles the destroy_collection tool invocation
func (s *Server) handleDestroyCollection(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	name, err := requireString(args, "collection")
	if err != nil {
		return nil, err
	}

	if err := s.registry.Destroy(ctx, name); err != nil {
		return nil, toolError("failed to destroy collection", err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"collection": name,
		"destroyed":  true,
	})), nil
}

// handleListCollections handles the list_collections tool invocation
func (s *Server) handleListCollections(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	infos, err := s.registry.Catalog(ctx)
	if err != nil {
		return nil, toolError("failed to list collections", err)
	}

	collections := make([]map[string]interface{}, 0, len(infos))
	for _, info := range infos {
		_, openErr := s.registry.Get(info.Name)
		collections = append(collections, map[string]interface{}{
			"name":       info.Name,
			"created_at": info.CreatedAt.Format(time.RFC3339),
			"open":       openErr == nil,
		})
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"collections": collections,
	})), nil
}

// handleAddDocument handles the add_document tool invocation
func (s *Server) handleAddDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, set, err := s.collectionArgs(request)
	if err != nil {
		return nil, err
	}
	body, err := requireString(args, "body")
	if err != nil {
		return nil, err
	}
	filter, err := getAttributes(args, "attributes")
	if err != nil {
		return nil, err
	}

	var attrs []types.Attribute
	for _, kind := range filter.Kinds() {
		for _, v := range filter[kind] {
			attrs = append(attrs, types.Attribute{Kind: kind, Value: v})
		}
	}

	doc, err := set.Add(ctx, getStringDefault(args, "submitter", ""), body, attrs)
	if err != nil {
		return nil, toolError("failed to add document", err)
	}
	return mcp.NewToolResultText(formatJSON(documentJSON(doc))), nil
}

// handleRandomDocument handles the random_document tool invocation
func (s *Server) handleRandomDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.oneDocument(ctx, request, (*docset.DocumentSet).RandomMatching)
}

// handleLatestDocument handles the latest_document tool invocation
func (s *Server) handleLatestDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.oneDocument(ctx, request, (*docset.DocumentSet).LatestMatching)
}

type fetchOne func(*docset.DocumentSet, context.Context, types.AttributeFilter, string) (*docset.Document, error)

func (s *Server) oneDocument(ctx context.Context, request mcp.CallToolRequest, fetch fetchOne) (*mcp.CallToolResult, error) {
	args, set, err := s.collectionArgs(request)
	if err != nil {
		return nil, err
	}
	filter, err := getAttributes(args, "attributes")
	if err != nil {
		return nil, err
	}

	doc, err := fetch(set, ctx, filter, getStringDefault(args, "query", ""))
	if err != nil {
		return nil, toolError("query failed", err)
	}
	return mcp.NewToolResultText(formatJSON(documentJSON(doc))), nil
}

// handleListDocuments handles the list_documents tool invocation
func (s *Server) handleListDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, set, err := s.collectionArgs(request)
	if err != nil {
		return nil, err
	}
	filter, err := getAttributes(args, "attributes")
	if err != nil {
		return nil, err
	}

	pageSize := getIntDefault(args, "page_size", s.opts.DefaultPageSize)
	if pageSize < 1 || pageSize > s.opts.MaxPageSize {
		return nil, newMCPError(ErrorCodeInvalidParams,
			fmt.Sprintf("page_size must be between 1 and %d", s.opts.MaxPageSize), map[string]interface{}{
				"param": "page_size",
				"value": pageSize,
			})
	}
	after := getIntDefault(args, "after", 0)
	if after < 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "after must not be negative", map[string]interface{}{
			"param": "after",
			"value": after,
		})
	}

	page, err := set.AllMatching(ctx, filter, getStringDefault(args, "query", ""),
		docset.PageRequest{Size: pageSize, After: int64(after)})
	if err != nil {
		return nil, toolError("query failed", err)
	}

	documents := make([]map[string]interface{}, len(page.Documents))
	for i, doc := range page.Documents {
		documents[i] = documentJSON(doc)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"documents":         documents,
		"has_next_page":     page.HasNextPage,
		"has_previous_page": page.HasPreviousPage,
		"end_cursor":        page.EndCursor,
	})), nil
}

// handleCountDocuments handles the count_documents tool invocation
func (s *Server) handleCountDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, set, err := s.collectionArgs(request)
	if err != nil {
		return nil, err
	}
	filter, err := getAttributes(args, "attributes")
	if err != nil {
		return nil, err
	}

	count, err := set.CountMatching(ctx, filter, getStringDefault(args, "query", ""))
	if err != nil {
		return nil, toolError("count failed", err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"collection": set.Name(),
		"count":      count,
	})), nil
}

// handleUserStats handles the user_stats tool invocation
func (s *Server) handleUserStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, set, err := s.collectionArgs(request)
	if err != nil {
		return nil, err
	}
	kinds, err := getStringSlice(args, "kinds")
	if err != nil {
		return nil, err
	}
	if getBoolDefault(args, "refresh", false) {
		set.ResetStats()
	}

	table, err := set.UserStats(ctx, kinds...)
	if err != nil {
		return nil, toolError("failed to compute statistics", err)
	}

	rows := make([]map[string]interface{}, len(table.Rows))
	for i, r := range table.Rows {
		rows[i] = map[string]interface{}{
			"rank":     r.Rank,
			"username": r.Username,
			"spoken":   r.Spoken,
			"mentions": r.Mentions,
		}
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"collection": set.Name(),
		"users":      rows,
		"lines":      table.Lines(),
	})), nil
}

// handleDeleteDocuments handles the delete_documents tool invocation
func (s *Server) handleDeleteDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, set, err := s.collectionArgs(request)
	if err != nil {
		return nil, err
	}
	filter, err := getAttributes(args, "attributes")
	if err != nil {
		return nil, err
	}

	deleted, err := set.DeleteMatching(ctx, filter)
	if err != nil {
		return nil, toolError("delete failed", err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"collection": set.Name(),
		"deleted":    deleted,
	})), nil
}

// Helper functions

// collectionArgs extracts the arguments and the opened collection they name
func (s *Server) collectionArgs(request mcp.CallToolRequest) (map[string]interface{}, *docset.DocumentSet, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, nil, err
	}
	name, err := requireString(args, "collection")
	if err != nil {
		return nil, nil, err
	}
	set, err := s.registry.Get(name)
	if err != nil {
		return nil, nil, toolError("unknown collection", err)
	}
	return args, set, nil
}

// documentJSON renders a document or the null document
func documentJSON(doc *docset.Document) map[string]interface{} {
	if !doc.Found() {
		return map[string]interface{}{
			"found": false,
			"body":  doc.Body(),
		}
	}

	attributes := make(map[string][]string)
	for _, a := range doc.Attributes() {
		attributes[a.Kind] = append(attributes[a.Kind], a.Value)
	}
	return map[string]interface{}{
		"found":      true,
		"id":         doc.ID,
		"body":       doc.Body(),
		"submitter":  doc.Submitter,
		"created_at": doc.Created.Format(time.RFC3339),
		"updated_at": doc.Updated.Format(time.RFC3339),
		"attributes": attributes,
	}
}

// toolError maps a domain error to an MCP error
func toolError(message string, err error) error {
	var syntax *query.SyntaxError
	switch {
	case errors.As(err, &syntax):
		return newMCPError(ErrorCodeInvalidQuery, "invalid query", map[string]interface{}{
			"param":  "query",
			"offset": syntax.Offset,
			"reason": syntax.Err.Error(),
		})
	case errors.Is(err, docset.ErrUnknownCollection):
		return newMCPError(ErrorCodeUnknownCollection, "collection not found", map[string]interface{}{
			"param":  "collection",
			"reason": "use create_collection first",
		})
	case errors.Is(err, storage.ErrInvalidCollectionName):
		return newMCPError(ErrorCodeInvalidParams, "invalid collection name", map[string]interface{}{
			"param":  "collection",
			"reason": err.Error(),
		})
	case errors.Is(err, types.ErrEmptyBody):
		return newMCPError(ErrorCodeInvalidParams, "body parameter is required", map[string]interface{}{
			"param":  "body",
			"reason": "missing or empty",
		})
	case errors.Is(err, storage.ErrFilterTooLarge):
		return newMCPError(ErrorCodeInvalidParams, "too many attribute values", map[string]interface{}{
			"param":  "attributes",
			"reason": err.Error(),
		})
	case errors.Is(err, storage.ErrEmptyFilter):
		return newMCPError(ErrorCodeInvalidParams, "attributes must name at least one value", map[string]interface{}{
			"param":  "attributes",
			"reason": err.Error(),
		})
	default:
		return newMCPError(ErrorCodeInternalError, message, map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// arguments returns the tool arguments as a map
func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, nil
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

// requireString extracts a non-empty string parameter
func requireString(args map[string]interface{}, key string) (string, error) {
	val, ok := args[key].(string)
	if !ok || val == "" {
		return "", newMCPError(ErrorCodeInvalidParams, key+" parameter is required", map[string]interface{}{
			"param":  key,
			"reason": "missing or empty",
		})
	}
	return val, nil
}

// getAttributes extracts an object of kind -> string or array of strings
func getAttributes(args map[string]interface{}, key string) (types.AttributeFilter, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return types.AttributeFilter{}, nil
	}
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, invalidAttributes(key, "must be an object keyed by kind")
	}

	filter := make(types.AttributeFilter, len(obj))
	for kind, v := range obj {
		switch values := v.(type) {
		case string:
			filter[kind] = []string{values}
		case []interface{}:
			for _, item := range values {
				s, ok := item.(string)
				if !ok {
					return nil, invalidAttributes(key, fmt.Sprintf("values of %q must be strings", kind))
				}
				filter[kind] = append(filter[kind], s)
			}
		default:
			return nil, invalidAttributes(key, fmt.Sprintf("values of %q must be an array of strings", kind))
		}
	}
	return filter, nil
}

func invalidAttributes(key, reason string) error {
	return newMCPError(ErrorCodeInvalidParams, "invalid "+key, map[string]interface{}{
		"param":  key,
		"reason": reason,
	})
}

// getStringSlice extracts an optional array of strings
func getStringSlice(args map[string]interface{}, key string) ([]string, error) {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, newMCPError(ErrorCodeInvalidParams, key+" must be an array of strings", map[string]interface{}{
				"param": key,
			})
		}
		out = append(out, s)
	}
	return out, nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
