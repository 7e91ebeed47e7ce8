package domain

// ─── MCP Tool/Resource Descriptor Types ─────────────────────────────────────
// Used by the chat-stream orchestrator to resolve tool names into
// JSON-Schema-like descriptors the model can be prompted with.

// MCPTool represents a tool definition resolved from (or fabricated for) an
// MCP server, namespaced as "Server_tool" when presented to the model.
type MCPTool struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema MCPToolInputSchema `json:"inputSchema"`
}

// MCPToolInputSchema is the JSON Schema for a tool's input object.
type MCPToolInputSchema struct {
	Type       string                       `json:"type"` // always "object"
	Properties map[string]MCPSchemaProperty `json:"properties"`
	Required   []string                     `json:"required,omitempty"`
}

// MCPSchemaProperty defines a single property in a JSON Schema.
type MCPSchemaProperty struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Default     any      `json:"default,omitempty"`
}

// MCPResource represents a resource definition exposed by an MCP server.
type MCPResource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
}

// OpenSchema fabricates the generic empty-object schema used when a tool
// descriptor cannot be resolved against its server (§4.8 step 3).
func OpenSchema() MCPToolInputSchema {
	return MCPToolInputSchema{
		Type:       "object",
		Properties: map[string]MCPSchemaProperty{},
	}
}
