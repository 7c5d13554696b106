package tools

// NewResourceResolver returns the Authorization Engine's ResourceResolver for this catalog: it
// derives the concrete resource name from the argument that names it per tool
// (search_vectors → "collection", search_database → "table"), defaulting to the wildcard
// resource for tools with no argument-derived resource (search_web, search_all).
func NewResourceResolver() func(toolName string, arguments map[string]interface{}) string {
	return func(toolName string, arguments map[string]interface{}) string {
		var key string
		switch toolName {
		case ToolSearchVectors:
			key = "collection"
		case ToolSearchDatabase:
			key = "table"
		default:
			return "*"
		}
		v, ok := arguments[key]
		if !ok {
			return "*"
		}
		s, ok := v.(string)
		if !ok || s == "" {
			return "*"
		}
		return s
	}
}
