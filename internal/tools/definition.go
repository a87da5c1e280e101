package tools

// Category groups related tools for discovery and permissioning.
type Category string

const (
	CategoryFilesystem   Category = "filesystem"
	CategorySearch       Category = "search"
	CategoryExecution    Category = "execution"
	CategoryIntelligence Category = "intelligence"
	CategoryManagement   Category = "management"
)

// toolCategories maps each built-in tool name to its category. Tools that
// register without a known name fall back to CategoryManagement so they
// still surface from by_category rather than disappearing silently.
var toolCategories = map[string]Category{
	"read":      CategoryFilesystem,
	"write":     CategoryFilesystem,
	"edit":      CategoryFilesystem,
	"multiedit": CategoryFilesystem,
	"list":      CategoryFilesystem,
	"grep":      CategorySearch,
	"glob":      CategorySearch,
	"websearch": CategorySearch,
	"bash":      CategoryExecution,
	"webfetch":  CategoryIntelligence,
	"todo":      CategoryManagement,
}

// CategoryOf returns the category a tool name is registered under, defaulting
// to CategoryManagement for names outside the built-in set.
func CategoryOf(name string) Category {
	if c, ok := toolCategories[name]; ok {
		return c
	}
	return CategoryManagement
}

// ToolDefinition is the immutable descriptor of a registered tool, exposed
// for discovery (listing available tools to a caller or an LLM) separately
// from the live Tool value used to execute it.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Category    Category       `json:"category"`
	Parameters  map[string]any `json:"parameters"`
}

func definitionFor(tool Tool) ToolDefinition {
	return ToolDefinition{
		Name:        tool.Name(),
		Description: tool.Description(),
		Category:    CategoryOf(tool.Name()),
		Parameters:  tool.Parameters(),
	}
}
