package mcp

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/loftlabs/loft/internal/config"
	"github.com/loftlabs/loft/internal/workspace"
)

// KnownTypes lists all valid tool type prefixes.
var KnownTypes = []string{"chat", "project"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"chat_create": {
		def:     chatCreateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChatCreate },
	},
	"chat_delete": {
		def:     chatDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChatDelete },
	},
	"chat_rename": {
		def:     chatRenameToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChatRename },
	},
	"chat_move": {
		def:     chatMoveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChatMove },
	},
	"chat_get": {
		def:     chatGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChatGet },
	},
	"chat_list": {
		def:     chatListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChatList },
	},
	"chat_search": {
		def:     chatSearchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChatSearch },
	},
	"chat_send": {
		def:     chatSendToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChatSend },
	},
	"chat_export": {
		def:     chatExportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChatExport },
	},
	"chat_import": {
		def:     chatImportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChatImport },
	},
	"project_create": {
		def:     projectCreateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProjectCreate },
	},
	"project_delete": {
		def:     projectDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProjectDelete },
	},
	"project_rename": {
		def:     projectRenameToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProjectRename },
	},
	"project_get": {
		def:     projectGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProjectGet },
	},
	"project_list": {
		def:     projectListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProjectList },
	},
	"project_set_instructions": {
		def:     projectSetInstructionsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProjectSetInstructions },
	},
	"project_brainstorm": {
		def:     projectBrainstormToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProjectBrainstorm },
	},
	"project_component": {
		def:     projectComponentToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProjectComponent },
	},
	"project_analyze": {
		def:     projectAnalyzeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProjectAnalyze },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "chat_send" → "chat").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	return tools
}

// NewServer creates a new MCP server with Loft tools registered.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration.
func NewServer(ws *workspace.Workspace, cfg *config.Config, baseDir, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"loft",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(ws, cfg, baseDir)

	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(ws *workspace.Workspace, cfg *config.Config, baseDir, version string) error {
	s := NewServer(ws, cfg, baseDir, version)
	return server.ServeStdio(s)
}
