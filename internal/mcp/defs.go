package mcp

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions. Names follow the pattern "type_action" so whole types
// can be disabled at once via disabled_types.

var chatCreateToolDef = mcp.NewTool("chat_create",
	mcp.WithDescription("Create a new chat, optionally inside a project. The new chat becomes active."),
	mcp.WithString("project_id", mcp.Description("Project to create the chat in (omit for uncategorized)")),
)

var chatDeleteToolDef = mcp.NewTool("chat_delete",
	mcp.WithDescription("Delete a chat and its history."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Chat id")),
)

var chatRenameToolDef = mcp.NewTool("chat_rename",
	mcp.WithDescription("Rename a chat. A blank name leaves the current name unchanged."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Chat id")),
	mcp.WithString("name", mcp.Required(), mcp.Description("New display name")),
)

var chatMoveToolDef = mcp.NewTool("chat_move",
	mcp.WithDescription("Move a chat into a project, or out of all projects."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Chat id")),
	mcp.WithString("project_id", mcp.Description("Destination project id (omit to uncategorize)")),
)

var chatGetToolDef = mcp.NewTool("chat_get",
	mcp.WithDescription("Fetch a chat including its full turn history."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Chat id")),
)

var chatListToolDef = mcp.NewTool("chat_list",
	mcp.WithDescription("List chats, most recent first, optionally filtered by project."),
	mcp.WithString("project_id", mcp.Description("Only list chats in this project")),
)

var chatSearchToolDef = mcp.NewTool("chat_search",
	mcp.WithDescription("Search chats by name and message content, case-insensitively."),
	mcp.WithString("query", mcp.Required(), mcp.Description("Search text")),
)

var chatSendToolDef = mcp.NewTool("chat_send",
	mcp.WithDescription("Send a message to a chat and return the model's complete reply. The exchange is appended to the chat's history."),
	mcp.WithString("chat_id", mcp.Required(), mcp.Description("Chat id")),
	mcp.WithString("message", mcp.Required(), mcp.Description("User message text")),
)

var chatExportToolDef = mcp.NewTool("chat_export",
	mcp.WithDescription("Export chats to a JSONL file, optionally restricted to one project."),
	mcp.WithString("path", mcp.Description("Destination .jsonl path (default: the exports directory)")),
	mcp.WithString("project_id", mcp.Description("Only export chats in this project")),
)

var chatImportToolDef = mcp.NewTool("chat_import",
	mcp.WithDescription("Import chats from a JSONL export file. Existing chat ids are skipped."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Source .jsonl path")),
)

var projectCreateToolDef = mcp.NewTool("project_create",
	mcp.WithDescription("Create a new project. The new project becomes active."),
	mcp.WithString("name", mcp.Required(), mcp.Description("Project name")),
)

var projectDeleteToolDef = mcp.NewTool("project_delete",
	mcp.WithDescription("Delete a project and every chat inside it."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Project id")),
)

var projectRenameToolDef = mcp.NewTool("project_rename",
	mcp.WithDescription("Rename a project. A blank name leaves the current name unchanged."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Project id")),
	mcp.WithString("name", mcp.Required(), mcp.Description("New display name")),
)

var projectGetToolDef = mcp.NewTool("project_get",
	mcp.WithDescription("Fetch a project including its instructions, features, components and analysis."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Project id")),
)

var projectListToolDef = mcp.NewTool("project_list",
	mcp.WithDescription("List projects, most recent first."),
)

var projectSetInstructionsToolDef = mcp.NewTool("project_set_instructions",
	mcp.WithDescription("Set a project's custom instructions. They are injected into every member chat's prompt."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Project id")),
	mcp.WithString("instructions", mcp.Required(), mcp.Description("Instruction text (empty clears them)")),
)

var projectBrainstormToolDef = mcp.NewTool("project_brainstorm",
	mcp.WithDescription("Brainstorm a feature list for a product idea and store it on the project."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Project id")),
	mcp.WithString("idea", mcp.Required(), mcp.Description("Product idea to brainstorm from")),
)

var projectComponentToolDef = mcp.NewTool("project_component",
	mcp.WithDescription("Generate an HTML/CSS UI component from a description and save it to the project."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Project id")),
	mcp.WithString("description", mcp.Required(), mcp.Description("Component description")),
)

var projectAnalyzeToolDef = mcp.NewTool("project_analyze",
	mcp.WithDescription("Generate a tech-stack and competitor analysis for the project's problem statement."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Project id")),
)
