package mcp

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/loftlabs/loft/internal/assist"
	"github.com/loftlabs/loft/internal/chat"
	"github.com/loftlabs/loft/internal/config"
	"github.com/loftlabs/loft/internal/controller"
	"github.com/loftlabs/loft/internal/errors"
	"github.com/loftlabs/loft/internal/export"
	"github.com/loftlabs/loft/internal/genai"
	"github.com/loftlabs/loft/internal/workspace"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	ws      *workspace.Workspace
	cfg     *config.Config
	baseDir string

	// newCompleter builds the completion client; overridable in tests.
	newCompleter func() (genai.Completer, error)

	// The controller and assistant are created on first use so CRUD tools
	// keep working when no API key is configured.
	mu   sync.Mutex
	ctrl *controller.Controller
	asst *assist.Assistant
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(ws *workspace.Workspace, cfg *config.Config, baseDir string) *Handlers {
	h := &Handlers{ws: ws, cfg: cfg, baseDir: baseDir}
	h.newCompleter = func() (genai.Completer, error) { return genai.NewClient(cfg) }
	return h
}

// controller returns the shared send controller, creating it on first use.
func (h *Handlers) controller() (*controller.Controller, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctrl == nil {
		completer, err := h.newCompleter()
		if err != nil {
			return nil, err
		}
		h.ctrl = controller.New(h.ws, completer, h.cfg)
	}
	return h.ctrl, nil
}

// assistant returns the shared assistant, creating it on first use.
func (h *Handlers) assistant() (*assist.Assistant, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.asst == nil {
		completer, err := h.newCompleter()
		if err != nil {
			return nil, err
		}
		h.asst = assist.New(h.ws, completer)
	}
	return h.asst, nil
}

// Request types for each tool

// ChatCreateRequest represents the arguments for chat_create.
type ChatCreateRequest struct {
	ProjectID string `json:"project_id,omitempty"`
}

// ChatRefRequest identifies a chat by id.
type ChatRefRequest struct {
	ID string `json:"id"`
}

// ChatRenameRequest represents the arguments for chat_rename.
type ChatRenameRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ChatMoveRequest represents the arguments for chat_move.
type ChatMoveRequest struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id,omitempty"`
}

// ChatListRequest represents the arguments for chat_list.
type ChatListRequest struct {
	ProjectID string `json:"project_id,omitempty"`
}

// ChatSearchRequest represents the arguments for chat_search.
type ChatSearchRequest struct {
	Query string `json:"query"`
}

// ChatSendRequest represents the arguments for chat_send.
type ChatSendRequest struct {
	ChatID  string `json:"chat_id"`
	Message string `json:"message"`
}

// ChatExportRequest represents the arguments for chat_export.
type ChatExportRequest struct {
	Path      string `json:"path,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
}

// ChatImportRequest represents the arguments for chat_import.
type ChatImportRequest struct {
	Path string `json:"path"`
}

// ProjectCreateRequest represents the arguments for project_create.
type ProjectCreateRequest struct {
	Name string `json:"name"`
}

// ProjectRefRequest identifies a project by id.
type ProjectRefRequest struct {
	ID string `json:"id"`
}

// ProjectRenameRequest represents the arguments for project_rename.
type ProjectRenameRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ProjectSetInstructionsRequest represents the arguments for project_set_instructions.
type ProjectSetInstructionsRequest struct {
	ID           string `json:"id"`
	Instructions string `json:"instructions"`
}

// ProjectBrainstormRequest represents the arguments for project_brainstorm.
type ProjectBrainstormRequest struct {
	ID   string `json:"id"`
	Idea string `json:"idea"`
}

// ProjectComponentRequest represents the arguments for project_component.
type ProjectComponentRequest struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Handler implementations

// HandleChatCreate handles the chat_create tool call.
func (h *Handlers) HandleChatCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ChatCreateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	id, err := h.ws.CreateChat(input.ProjectID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"id": id})
}

// HandleChatDelete handles the chat_delete tool call.
func (h *Handlers) HandleChatDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ChatRefRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	if err := h.ws.DeleteChat(input.ID); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"deleted": input.ID})
}

// HandleChatRename handles the chat_rename tool call.
func (h *Handlers) HandleChatRename(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ChatRenameRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	if err := h.ws.RenameChat(input.ID, input.Name); err != nil {
		return errorResult(err), nil
	}
	c, err := h.ws.Chat(input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"id": c.ID, "name": c.Name})
}

// HandleChatMove handles the chat_move tool call.
func (h *Handlers) HandleChatMove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ChatMoveRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	if err := h.ws.MoveChat(input.ID, input.ProjectID); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"id": input.ID, "project_id": input.ProjectID})
}

// HandleChatGet handles the chat_get tool call.
func (h *Handlers) HandleChatGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ChatRefRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	c, err := h.ws.Chat(input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(c)
}

// HandleChatList handles the chat_list tool call.
func (h *Handlers) HandleChatList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ChatListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	var chats []chat.Chat
	if input.ProjectID != "" {
		if _, err := h.ws.Project(input.ProjectID); err != nil {
			return errorResult(err), nil
		}
		chats = h.ws.ProjectChats(input.ProjectID)
	} else {
		chats = h.ws.Chats()
	}
	return successResult(map[string]any{"chats": chatSummaries(chats), "count": len(chats)})
}

// HandleChatSearch handles the chat_search tool call.
func (h *Handlers) HandleChatSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ChatSearchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Query == "" {
		return errorResult(errors.NewInvalidRequest("query is required")), nil
	}

	chats := h.ws.SearchChats(input.Query)
	return successResult(map[string]any{"chats": chatSummaries(chats), "count": len(chats)})
}

// HandleChatSend handles the chat_send tool call. It blocks until the stream
// settles and returns the complete reply text.
func (h *Handlers) HandleChatSend(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ChatSendRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Message == "" {
		return errorResult(errors.NewInvalidRequest("message is required")), nil
	}

	ctrl, err := h.controller()
	if err != nil {
		return errorResult(err), nil
	}
	if err := ctrl.SendMessage(ctx, input.ChatID, input.Message, nil); err != nil {
		return errorResult(err), nil
	}

	c, err := h.ws.Chat(input.ChatID)
	if err != nil {
		return errorResult(err), nil
	}
	reply := ""
	if len(c.History) > 0 {
		reply = c.History[len(c.History)-1].Text()
	}
	return successResult(map[string]any{"chat_id": input.ChatID, "reply": reply})
}

// HandleChatExport handles the chat_export tool call.
func (h *Handlers) HandleChatExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ChatExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := export.Export(h.ws, h.cfg, h.baseDir, export.Input{
		Path:      input.Path,
		ProjectID: input.ProjectID,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleChatImport handles the chat_import tool call.
func (h *Handlers) HandleChatImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ChatImportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := export.Import(h.ws, h.cfg, h.baseDir, export.ImportInput{Path: input.Path})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleProjectCreate handles the project_create tool call.
func (h *Handlers) HandleProjectCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProjectCreateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	id, err := h.ws.CreateProject(input.Name)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"id": id, "name": input.Name})
}

// HandleProjectDelete handles the project_delete tool call.
func (h *Handlers) HandleProjectDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProjectRefRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	if err := h.ws.DeleteProject(input.ID); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"deleted": input.ID})
}

// HandleProjectRename handles the project_rename tool call.
func (h *Handlers) HandleProjectRename(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProjectRenameRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	if err := h.ws.RenameProject(input.ID, input.Name); err != nil {
		return errorResult(err), nil
	}
	p, err := h.ws.Project(input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"id": p.ID, "name": p.Name})
}

// HandleProjectGet handles the project_get tool call.
func (h *Handlers) HandleProjectGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProjectRefRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	p, err := h.ws.Project(input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(p)
}

// HandleProjectList handles the project_list tool call.
func (h *Handlers) HandleProjectList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects := h.ws.Projects()

	type summary struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Chats int    `json:"chats"`
	}
	out := make([]summary, 0, len(projects))
	for _, p := range projects {
		out = append(out, summary{ID: p.ID, Name: p.Name, Chats: len(h.ws.ProjectChats(p.ID))})
	}
	return successResult(map[string]any{"projects": out, "count": len(out)})
}

// HandleProjectSetInstructions handles the project_set_instructions tool call.
func (h *Handlers) HandleProjectSetInstructions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProjectSetInstructionsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	if err := h.ws.SetProjectInstructions(input.ID, input.Instructions); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"id": input.ID})
}

// HandleProjectBrainstorm handles the project_brainstorm tool call.
func (h *Handlers) HandleProjectBrainstorm(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProjectBrainstormRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	asst, err := h.assistant()
	if err != nil {
		return errorResult(err), nil
	}
	features, err := asst.BrainstormFeatures(ctx, input.ID, input.Idea)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"project_id": input.ID, "features": features})
}

// HandleProjectComponent handles the project_component tool call.
func (h *Handlers) HandleProjectComponent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProjectComponentRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	asst, err := h.assistant()
	if err != nil {
		return errorResult(err), nil
	}
	comp, err := asst.GenerateComponent(ctx, input.ID, input.Description)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(comp)
}

// HandleProjectAnalyze handles the project_analyze tool call.
func (h *Handlers) HandleProjectAnalyze(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProjectRefRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	asst, err := h.assistant()
	if err != nil {
		return errorResult(err), nil
	}
	analysis, err := asst.AnalyzeProject(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(analysis)
}

// chatSummary is the per-chat shape returned by list and search tools.
type chatSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ProjectID string `json:"project_id,omitempty"`
	Turns     int    `json:"turns"`
	UpdatedAt int64  `json:"updated_at"`
}

func chatSummaries(chats []chat.Chat) []chatSummary {
	out := make([]chatSummary, 0, len(chats))
	for _, c := range chats {
		out = append(out, chatSummary{
			ID:        c.ID,
			Name:      c.Name,
			ProjectID: c.ProjectID,
			Turns:     len(c.History),
			UpdatedAt: c.UpdatedAt,
		})
	}
	return out
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if loftErr, ok := err.(*errors.LoftError); ok {
		errorObj := map[string]any{
			"code":    loftErr.Code,
			"message": loftErr.Message,
			"status":  loftErr.Status,
		}
		if loftErr.Code != errors.ErrInternal && loftErr.Details != nil {
			errorObj["details"] = loftErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
