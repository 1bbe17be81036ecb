package web

import (
	"html/template"
	"net/http"
	"sync"

	"github.com/loftlabs/loft/internal/assist"
	"github.com/loftlabs/loft/internal/chat"
	"github.com/loftlabs/loft/internal/config"
	"github.com/loftlabs/loft/internal/controller"
	"github.com/loftlabs/loft/internal/genai"
	"github.com/loftlabs/loft/internal/workspace"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	ws       *workspace.Workspace
	cfg      *config.Config
	renderer *Renderer

	// newCompleter builds the completion client; tests substitute a stub.
	newCompleter func() (genai.Completer, error)

	// The controller and assistant need an API key, so they are built on
	// first use rather than at startup. Browsing works without one.
	mu   sync.Mutex
	ctrl *controller.Controller
	asst *assist.Assistant
}

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

// chatItems builds list rows with project names resolved for display.
func (h *Handlers) chatItems(chats []chat.Chat) []ChatItem {
	names := make(map[string]string)
	for _, p := range h.ws.Projects() {
		names[p.ID] = p.Name
	}

	items := make([]ChatItem, 0, len(chats))
	for _, c := range chats {
		items = append(items, ChatItem{
			ID:          c.ID,
			Name:        c.Name,
			ProjectID:   c.ProjectID,
			ProjectName: names[c.ProjectID],
			Turns:       len(c.History),
			UpdatedAt:   c.UpdatedAt,
		})
	}
	return items
}

// HandleChatList handles GET /chats.
func (h *Handlers) HandleChatList(w http.ResponseWriter, r *http.Request) {
	h.renderer.renderPage(w, r, "chats", ChatListPageData{
		PageData: PageData{
			Title:   "Chats",
			Version: h.renderer.version,
			Nav:     "chats",
		},
		Chats:    h.chatItems(h.ws.Chats()),
		Projects: h.ws.Projects(),
	})
}

// HandleSearch handles GET /chats/search.
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	data := SearchPageData{
		PageData: PageData{
			Title:   "Search",
			Version: h.renderer.version,
			Nav:     "search",
		},
		Query:    query,
		HasQuery: query != "",
	}
	if query != "" {
		data.Chats = h.chatItems(h.ws.SearchChats(query))
	}
	h.renderer.renderPage(w, r, "search", data)
}

// HandleChatDetail handles GET /chats/{id}. Opening a chat selects it, which
// also activates its project.
func (h *Handlers) HandleChatDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.ws.SelectChat(id); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	c, err := h.ws.Chat(id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	sendErr := ""
	h.mu.Lock()
	if h.ctrl != nil {
		sendErr = h.ctrl.Err(id)
	}
	h.mu.Unlock()

	h.renderer.renderPage(w, r, "chat", ChatPageData{
		PageData: PageData{
			Title:   c.Name,
			Version: h.renderer.version,
			Nav:     "chats",
		},
		Chat:     c,
		Turns:    turnViews(c.History),
		Projects: h.ws.Projects(),
		SendErr:  sendErr,
	})
}

// HandleChatCreate handles POST /chats.
func (h *Handlers) HandleChatCreate(w http.ResponseWriter, r *http.Request) {
	id, err := h.ws.CreateChat(r.FormValue("project_id"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/chats/"+id, http.StatusSeeOther)
}

// HandleChatSend handles POST /chats/{id}/send. The request blocks until the
// stream settles. Stream failures are recorded on the chat's error state and
// shown after the redirect; anything else renders an error page.
func (h *Handlers) HandleChatSend(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	ctrl, err := h.controller()
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if err := ctrl.SendMessage(r.Context(), id, r.FormValue("message"), nil); err != nil && ctrl.Err(id) == "" {
		h.renderer.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/chats/"+id, http.StatusSeeOther)
}

// HandleChatRename handles POST /chats/{id}/rename.
func (h *Handlers) HandleChatRename(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.ws.RenameChat(id, r.FormValue("name")); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/chats/"+id, http.StatusSeeOther)
}

// HandleChatMove handles POST /chats/{id}/move. An empty project_id moves the
// chat to uncategorized.
func (h *Handlers) HandleChatMove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.ws.MoveChat(id, r.FormValue("project_id")); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/chats/"+id, http.StatusSeeOther)
}

// HandleChatDelete handles POST /chats/{id}/delete.
func (h *Handlers) HandleChatDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.ws.DeleteChat(r.PathValue("id")); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/chats", http.StatusSeeOther)
}

// HandleProjectList handles GET /projects.
func (h *Handlers) HandleProjectList(w http.ResponseWriter, r *http.Request) {
	projects := h.ws.Projects()

	items := make([]ProjectItem, 0, len(projects))
	for _, p := range projects {
		items = append(items, ProjectItem{
			ID:        p.ID,
			Name:      p.Name,
			Chats:     len(h.ws.ProjectChats(p.ID)),
			UpdatedAt: p.UpdatedAt,
		})
	}

	h.renderer.renderPage(w, r, "projects", ProjectListPageData{
		PageData: PageData{
			Title:   "Projects",
			Version: h.renderer.version,
			Nav:     "projects",
		},
		Projects: items,
	})
}

// HandleProjectDetail handles GET /projects/{id}: the project hub with
// instructions, member chats, and the AI workflow results.
func (h *Handlers) HandleProjectDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.ws.SelectProject(id); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	p, err := h.ws.Project(id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	var analysisHTML template.HTML
	if p.Analysis != nil && p.Analysis.UIUXStrategy != "" {
		analysisHTML = renderMarkdown(p.Analysis.UIUXStrategy)
	}

	h.renderer.renderPage(w, r, "project", ProjectPageData{
		PageData: PageData{
			Title:   p.Name,
			Version: h.renderer.version,
			Nav:     "projects",
		},
		Project:      p,
		Chats:        h.chatItems(h.ws.ProjectChats(id)),
		AnalysisHTML: analysisHTML,
	})
}

// HandleProjectCreate handles POST /projects.
func (h *Handlers) HandleProjectCreate(w http.ResponseWriter, r *http.Request) {
	id, err := h.ws.CreateProject(r.FormValue("name"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/projects/"+id, http.StatusSeeOther)
}

// HandleProjectRename handles POST /projects/{id}/rename.
func (h *Handlers) HandleProjectRename(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.ws.RenameProject(id, r.FormValue("name")); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/projects/"+id, http.StatusSeeOther)
}

// HandleProjectDelete handles POST /projects/{id}/delete. Member chats are
// deleted with the project.
func (h *Handlers) HandleProjectDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.ws.DeleteProject(r.PathValue("id")); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/projects", http.StatusSeeOther)
}

// HandleProjectInstructions handles POST /projects/{id}/instructions.
func (h *Handlers) HandleProjectInstructions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.ws.SetProjectInstructions(id, r.FormValue("instructions")); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/projects/"+id, http.StatusSeeOther)
}

// HandleProjectBrainstorm handles POST /projects/{id}/brainstorm.
func (h *Handlers) HandleProjectBrainstorm(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	asst, err := h.assistant()
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if _, err := asst.BrainstormFeatures(r.Context(), id, r.FormValue("idea")); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/projects/"+id, http.StatusSeeOther)
}

// HandleProjectComponent handles POST /projects/{id}/component.
func (h *Handlers) HandleProjectComponent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	asst, err := h.assistant()
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if _, err := asst.GenerateComponent(r.Context(), id, r.FormValue("description")); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/projects/"+id, http.StatusSeeOther)
}

// HandleProjectAnalyze handles POST /projects/{id}/analyze.
func (h *Handlers) HandleProjectAnalyze(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	asst, err := h.assistant()
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if _, err := asst.AnalyzeProject(r.Context(), id); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/projects/"+id, http.StatusSeeOther)
}
