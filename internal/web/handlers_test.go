package web

import (
	"context"
	"encoding/json"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/loftlabs/loft/internal/chat"
	"github.com/loftlabs/loft/internal/config"
	"github.com/loftlabs/loft/internal/controller"
	"github.com/loftlabs/loft/internal/errors"
	"github.com/loftlabs/loft/internal/genai"
	"github.com/loftlabs/loft/internal/store"
	"github.com/loftlabs/loft/internal/workspace"
)

// stubCompleter answers streams with fixed chunks and JSON calls with a
// canned document.
type stubCompleter struct {
	chunks  []string
	jsonDoc string
	err     error
}

func (s *stubCompleter) StreamGenerate(ctx context.Context, instruction string, history []chat.Turn, cb genai.StreamCallback) error {
	if s.err != nil {
		return s.err
	}
	for _, c := range s.chunks {
		cb(c)
	}
	return nil
}

func (s *stubCompleter) GenerateJSON(ctx context.Context, instruction, userText string, out any) error {
	if s.err != nil {
		return s.err
	}
	return json.Unmarshal([]byte(s.jsonDoc), out)
}

// newTestHandlers builds Handlers directly, bypassing NewServer, so the
// completer can be stubbed.
func newTestHandlers(t *testing.T, stub *stubCompleter) (*Handlers, *workspace.Workspace) {
	t.Helper()

	baseDir := t.TempDir()
	db, err := store.Init(baseDir)
	if err != nil {
		t.Fatalf("failed to init store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.DefaultConfig()
	cfg.SeedSample = true

	ws, err := workspace.Load(db, cfg)
	if err != nil {
		t.Fatalf("failed to load workspace: %v", err)
	}

	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		t.Fatalf("failed to open templates: %v", err)
	}

	h := &Handlers{
		ws:       ws,
		cfg:      cfg,
		renderer: NewRenderer(templateSub, "test"),
	}
	h.newCompleter = func() (genai.Completer, error) {
		if stub == nil {
			return nil, errors.NewMissingAPIKey(cfg.APIKeyEnv)
		}
		return stub, nil
	}
	return h, ws
}

func postForm(t *testing.T, h http.HandlerFunc, target string, values url.Values, pathID string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if pathID != "" {
		req.SetPathValue("id", pathID)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func getPage(t *testing.T, h http.HandlerFunc, target, pathID string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	if pathID != "" {
		req.SetPathValue("id", pathID)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestHandleChatListRendersSeededChat(t *testing.T) {
	h, _ := newTestHandlers(t, nil)

	rec := getPage(t, h.HandleChatList, "/chats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Main Chat") {
		t.Errorf("expected seeded chat in list, got:\n%s", body)
	}
}

func TestHandleChatCreateRedirectsToChat(t *testing.T) {
	h, ws := newTestHandlers(t, nil)

	rec := postForm(t, h.HandleChatCreate, "/chats", url.Values{}, "")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}

	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "/chats/") {
		t.Fatalf("expected redirect to chat, got %q", loc)
	}
	id := strings.TrimPrefix(loc, "/chats/")
	if _, err := ws.Chat(id); err != nil {
		t.Errorf("created chat not found: %v", err)
	}
}

func TestHandleChatDetailSelectsChat(t *testing.T) {
	h, ws := newTestHandlers(t, nil)

	id, err := ws.CreateChat("")
	if err != nil {
		t.Fatalf("failed to create chat: %v", err)
	}
	ws.ClearActiveChat()

	rec := getPage(t, h.HandleChatDetail, "/chats/"+id, id)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ws.ActiveChatID() != id {
		t.Errorf("expected chat %s active after viewing, got %q", id, ws.ActiveChatID())
	}
}

func TestHandleChatDetailUnknownChat(t *testing.T) {
	h, _ := newTestHandlers(t, nil)

	rec := getPage(t, h.HandleChatDetail, "/chats/nope", "nope")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandleChatDetailJSONError(t *testing.T) {
	h, _ := newTestHandlers(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/chats/nope", nil)
	req.SetPathValue("id", "nope")
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.HandleChatDetail(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON error body: %v", err)
	}
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error object, got %v", body)
	}
	if errObj["code"] != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND code, got %v", errObj["code"])
	}
}

func TestHandleChatSendAppendsReply(t *testing.T) {
	stub := &stubCompleter{chunks: []string{"Hel", "lo!"}}
	h, ws := newTestHandlers(t, stub)

	id, err := ws.CreateChat("")
	if err != nil {
		t.Fatalf("failed to create chat: %v", err)
	}

	rec := postForm(t, h.HandleChatSend, "/chats/"+id+"/send", url.Values{"message": {"Hi there"}}, id)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d: %s", rec.Code, rec.Body.String())
	}

	c, err := ws.Chat(id)
	if err != nil {
		t.Fatalf("failed to get chat: %v", err)
	}
	if len(c.History) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(c.History))
	}
	if got := c.History[1].Text(); got != "Hello!" {
		t.Errorf("expected reply %q, got %q", "Hello!", got)
	}
}

func TestHandleChatSendFailureShowsError(t *testing.T) {
	stub := &stubCompleter{err: io.ErrUnexpectedEOF}
	h, ws := newTestHandlers(t, stub)

	id, err := ws.CreateChat("")
	if err != nil {
		t.Fatalf("failed to create chat: %v", err)
	}

	rec := postForm(t, h.HandleChatSend, "/chats/"+id+"/send", url.Values{"message": {"Hi"}}, id)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303 after failed send, got %d", rec.Code)
	}

	// Both turns rolled back
	c, err := ws.Chat(id)
	if err != nil {
		t.Fatalf("failed to get chat: %v", err)
	}
	if len(c.History) != 0 {
		t.Errorf("expected rollback, got %d turns", len(c.History))
	}

	// Error surfaces on the chat page after redirect
	rec = getPage(t, h.HandleChatDetail, "/chats/"+id, id)
	if !strings.Contains(rec.Body.String(), controller.SendFailedMessage) {
		t.Errorf("expected send error on chat page")
	}
}

func TestHandleChatRenameMoveDelete(t *testing.T) {
	h, ws := newTestHandlers(t, nil)

	pid, err := ws.CreateProject("Migration")
	if err != nil {
		t.Fatalf("failed to create project: %v", err)
	}
	id, err := ws.CreateChat("")
	if err != nil {
		t.Fatalf("failed to create chat: %v", err)
	}

	rec := postForm(t, h.HandleChatRename, "/chats/"+id+"/rename", url.Values{"name": {"Renamed"}}, id)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("rename: expected 303, got %d", rec.Code)
	}
	rec = postForm(t, h.HandleChatMove, "/chats/"+id+"/move", url.Values{"project_id": {pid}}, id)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("move: expected 303, got %d", rec.Code)
	}

	c, err := ws.Chat(id)
	if err != nil {
		t.Fatalf("failed to get chat: %v", err)
	}
	if c.Name != "Renamed" || c.ProjectID != pid {
		t.Errorf("expected renamed chat in project, got name=%q project=%q", c.Name, c.ProjectID)
	}

	rec = postForm(t, h.HandleChatDelete, "/chats/"+id+"/delete", url.Values{}, id)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("delete: expected 303, got %d", rec.Code)
	}
	if _, err := ws.Chat(id); err == nil {
		t.Error("expected chat gone after delete")
	}
}

func TestHandleProjectLifecycle(t *testing.T) {
	h, ws := newTestHandlers(t, nil)

	rec := postForm(t, h.HandleProjectCreate, "/projects", url.Values{"name": {"Atlas"}}, "")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("create: expected 303, got %d", rec.Code)
	}
	pid := strings.TrimPrefix(rec.Header().Get("Location"), "/projects/")

	rec = postForm(t, h.HandleProjectInstructions, "/projects/"+pid+"/instructions", url.Values{"instructions": {"Use Go."}}, pid)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("instructions: expected 303, got %d", rec.Code)
	}

	p, err := ws.Project(pid)
	if err != nil {
		t.Fatalf("failed to get project: %v", err)
	}
	if p.Instructions != "Use Go." {
		t.Errorf("expected instructions saved, got %q", p.Instructions)
	}

	rec = getPage(t, h.HandleProjectDetail, "/projects/"+pid, pid)
	if rec.Code != http.StatusOK {
		t.Fatalf("detail: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Atlas") {
		t.Error("expected project name on page")
	}

	rec = postForm(t, h.HandleProjectDelete, "/projects/"+pid+"/delete", url.Values{}, pid)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("delete: expected 303, got %d", rec.Code)
	}
	if _, err := ws.Project(pid); err == nil {
		t.Error("expected project gone after delete")
	}
}

func TestHandleProjectBrainstorm(t *testing.T) {
	stub := &stubCompleter{jsonDoc: `{
		"problem_statement": "A habit tracker for teams.",
		"features": [{"text": "Daily streaks", "is_mvp": true, "priority": "high"}]
	}`}
	h, ws := newTestHandlers(t, stub)

	pid, err := ws.CreateProject("Habits")
	if err != nil {
		t.Fatalf("failed to create project: %v", err)
	}

	rec := postForm(t, h.HandleProjectBrainstorm, "/projects/"+pid+"/brainstorm", url.Values{"idea": {"team habit tracker"}}, pid)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d: %s", rec.Code, rec.Body.String())
	}

	p, err := ws.Project(pid)
	if err != nil {
		t.Fatalf("failed to get project: %v", err)
	}
	if len(p.Features) != 1 || p.Features[0].Text != "Daily streaks" {
		t.Errorf("expected brainstormed feature saved, got %+v", p.Features)
	}

	rec = getPage(t, h.HandleProjectDetail, "/projects/"+pid, pid)
	if !strings.Contains(rec.Body.String(), "Daily streaks") {
		t.Error("expected feature on project page")
	}
}

func TestHandleSearch(t *testing.T) {
	h, ws := newTestHandlers(t, nil)

	id, err := ws.CreateChat("")
	if err != nil {
		t.Fatalf("failed to create chat: %v", err)
	}
	if err := ws.RenameChat(id, "Deployment Notes"); err != nil {
		t.Fatalf("failed to rename chat: %v", err)
	}

	rec := getPage(t, h.HandleSearch, "/chats/search?q=deployment", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Deployment Notes") {
		t.Error("expected matching chat in results")
	}

	rec = getPage(t, h.HandleSearch, "/chats/search?q=zzzznomatch", "")
	if !strings.Contains(rec.Body.String(), "No chats match") {
		t.Error("expected empty-result message")
	}
}

func TestServerRoutesAndSecurityHeaders(t *testing.T) {
	baseDir := t.TempDir()
	db, err := store.Init(baseDir)
	if err != nil {
		t.Fatalf("failed to init store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.DefaultConfig()
	ws, err := workspace.Load(db, cfg)
	if err != nil {
		t.Fatalf("failed to load workspace: %v", err)
	}

	srv := NewServer(ws, cfg, "test", "127.0.0.1", 0)

	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("expected X-Frame-Options header")
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("expected Content-Security-Policy header")
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/chats" {
		t.Errorf("expected root redirect to /chats, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}
