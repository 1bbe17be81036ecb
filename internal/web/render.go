package web

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/loftlabs/loft/internal/chat"
	"github.com/loftlabs/loft/internal/errors"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title   string
	Version string
	Nav     string // active nav item: "chats", "projects", "search"
}

// ChatListPageData is the template data for the chat list page.
type ChatListPageData struct {
	PageData
	Chats    []ChatItem
	Projects []chat.Project
}

// ChatItem is one chat row in lists and search results.
type ChatItem struct {
	ID          string
	Name        string
	ProjectID   string
	ProjectName string
	Turns       int
	UpdatedAt   int64
}

// ChatPageData is the template data for the chat detail page.
type ChatPageData struct {
	PageData
	Chat     chat.Chat
	Turns    []TurnView
	Projects []chat.Project
	SendErr  string
}

// TurnView is one rendered turn in the chat log.
type TurnView struct {
	Role        string
	HTML        template.HTML
	Attachments []string // MIME types of binary parts
}

// SearchPageData is the template data for the search page.
type SearchPageData struct {
	PageData
	Query    string
	Chats    []ChatItem
	HasQuery bool
}

// ProjectListPageData is the template data for the project list page.
type ProjectListPageData struct {
	PageData
	Projects []ProjectItem
}

// ProjectItem is one project row in the project list.
type ProjectItem struct {
	ID        string
	Name      string
	Chats     int
	UpdatedAt int64
}

// ProjectPageData is the template data for the project hub page.
type ProjectPageData struct {
	PageData
	Project      chat.Project
	Chats        []ChatItem
	AnalysisHTML template.HTML
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	version   string
}

// NewRenderer creates a Renderer by parsing templates from the given FS.
func NewRenderer(templateFS fs.FS, version string) *Renderer {
	funcMap := template.FuncMap{
		"formatTime": formatTime,
	}

	// Parse layout as the base template
	layoutTmpl := template.Must(template.New("layout").Funcs(funcMap).ParseFS(templateFS, "layout.html"))

	pages := map[string]string{
		"chats":    "chats.html",
		"chat":     "chat.html",
		"search":   "search.html",
		"projects": "projects.html",
		"project":  "project.html",
		"error":    "error.html",
	}

	templates := make(map[string]*template.Template, len(pages))
	for name, file := range pages {
		t := template.Must(layoutTmpl.Clone())
		template.Must(t.ParseFS(templateFS, file))
		templates[name] = t
	}

	return &Renderer{
		templates: templates,
		version:   version,
	}
}

// renderPage renders a named page template with the given data and HTTP 200 status.
func (r *Renderer) renderPage(w http.ResponseWriter, req *http.Request, name string, data any) {
	r.renderPageStatus(w, req, http.StatusOK, name, data)
}

// renderPageStatus renders a named page template with the given data and HTTP status code.
func (r *Renderer) renderPageStatus(w http.ResponseWriter, req *http.Request, status int, name string, data any) {
	t, ok := r.templates[name]
	if !ok {
		log.Printf("template %q not found", name)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		log.Printf("template execution error: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderError renders an error response with content negotiation.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	var lErr *errors.LoftError
	if !stderrors.As(err, &lErr) {
		lErr = errors.NewInternal(err)
	}

	status := lErr.Status
	message := lErr.Message

	if strings.Contains(req.Header.Get("Accept"), "application/json") {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"code":    string(lErr.Code),
				"message": message,
				"status":  status,
			},
		})
		return
	}

	r.renderPageStatus(w, req, status, "error", ErrorPageData{
		PageData: PageData{
			Title:   fmt.Sprintf("Error %d", status),
			Version: r.version,
		},
		StatusCode: status,
		Message:    message,
	})
}

// renderMarkdown converts markdown text to HTML using goldmark.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// turnViews renders a chat history for display: markdown for text content,
// MIME labels for binary parts.
func turnViews(history []chat.Turn) []TurnView {
	views := make([]TurnView, 0, len(history))
	for _, t := range history {
		v := TurnView{Role: string(t.Role)}
		if text := t.Text(); text != "" {
			v.HTML = renderMarkdown(text)
		}
		for _, p := range t.Parts {
			if p.Inline != nil {
				v.Attachments = append(v.Attachments, p.Inline.MIMEType)
			}
		}
		views = append(views, v)
	}
	return views
}

// formatTime formats a Unix timestamp as "2006-01-02 15:04" UTC.
func formatTime(unix int64) string {
	return time.Unix(unix, 0).UTC().Format("2006-01-02 15:04")
}
