// Package workspace is the single source of truth for chats and projects.
// All mutations go through it so the referential invariants hold: every
// mutation completes synchronously under one lock and persists before
// returning, so no intermediate state is observable by other callers.
package workspace

import (
	"crypto/rand"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/loftlabs/loft/internal/chat"
	"github.com/loftlabs/loft/internal/config"
	"github.com/loftlabs/loft/internal/errors"
	"github.com/loftlabs/loft/internal/store"
)

// Workspace owns the in-memory chat and project collections and the active
// selection. Collections are ordered most-recent-first. The active selection
// is process state and is never persisted.
type Workspace struct {
	mu sync.Mutex
	db *sql.DB

	chats    []chat.Chat
	projects []chat.Project

	activeChatID    string
	activeProjectID string

	// turnStates tracks each chat's pending-turn lifecycle (see TurnState).
	turnStates map[string]TurnState
}

// Load reads both collections from the store once and returns a ready
// workspace. An empty store is seeded with a sample project and chat when the
// config asks for it.
func Load(db *sql.DB, cfg *config.Config) (*Workspace, error) {
	chats, err := store.LoadChats(db)
	if err != nil {
		return nil, err
	}
	projects, err := store.LoadProjects(db)
	if err != nil {
		return nil, err
	}

	w := &Workspace{
		db:         db,
		chats:      chats,
		projects:   projects,
		turnStates: make(map[string]TurnState),
	}

	if cfg != nil && cfg.SeedSample {
		has, err := store.HasData(db)
		if err != nil {
			return nil, err
		}
		if !has {
			if err := w.seedSample(); err != nil {
				return nil, err
			}
		}
	}

	return w, nil
}

// seedSample populates an example project with one chat, mirroring a fresh
// demo install.
func (w *Workspace) seedSample() error {
	projectID, err := generateULID()
	if err != nil {
		return errors.NewInternal(err)
	}
	chatID, err := generateULID()
	if err != nil {
		return errors.NewInternal(err)
	}

	now := time.Now().Unix()
	w.projects = []chat.Project{{
		ID:        projectID,
		Name:      "spark-quest-stride",
		CreatedAt: now,
		UpdatedAt: now,
	}}
	w.chats = []chat.Chat{{
		ID:        chatID,
		Name:      "Main Chat",
		ProjectID: projectID,
		History: []chat.Turn{
			chat.NewModelTurn("I'll create a Pomodoro timer screen with navigation and routing."),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}}
	w.activeChatID = chatID
	w.activeProjectID = projectID

	return w.persist()
}

// persist writes both collections through to the store.
// Callers must hold w.mu.
func (w *Workspace) persist() error {
	if err := store.SaveChats(w.db, w.chats); err != nil {
		return err
	}
	return store.SaveProjects(w.db, w.projects)
}

// generateULID generates a new ULID.
func generateULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// chatIndex returns the position of a chat by id, or -1.
// Callers must hold w.mu.
func (w *Workspace) chatIndex(id string) int {
	for i := range w.chats {
		if w.chats[i].ID == id {
			return i
		}
	}
	return -1
}

// projectIndex returns the position of a project by id, or -1.
// Callers must hold w.mu.
func (w *Workspace) projectIndex(id string) int {
	for i := range w.projects {
		if w.projects[i].ID == id {
			return i
		}
	}
	return -1
}

// CreateChat allocates a new chat with empty history, inserts it at the front
// of the collection, and makes it (and its project, if any) active.
func (w *Workspace) CreateChat(projectID string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if projectID != "" && w.projectIndex(projectID) < 0 {
		return "", errors.NewNotFound("project", projectID)
	}

	id, err := generateULID()
	if err != nil {
		return "", errors.NewInternal(err)
	}

	now := time.Now().Unix()
	c := chat.Chat{
		ID:        id,
		Name:      chat.DefaultChatName,
		History:   []chat.Turn{},
		ProjectID: projectID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	w.chats = append([]chat.Chat{c}, w.chats...)
	w.activeChatID = id
	w.activeProjectID = projectID

	if err := w.persist(); err != nil {
		return "", err
	}
	return id, nil
}

// DeleteChat removes a chat. Deleting the active chat clears the active-chat
// selection; the active project is untouched.
func (w *Workspace) DeleteChat(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.deleteChatLocked(id)
}

func (w *Workspace) deleteChatLocked(id string) error {
	i := w.chatIndex(id)
	if i < 0 {
		return errors.NewNotFound("chat", id)
	}

	w.chats = append(w.chats[:i], w.chats[i+1:]...)
	delete(w.turnStates, id)
	if w.activeChatID == id {
		w.activeChatID = ""
	}
	return w.persist()
}

// CreateProject allocates a new project, inserts it at the front, and makes
// it active. Blank names are rejected.
func (w *Workspace) CreateProject(name string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.NewInvalidRequest("project name must not be empty")
	}

	id, err := generateULID()
	if err != nil {
		return "", errors.NewInternal(err)
	}

	now := time.Now().Unix()
	p := chat.Project{ID: id, Name: name, CreatedAt: now, UpdatedAt: now}
	w.projects = append([]chat.Project{p}, w.projects...)
	w.activeProjectID = id

	if err := w.persist(); err != nil {
		return "", err
	}
	return id, nil
}

// DeleteProject removes the project and every chat referencing it, in one
// synchronous mutation. The active chat and project selections are cleared
// when either pointed into the deleted subtree.
func (w *Workspace) DeleteProject(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	i := w.projectIndex(id)
	if i < 0 {
		return errors.NewNotFound("project", id)
	}

	kept := w.chats[:0]
	activeChatDeleted := false
	for _, c := range w.chats {
		if c.ProjectID == id {
			if c.ID == w.activeChatID {
				activeChatDeleted = true
			}
			delete(w.turnStates, c.ID)
			continue
		}
		kept = append(kept, c)
	}
	w.chats = kept
	w.projects = append(w.projects[:i], w.projects[i+1:]...)

	if w.activeProjectID == id {
		w.activeProjectID = ""
		w.activeChatID = ""
	} else if activeChatDeleted {
		w.activeChatID = ""
	}

	return w.persist()
}

// RenameChat updates a chat's display name. Blank names are a silent no-op.
func (w *Workspace) RenameChat(id, name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if strings.TrimSpace(name) == "" {
		return nil
	}

	i := w.chatIndex(id)
	if i < 0 {
		return errors.NewNotFound("chat", id)
	}
	w.chats[i].Name = name
	w.chats[i].UpdatedAt = time.Now().Unix()
	return w.persist()
}

// RenameProject updates a project's display name. Blank names are a silent no-op.
func (w *Workspace) RenameProject(id, name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if strings.TrimSpace(name) == "" {
		return nil
	}

	i := w.projectIndex(id)
	if i < 0 {
		return errors.NewNotFound("project", id)
	}
	w.projects[i].Name = name
	w.projects[i].UpdatedAt = time.Now().Unix()
	return w.persist()
}

// MoveChat reassigns a chat to a project ("" moves it to uncategorized).
// History and name are untouched.
func (w *Workspace) MoveChat(id, projectID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	i := w.chatIndex(id)
	if i < 0 {
		return errors.NewNotFound("chat", id)
	}
	if projectID != "" && w.projectIndex(projectID) < 0 {
		return errors.NewNotFound("project", projectID)
	}

	w.chats[i].ProjectID = projectID
	w.chats[i].UpdatedAt = time.Now().Unix()
	return w.persist()
}

// SetProjectInstructions replaces a project's free-text steering instructions.
func (w *Workspace) SetProjectInstructions(id, text string) error {
	return w.updateProject(id, func(p *chat.Project) {
		p.Instructions = text
	})
}

// SetProblemStatement replaces a project's problem statement.
func (w *Workspace) SetProblemStatement(id, text string) error {
	return w.updateProject(id, func(p *chat.Project) {
		p.ProblemStatement = text
	})
}

// SetFeatures replaces a project's brainstormed feature list.
func (w *Workspace) SetFeatures(id string, features []chat.Feature) error {
	return w.updateProject(id, func(p *chat.Project) {
		p.Features = features
	})
}

// AddComponent appends a generated UI component artifact to a project.
func (w *Workspace) AddComponent(id string, comp chat.UIComponent) error {
	return w.updateProject(id, func(p *chat.Project) {
		p.Components = append(p.Components, comp)
	})
}

// SetAnalysis replaces a project's tech-stack/competitor blueprint.
func (w *Workspace) SetAnalysis(id string, analysis *chat.Analysis) error {
	return w.updateProject(id, func(p *chat.Project) {
		p.Analysis = analysis
	})
}

// updateProject applies fn to the named project under the lock and persists.
func (w *Workspace) updateProject(id string, fn func(*chat.Project)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	i := w.projectIndex(id)
	if i < 0 {
		return errors.NewNotFound("project", id)
	}
	fn(&w.projects[i])
	w.projects[i].UpdatedAt = time.Now().Unix()
	return w.persist()
}

// SelectChat makes a chat active. A chat belonging to a project implicitly
// makes that project active too.
func (w *Workspace) SelectChat(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	i := w.chatIndex(id)
	if i < 0 {
		return errors.NewNotFound("chat", id)
	}
	w.activeChatID = id
	if w.chats[i].ProjectID != "" {
		w.activeProjectID = w.chats[i].ProjectID
	}
	return nil
}

// SelectProject makes a project active and clears the active chat (the
// project landing view).
func (w *Workspace) SelectProject(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.projectIndex(id) < 0 {
		return errors.NewNotFound("project", id)
	}
	w.activeProjectID = id
	w.activeChatID = ""
	return nil
}

// ClearActiveChat deselects the chat while keeping the active project.
func (w *Workspace) ClearActiveChat() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.activeChatID = ""
}

// ActiveChatID returns the active chat id ("" = none).
func (w *Workspace) ActiveChatID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.activeChatID
}

// ActiveProjectID returns the active project id ("" = none).
func (w *Workspace) ActiveProjectID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.activeProjectID
}

// Chat returns a copy of the chat with the given id.
func (w *Workspace) Chat(id string) (chat.Chat, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	i := w.chatIndex(id)
	if i < 0 {
		return chat.Chat{}, errors.NewNotFound("chat", id)
	}
	return cloneChat(w.chats[i]), nil
}

// Project returns a copy of the project with the given id.
func (w *Workspace) Project(id string) (chat.Project, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	i := w.projectIndex(id)
	if i < 0 {
		return chat.Project{}, errors.NewNotFound("project", id)
	}
	return w.projects[i], nil
}

// Chats returns a copy of the chat collection, most-recent-first.
func (w *Workspace) Chats() []chat.Chat {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]chat.Chat, len(w.chats))
	for i := range w.chats {
		out[i] = cloneChat(w.chats[i])
	}
	return out
}

// Projects returns a copy of the project collection, most-recent-first.
func (w *Workspace) Projects() []chat.Project {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]chat.Project, len(w.projects))
	copy(out, w.projects)
	return out
}

// ProjectChats returns the chats belonging to a project, most-recent-first.
func (w *Workspace) ProjectChats(projectID string) []chat.Chat {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []chat.Chat
	for i := range w.chats {
		if w.chats[i].ProjectID == projectID {
			out = append(out, cloneChat(w.chats[i]))
		}
	}
	return out
}

// SearchChats returns chats whose name or turn text contains the query,
// case-insensitively. A blank query matches nothing.
func (w *Workspace) SearchChats(query string) []chat.Chat {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var out []chat.Chat
	for i := range w.chats {
		c := &w.chats[i]
		if strings.Contains(strings.ToLower(c.Name), query) {
			out = append(out, cloneChat(*c))
			continue
		}
		for _, turn := range c.History {
			if strings.Contains(strings.ToLower(turn.Text()), query) {
				out = append(out, cloneChat(*c))
				break
			}
		}
	}
	return out
}

// cloneChat copies a chat deep enough that callers cannot mutate the owned
// history slice.
func cloneChat(c chat.Chat) chat.Chat {
	out := c
	out.History = make([]chat.Turn, len(c.History))
	copy(out.History, c.History)
	return out
}
