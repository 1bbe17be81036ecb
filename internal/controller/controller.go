// Package controller drives message sends: the optimistic history append,
// the streaming completion call, chunk fold-in, and rollback on failure.
package controller

import (
	"context"
	stderrors "errors"
	"log"
	"strings"
	"sync"

	"github.com/loftlabs/loft/internal/chat"
	"github.com/loftlabs/loft/internal/config"
	"github.com/loftlabs/loft/internal/errors"
	"github.com/loftlabs/loft/internal/genai"
	"github.com/loftlabs/loft/internal/prompt"
	"github.com/loftlabs/loft/internal/workspace"
)

// SendFailedMessage is the user-facing error recorded when a send fails for
// any reason after validation.
const SendFailedMessage = "An error occurred. Please check your connection and API key."

// Attachment is a binary file the user attaches to a message.
type Attachment struct {
	MIMEType string
	Data     []byte
}

// Controller coordinates sends against the workspace. One send may be in
// flight per chat; sends to different chats run independently.
type Controller struct {
	ws        *workspace.Workspace
	completer genai.Completer
	composer  prompt.Composer
	maxBytes  int

	mu     sync.Mutex
	states map[string]*chatState
}

// chatState is the per-chat send status the view layer renders.
type chatState struct {
	loading bool
	err     string
}

// New builds a controller over the workspace and completion client.
func New(ws *workspace.Workspace, completer genai.Completer, cfg *config.Config) *Controller {
	return &Controller{
		ws:        ws,
		completer: completer,
		composer:  prompt.Composer{TurnLimit: cfg.MemoryTurnLimit, TurnChars: cfg.MemoryTurnChars},
		maxBytes:  cfg.AttachmentMaxBytes,
		states:    make(map[string]*chatState),
	}
}

// IsLoading reports whether a send is in flight for the chat.
func (c *Controller) IsLoading(chatID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.states[chatID]
	return s != nil && s.loading
}

// Err returns the chat's last send error ("" when the last send succeeded).
func (c *Controller) Err(chatID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := c.states[chatID]; s != nil {
		return s.err
	}
	return ""
}

// beginSend marks the chat loading, rejecting a second in-flight send.
func (c *Controller) beginSend(chatID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.states[chatID]
	if s == nil {
		s = &chatState{}
		c.states[chatID] = s
	}
	if s.loading {
		return errors.NewChatBusy(chatID)
	}
	s.loading = true
	s.err = ""
	return nil
}

// endSend clears the loading flag and records the outcome.
func (c *Controller) endSend(chatID, errMsg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := c.states[chatID]; s != nil {
		s.loading = false
		s.err = errMsg
	}
}

// SendMessage runs the full send for one user message, blocking until the
// stream settles or fails. Blank messages with no attachments are a no-op.
// On failure the appended turn pair is rolled back so history is exactly as
// it was before the call.
func (c *Controller) SendMessage(ctx context.Context, chatID, text string, attachments []Attachment) error {
	if strings.TrimSpace(text) == "" && len(attachments) == 0 {
		return nil
	}

	userTurn, err := c.buildUserTurn(text, attachments)
	if err != nil {
		return err
	}

	if err := c.beginSend(chatID); err != nil {
		return err
	}

	begin, err := c.ws.BeginTurn(chatID, userTurn)
	if err != nil {
		c.endSend(chatID, "")
		return err
	}

	if err := c.stream(ctx, chatID, begin, userTurn); err != nil {
		if rbErr := c.ws.RollbackTurn(chatID); rbErr != nil {
			err = stderrors.Join(err, rbErr)
		}
		c.endSend(chatID, SendFailedMessage)
		return err
	}

	if err := c.ws.SettleTurn(chatID); err != nil {
		c.endSend(chatID, "")
		return err
	}

	c.endSend(chatID, "")
	return nil
}

// SendMessageInNewProjectChat creates a chat inside the project and sends the
// first message into it. A failed send unwinds completely: the new chat is
// deleted and the selection falls back to the project.
func (c *Controller) SendMessageInNewProjectChat(ctx context.Context, projectID, text string, attachments []Attachment) (string, error) {
	if strings.TrimSpace(text) == "" && len(attachments) == 0 {
		return "", nil
	}

	userTurn, err := c.buildUserTurn(text, attachments)
	if err != nil {
		return "", err
	}

	chatID, err := c.ws.CreateChat(projectID)
	if err != nil {
		return "", err
	}
	if err := c.beginSend(chatID); err != nil {
		return "", err
	}

	begin, err := c.ws.BeginTurn(chatID, userTurn)
	if err != nil {
		c.endSend(chatID, "")
		return "", err
	}

	if err := c.stream(ctx, chatID, begin, userTurn); err != nil {
		if rbErr := c.ws.RollbackTurnAndDeleteChat(chatID); rbErr != nil {
			err = stderrors.Join(err, rbErr)
		}
		c.endSend(chatID, SendFailedMessage)
		return "", err
	}

	if err := c.ws.SettleTurn(chatID); err != nil {
		c.endSend(chatID, "")
		return "", err
	}

	c.endSend(chatID, "")
	return chatID, nil
}

// buildUserTurn validates attachments against the size cap and assembles the
// user turn.
func (c *Controller) buildUserTurn(text string, attachments []Attachment) (chat.Turn, error) {
	parts := make([]chat.Part, 0, len(attachments))
	for _, a := range attachments {
		if c.maxBytes > 0 && len(a.Data) > c.maxBytes {
			return chat.Turn{}, errors.NewAttachmentTooLarge(c.maxBytes, len(a.Data))
		}
		parts = append(parts, chat.NewAttachmentPart(a.MIMEType, a.Data))
	}
	return chat.NewUserTurn(text, parts), nil
}

// stream composes the instruction, runs the completion over the pre-send
// history plus the new user turn, and folds chunks into the placeholder.
func (c *Controller) stream(ctx context.Context, chatID string, begin workspace.BeginTurnResult, userTurn chat.Turn) error {
	instruction := c.composeInstruction(chatID, begin.ProjectID)

	history := make([]chat.Turn, 0, len(begin.PriorHistory)+1)
	history = append(history, begin.PriorHistory...)
	history = append(history, userTurn)

	return c.completer.StreamGenerate(ctx, instruction, history, func(chunk string) {
		// Chunks arrive in order on this goroutine; a failed append does
		// not abort the stream, but the store may now trail the reply.
		if err := c.ws.AppendToLastTurn(chatID, chunk); err != nil {
			log.Printf("chat %s: dropped streamed chunk: %v", chatID, err)
		}
	})
}

// composeInstruction builds the system instruction for a chat: base persona,
// the project's instructions, and bounded memory from its sibling chats.
func (c *Controller) composeInstruction(chatID, projectID string) string {
	if projectID == "" {
		return c.composer.Compose(nil, nil)
	}

	project, err := c.ws.Project(projectID)
	if err != nil {
		return c.composer.Compose(nil, nil)
	}

	return c.composer.Compose(&project, c.siblingTurns(chatID, projectID))
}

// siblingTurns gathers the project's other chats' turns oldest-first, across
// chats, for the cross-chat memory window.
func (c *Controller) siblingTurns(chatID, projectID string) []chat.Turn {
	chats := c.ws.ProjectChats(projectID)

	var turns []chat.Turn
	for i := len(chats) - 1; i >= 0; i-- {
		if chats[i].ID == chatID {
			continue
		}
		turns = append(turns, chats[i].History...)
	}
	return turns
}
