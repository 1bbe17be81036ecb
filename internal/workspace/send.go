package workspace

import (
	"time"

	"github.com/loftlabs/loft/internal/chat"
	"github.com/loftlabs/loft/internal/errors"
)

// TurnState is the lifecycle of a chat's trailing model turn. Only the send
// that opened the turn may move it forward: BeginTurn opens the slot,
// AppendToLastTurn requires it open, and SettleTurn or RollbackTurn closes
// it. A settled turn is immutable until the next BeginTurn.
type TurnState int

const (
	TurnIdle TurnState = iota
	TurnStreaming
	TurnSettled
	TurnFailed
)

// BeginTurnResult describes the state handed to a streaming send after the
// optimistic append: the history as it stood before the user turn, and the
// project the chat belongs to (if any).
type BeginTurnResult struct {
	PriorHistory []chat.Turn
	ProjectID    string
}

// BeginTurn appends the user turn plus an empty model placeholder to the
// chat in one mutation, opens the chat's pending-turn slot, renames a
// still-default chat after the message, and returns the history as it stood
// before the append. Streamed chunks land in the placeholder via
// AppendToLastTurn. A chat with a turn already streaming rejects the call.
func (w *Workspace) BeginTurn(chatID string, userTurn chat.Turn) (BeginTurnResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	i := w.chatIndex(chatID)
	if i < 0 {
		return BeginTurnResult{}, errors.NewNotFound("chat", chatID)
	}
	if w.turnStates[chatID] == TurnStreaming {
		return BeginTurnResult{}, errors.NewChatBusy(chatID)
	}
	c := &w.chats[i]

	prior := make([]chat.Turn, len(c.History))
	copy(prior, c.History)

	if c.Name == chat.DefaultChatName {
		if title := chat.TitleFromMessage(userTurn.Text()); title != chat.DefaultChatName {
			c.Name = title
		}
	}

	c.History = append(c.History, userTurn, chat.Turn{Role: chat.RoleModel, Parts: []chat.Part{}})
	c.UpdatedAt = time.Now().Unix()
	w.turnStates[chatID] = TurnStreaming

	if err := w.persist(); err != nil {
		return BeginTurnResult{}, err
	}
	return BeginTurnResult{PriorHistory: prior, ProjectID: c.ProjectID}, nil
}

// AppendToLastTurn folds a streamed chunk into the streaming model turn.
// Consecutive chunks grow a single text part so the settled turn reads as one
// message. Appends are rejected unless a turn is streaming, so a settled turn
// can never be mutated after the fact.
func (w *Workspace) AppendToLastTurn(chatID, chunk string) error {
	if chunk == "" {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	i := w.chatIndex(chatID)
	if i < 0 {
		return errors.NewNotFound("chat", chatID)
	}
	if w.turnStates[chatID] != TurnStreaming {
		return errors.NewInvalidRequest("chat has no pending turn")
	}
	c := &w.chats[i]

	last := &c.History[len(c.History)-1]
	if n := len(last.Parts); n > 0 && last.Parts[n-1].Inline == nil {
		last.Parts[n-1].Text += chunk
	} else {
		last.Parts = append(last.Parts, chat.NewTextPart(chunk))
	}
	c.UpdatedAt = time.Now().Unix()
	return w.persist()
}

// SettleTurn finalizes the streaming model turn opened by BeginTurn. From
// here the turn is part of the immutable history; further appends fail until
// the next BeginTurn.
func (w *Workspace) SettleTurn(chatID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.chatIndex(chatID) < 0 {
		return errors.NewNotFound("chat", chatID)
	}
	if w.turnStates[chatID] != TurnStreaming {
		return errors.NewInvalidRequest("chat has no pending turn")
	}
	w.turnStates[chatID] = TurnSettled
	return nil
}

// RollbackTurn removes the trailing user/model turn pair appended by
// BeginTurn, restoring the pre-send history after a failed stream. Only a
// streaming turn can be rolled back.
func (w *Workspace) RollbackTurn(chatID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	i := w.chatIndex(chatID)
	if i < 0 {
		return errors.NewNotFound("chat", chatID)
	}
	if w.turnStates[chatID] != TurnStreaming {
		return errors.NewInvalidRequest("chat has no pending turn")
	}
	c := &w.chats[i]

	c.History = c.History[:len(c.History)-2]
	c.UpdatedAt = time.Now().Unix()
	w.turnStates[chatID] = TurnFailed
	return w.persist()
}

// RollbackTurnAndDeleteChat unwinds a failed send into a chat that was
// created for that send: the whole chat goes away, and the selection falls
// back to its project.
func (w *Workspace) RollbackTurnAndDeleteChat(chatID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.deleteChatLocked(chatID)
}

// TurnState reports the lifecycle state of the chat's trailing model turn.
func (w *Workspace) TurnState(chatID string) TurnState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.turnStates[chatID]
}
