package controller

import (
	"bytes"
	"context"
	"log"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loftlabs/loft/internal/chat"
	"github.com/loftlabs/loft/internal/config"
	"github.com/loftlabs/loft/internal/errors"
	"github.com/loftlabs/loft/internal/genai"
	"github.com/loftlabs/loft/internal/store"
	"github.com/loftlabs/loft/internal/workspace"
)

// stubCompleter yields a fixed chunk sequence or a fixed error, recording
// what it was asked.
type stubCompleter struct {
	mu           sync.Mutex
	chunks       []string
	err          error
	instructions []string
	histories    [][]chat.Turn
	block        chan struct{} // when set, StreamGenerate waits before returning
}

func (s *stubCompleter) StreamGenerate(ctx context.Context, instruction string, history []chat.Turn, cb genai.StreamCallback) error {
	s.mu.Lock()
	s.instructions = append(s.instructions, instruction)
	s.histories = append(s.histories, history)
	block := s.block
	s.mu.Unlock()

	if block != nil {
		<-block
	}
	if s.err != nil {
		return s.err
	}
	for _, chunk := range s.chunks {
		cb(chunk)
	}
	return nil
}

func (s *stubCompleter) GenerateJSON(ctx context.Context, instruction, userText string, out any) error {
	return s.err
}

func (s *stubCompleter) lastInstruction() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.instructions) == 0 {
		return ""
	}
	return s.instructions[len(s.instructions)-1]
}

func (s *stubCompleter) lastHistory() []chat.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.histories) == 0 {
		return nil
	}
	return s.histories[len(s.histories)-1]
}

// waitLoading blocks until a send is in flight for the chat.
func waitLoading(t *testing.T, c *Controller, chatID string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !c.IsLoading(chatID) {
		if time.Now().After(deadline) {
			t.Fatalf("chat %s never entered loading state", chatID)
		}
		time.Sleep(time.Millisecond)
	}
}

func newTestController(t *testing.T, completer genai.Completer) (*Controller, *workspace.Workspace) {
	t.Helper()

	db, err := store.Init(t.TempDir())
	if err != nil {
		t.Fatalf("store.Init() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.DefaultConfig()
	cfg.SeedSample = false
	ws, err := workspace.Load(db, cfg)
	if err != nil {
		t.Fatalf("workspace.Load() error = %v", err)
	}
	return New(ws, completer, cfg), ws
}

func TestSendMessageSuccess(t *testing.T) {
	stub := &stubCompleter{chunks: []string{"Hel", "lo!"}}
	c, ws := newTestController(t, stub)

	pid, _ := ws.CreateProject("Demo")
	cid, _ := ws.CreateChat(pid)
	if ws.ActiveChatID() != cid {
		t.Fatalf("ActiveChatID() = %q, want %q", ws.ActiveChatID(), cid)
	}

	if err := c.SendMessage(context.Background(), cid, "Hi", nil); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	got, _ := ws.Chat(cid)
	if len(got.History) != 2 {
		t.Fatalf("History length = %d, want 2", len(got.History))
	}
	if got.History[0].Role != chat.RoleUser || got.History[0].Text() != "Hi" {
		t.Errorf("user turn = {%s %q}", got.History[0].Role, got.History[0].Text())
	}
	if got.History[1].Role != chat.RoleModel || got.History[1].Text() != "Hello!" {
		t.Errorf("model turn = {%s %q}, want concatenated chunks", got.History[1].Role, got.History[1].Text())
	}
	if c.IsLoading(cid) {
		t.Errorf("IsLoading() = true after settle")
	}
	if c.Err(cid) != "" {
		t.Errorf("Err() = %q, want empty", c.Err(cid))
	}
}

func TestSendMessageBlankNoOp(t *testing.T) {
	stub := &stubCompleter{chunks: []string{"never"}}
	c, ws := newTestController(t, stub)

	cid, _ := ws.CreateChat("")
	if err := c.SendMessage(context.Background(), cid, "   ", nil); err != nil {
		t.Fatalf("SendMessage(blank) error = %v", err)
	}

	got, _ := ws.Chat(cid)
	if len(got.History) != 0 {
		t.Errorf("History length = %d, want 0", len(got.History))
	}
	if c.IsLoading(cid) {
		t.Errorf("IsLoading() = true after no-op")
	}
	if len(stub.histories) != 0 {
		t.Errorf("completer was called %d times, want 0", len(stub.histories))
	}
}

func TestSendMessageFailureRollsBack(t *testing.T) {
	stub := &stubCompleter{err: errors.NewUpstream(context.DeadlineExceeded)}
	c, ws := newTestController(t, stub)

	cid, _ := ws.CreateChat("")
	if err := c.SendMessage(context.Background(), cid, "first", nil); err == nil {
		t.Fatalf("SendMessage() error = nil, want upstream failure")
	}

	got, _ := ws.Chat(cid)
	if len(got.History) != 0 {
		t.Errorf("History length = %d, want 0 after rollback", len(got.History))
	}
	if c.Err(cid) != SendFailedMessage {
		t.Errorf("Err() = %q, want %q", c.Err(cid), SendFailedMessage)
	}
	if c.IsLoading(cid) {
		t.Errorf("IsLoading() = true after failure")
	}
}

func TestSendMessageFailureKeepsStreamError(t *testing.T) {
	block := make(chan struct{})
	stub := &stubCompleter{err: errors.NewUpstream(context.DeadlineExceeded), block: block}
	c, ws := newTestController(t, stub)

	cid, _ := ws.CreateChat("")
	done := make(chan error, 1)
	go func() { done <- c.SendMessage(context.Background(), cid, "hi", nil) }()
	waitLoading(t, c, cid)

	// Deleting the chat mid-send makes the rollback fail too; the returned
	// error must carry both causes.
	if err := ws.DeleteChat(cid); err != nil {
		t.Fatalf("DeleteChat() error = %v", err)
	}
	close(block)

	err := <-done
	if err == nil {
		t.Fatal("SendMessage() error = nil, want stream and rollback failures")
	}
	if !strings.Contains(err.Error(), "context deadline exceeded") {
		t.Errorf("error %q lost the stream failure", err)
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("error %q lost the rollback failure", err)
	}
}

// vanishingChatCompleter deletes its chat before emitting the chunk, so the
// append in the stream callback has nowhere to land.
type vanishingChatCompleter struct {
	ws     *workspace.Workspace
	chatID string
}

func (v *vanishingChatCompleter) StreamGenerate(ctx context.Context, instruction string, history []chat.Turn, cb genai.StreamCallback) error {
	if err := v.ws.DeleteChat(v.chatID); err != nil {
		return err
	}
	cb("tail")
	return nil
}

func (v *vanishingChatCompleter) GenerateJSON(ctx context.Context, instruction, userText string, out any) error {
	return nil
}

func TestSendMessageLogsDroppedChunk(t *testing.T) {
	comp := &vanishingChatCompleter{}
	c, ws := newTestController(t, comp)
	comp.ws = ws

	cid, _ := ws.CreateChat("")
	comp.chatID = cid

	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	if err := c.SendMessage(context.Background(), cid, "hi", nil); err == nil {
		t.Fatal("SendMessage() error = nil, want failure for deleted chat")
	}
	if !strings.Contains(buf.String(), "dropped streamed chunk") {
		t.Errorf("log output %q missing dropped chunk entry", buf.String())
	}
	if !strings.Contains(buf.String(), cid) {
		t.Errorf("log output %q missing chat id %s", buf.String(), cid)
	}
}

func TestSendMessageRetryAfterFailureClearsError(t *testing.T) {
	stub := &stubCompleter{err: errors.NewUpstream(context.DeadlineExceeded)}
	c, ws := newTestController(t, stub)

	cid, _ := ws.CreateChat("")
	c.SendMessage(context.Background(), cid, "fails", nil)

	stub.err = nil
	stub.chunks = []string{"ok"}
	if err := c.SendMessage(context.Background(), cid, "retry", nil); err != nil {
		t.Fatalf("SendMessage(retry) error = %v", err)
	}
	if c.Err(cid) != "" {
		t.Errorf("Err() = %q, want cleared on success", c.Err(cid))
	}
}

func TestSendMessageBusyChat(t *testing.T) {
	block := make(chan struct{})
	stub := &stubCompleter{chunks: []string{"done"}, block: block}
	c, ws := newTestController(t, stub)

	cid, _ := ws.CreateChat("")

	firstDone := make(chan error, 1)
	go func() { firstDone <- c.SendMessage(context.Background(), cid, "one", nil) }()

	waitLoading(t, c, cid)
	err := c.SendMessage(context.Background(), cid, "two", nil)
	if !errors.Is(err, errors.ErrChatBusy) {
		t.Errorf("second SendMessage() error = %v, want ErrChatBusy", err)
	}

	close(block)
	if err := <-firstDone; err != nil {
		t.Fatalf("first SendMessage() error = %v", err)
	}

	got, _ := ws.Chat(cid)
	if len(got.History) != 2 {
		t.Errorf("History length = %d, want only the first send recorded", len(got.History))
	}
}

func TestSendMessageDifferentChatsIndependent(t *testing.T) {
	block := make(chan struct{})
	stub := &stubCompleter{chunks: []string{"x"}, block: block}
	c, ws := newTestController(t, stub)

	first, _ := ws.CreateChat("")
	second, _ := ws.CreateChat("")

	done := make(chan error, 1)
	go func() { done <- c.SendMessage(context.Background(), first, "one", nil) }()
	waitLoading(t, c, first)

	go func() { done <- c.SendMessage(context.Background(), second, "two", nil) }()
	waitLoading(t, c, second)

	close(block)
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatalf("SendMessage() error = %v", err)
		}
	}
}

func TestSendMessageHistoryExcludesPlaceholder(t *testing.T) {
	stub := &stubCompleter{chunks: []string{"second reply"}}
	c, ws := newTestController(t, stub)

	cid, _ := ws.CreateChat("")
	stub.chunks = []string{"first reply"}
	if err := c.SendMessage(context.Background(), cid, "first", nil); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	stub.chunks = []string{"second reply"}
	if err := c.SendMessage(context.Background(), cid, "second", nil); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	// The API sees prior turns plus the new user turn, never the empty
	// model placeholder.
	history := stub.lastHistory()
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	if history[len(history)-1].Text() != "second" {
		t.Errorf("last turn = %q, want the new user message", history[len(history)-1].Text())
	}
	for _, turn := range history {
		if turn.Role == chat.RoleModel && len(turn.Parts) == 0 {
			t.Errorf("placeholder model turn leaked into API history")
		}
	}
}

func TestSendMessageProjectInstructions(t *testing.T) {
	stub := &stubCompleter{chunks: []string{"oui"}}
	c, ws := newTestController(t, stub)

	pid, _ := ws.CreateProject("Demo")
	ws.SetProjectInstructions(pid, "Respond only in French")
	cid, _ := ws.CreateChat(pid)

	if err := c.SendMessage(context.Background(), cid, "hello", nil); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if !strings.Contains(stub.lastInstruction(), "Respond only in French") {
		t.Errorf("instruction %q missing project instructions", stub.lastInstruction())
	}
}

func TestSendMessageSiblingMemory(t *testing.T) {
	stub := &stubCompleter{chunks: []string{"noted"}}
	c, ws := newTestController(t, stub)

	pid, _ := ws.CreateProject("Demo")
	sibling, _ := ws.CreateChat(pid)
	if err := c.SendMessage(context.Background(), sibling, "the launch date is March", nil); err != nil {
		t.Fatalf("SendMessage(sibling) error = %v", err)
	}

	cid, _ := ws.CreateChat(pid)
	if err := c.SendMessage(context.Background(), cid, "when do we launch?", nil); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	inst := stub.lastInstruction()
	if !strings.Contains(inst, "the launch date is March") {
		t.Errorf("instruction missing sibling memory:\n%s", inst)
	}
	// The current chat's own history must not feed its memory window.
	if strings.Contains(inst, "when do we launch?") {
		t.Errorf("instruction includes the chat's own message:\n%s", inst)
	}
}

func TestSendMessageAttachmentTooLarge(t *testing.T) {
	stub := &stubCompleter{}
	c, ws := newTestController(t, stub)

	cid, _ := ws.CreateChat("")
	big := Attachment{MIMEType: "image/png", Data: make([]byte, 11<<20)}
	err := c.SendMessage(context.Background(), cid, "look", []Attachment{big})
	if !errors.Is(err, errors.ErrAttachmentTooLarge) {
		t.Fatalf("SendMessage() error = %v, want ErrAttachmentTooLarge", err)
	}

	got, _ := ws.Chat(cid)
	if len(got.History) != 0 {
		t.Errorf("History length = %d, want 0 after rejected attachment", len(got.History))
	}
}

func TestSendMessageAttachmentOnly(t *testing.T) {
	stub := &stubCompleter{chunks: []string{"nice image"}}
	c, ws := newTestController(t, stub)

	cid, _ := ws.CreateChat("")
	att := Attachment{MIMEType: "image/png", Data: []byte{0x89, 0x50}}
	if err := c.SendMessage(context.Background(), cid, "", []Attachment{att}); err != nil {
		t.Fatalf("SendMessage(attachment only) error = %v", err)
	}

	got, _ := ws.Chat(cid)
	if len(got.History) != 2 {
		t.Fatalf("History length = %d, want 2", len(got.History))
	}
	if !got.History[0].Parts[0].IsAttachment() {
		t.Errorf("user turn missing attachment part")
	}
}

func TestSendMessageInNewProjectChat(t *testing.T) {
	stub := &stubCompleter{chunks: []string{"plan"}}
	c, ws := newTestController(t, stub)

	pid, _ := ws.CreateProject("Demo")
	cid, err := c.SendMessageInNewProjectChat(context.Background(), pid, "Plan the MVP", nil)
	if err != nil {
		t.Fatalf("SendMessageInNewProjectChat() error = %v", err)
	}

	got, _ := ws.Chat(cid)
	if got.ProjectID != pid {
		t.Errorf("ProjectID = %q, want %q", got.ProjectID, pid)
	}
	if got.Name != "Plan the MVP" {
		t.Errorf("Name = %q, want derived from message", got.Name)
	}
	if ws.ActiveChatID() != cid {
		t.Errorf("ActiveChatID() = %q, want the new chat", ws.ActiveChatID())
	}
}

func TestSendMessageInNewProjectChatFailureDeletesChat(t *testing.T) {
	stub := &stubCompleter{err: errors.NewUpstream(context.DeadlineExceeded)}
	c, ws := newTestController(t, stub)

	pid, _ := ws.CreateProject("Demo")
	if _, err := c.SendMessageInNewProjectChat(context.Background(), pid, "doomed", nil); err == nil {
		t.Fatalf("SendMessageInNewProjectChat() error = nil, want failure")
	}

	if n := len(ws.ProjectChats(pid)); n != 0 {
		t.Errorf("project has %d chats, want failed chat removed", n)
	}
	if ws.ActiveChatID() != "" {
		t.Errorf("ActiveChatID() = %q, want empty", ws.ActiveChatID())
	}
	if ws.ActiveProjectID() != pid {
		t.Errorf("ActiveProjectID() = %q, want project kept active", ws.ActiveProjectID())
	}
}
