package workspace

import (
	"time"

	"github.com/loftlabs/loft/internal/chat"
)

// ImportChats merges chats from an export file into the workspace. Chats
// whose id already exists are skipped, and chats referencing a project this
// workspace does not have become uncategorized. Returns how many chats were
// added.
func (w *Workspace) ImportChats(chats []chat.Chat) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	added := 0
	now := time.Now().Unix()
	for _, c := range chats {
		if c.ID == "" || w.chatIndex(c.ID) >= 0 {
			continue
		}
		if c.ProjectID != "" && w.projectIndex(c.ProjectID) < 0 {
			c.ProjectID = ""
		}
		if c.Name == "" {
			c.Name = chat.DefaultChatName
		}
		if c.History == nil {
			c.History = []chat.Turn{}
		}
		c.UpdatedAt = now
		w.chats = append(w.chats, c)
		added++
	}

	if added == 0 {
		return 0, nil
	}
	if err := w.persist(); err != nil {
		return 0, err
	}
	return added, nil
}
