// Package prompt builds the out-of-band system instruction for completion
// calls. Composition is pure: the caller supplies the project and sibling
// history, nothing here touches the workspace or the network.
package prompt

import (
	"fmt"
	"strings"

	"github.com/loftlabs/loft/internal/chat"
)

// BasePersona is the fixed instruction every completion call starts from.
const BasePersona = "You are an expert software project manager. Your goal is to help users break down their ideas into actionable plans. You should be concise, clear, and provide structured responses, often using markdown for formatting like lists, bolding, and code snippets where appropriate."

// AttachmentPlaceholder stands in for binary parts when rendering history
// into prompt text.
const AttachmentPlaceholder = "[attachment]"

// Composer bounds the cross-chat project memory: at most TurnLimit turns
// across sibling chats, each turn's text truncated to TurnChars runes.
type Composer struct {
	TurnLimit int
	TurnChars int
}

// Compose builds the full system instruction for a chat. project may be nil
// for uncategorized chats. siblingTurns is the chronological concatenation of
// every turn from the project's other chats, oldest first.
func (c Composer) Compose(project *chat.Project, siblingTurns []chat.Turn) string {
	var b strings.Builder
	b.WriteString(BasePersona)

	if project != nil && project.Instructions != "" {
		fmt.Fprintf(&b, "\n\nCRITICAL: You must adhere to the following user-provided instructions for this project:\n<instructions>\n%s\n</instructions>", project.Instructions)
	}

	if memory := c.renderMemory(siblingTurns); memory != "" {
		b.WriteString("\n\nFor context, here are recent messages from other chats in this project:\n")
		b.WriteString(memory)
	}

	return b.String()
}

// renderMemory renders the last TurnLimit sibling turns as "role: content"
// lines, bounding each line's content to TurnChars runes.
func (c Composer) renderMemory(turns []chat.Turn) string {
	if c.TurnLimit <= 0 || len(turns) == 0 {
		return ""
	}
	if len(turns) > c.TurnLimit {
		turns = turns[len(turns)-c.TurnLimit:]
	}

	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		text := t.Text()
		if text == "" {
			if len(t.Parts) == 0 {
				continue
			}
			text = AttachmentPlaceholder
		}
		if c.TurnChars > 0 {
			text = chat.TruncateRunes(text, c.TurnChars)
		}
		lines = append(lines, fmt.Sprintf("%s: %s", t.Role, text))
	}
	return strings.Join(lines, "\n")
}
