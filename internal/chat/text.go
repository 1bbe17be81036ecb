package chat

import (
	"strings"
	"unicode/utf8"
)

// titleMaxChars bounds implicit chat names derived from the first message.
const titleMaxChars = 48

// CountChars returns the character count as runes (not bytes).
// This correctly handles multi-byte UTF-8 characters.
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}

// TruncateRunes shortens text to at most max runes, ending with an ellipsis
// when anything was cut. The result never exceeds max runes. max <= 0 returns
// the text unchanged.
func TruncateRunes(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return string(runes[:max-1]) + "…"
}

// TitleFromMessage derives a chat display name from its first user message:
// the first line, whitespace-collapsed, truncated to a fixed length.
// Returns DefaultChatName for blank input.
func TitleFromMessage(text string) string {
	if line, _, found := strings.Cut(text, "\n"); found {
		text = line
	}
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return DefaultChatName
	}
	return TruncateRunes(text, titleMaxChars)
}
