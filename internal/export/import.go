package export

import (
	"bufio"
	"encoding/json"
	"fmt"

	"github.com/loftlabs/loft/internal/chat"
	"github.com/loftlabs/loft/internal/config"
	"github.com/loftlabs/loft/internal/workspace"
)

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string // required
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors,omitempty"`
}

// ImportError reports a line that could not be imported.
type ImportError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// Import reads a JSONL export file and merges its chats into the workspace.
// Chats whose id already exists are skipped; malformed lines are reported
// rather than aborting the import.
func Import(ws *workspace.Workspace, cfg *config.Config, baseDir string, input ImportInput) (*ImportOutput, error) {
	if err := ValidatePath(input.Path, PathCheckRead, cfg, baseDir); err != nil {
		return nil, err
	}

	file, err := openFileNoFollowRead(input.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var chats []chat.Chat
	var importErrors []ImportError

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		if lineNum == 1 {
			var header Header
			if err := json.Unmarshal(line, &header); err == nil && header.LoftExport {
				continue
			}
		}

		var c chat.Chat
		if err := json.Unmarshal(line, &c); err != nil {
			importErrors = append(importErrors, ImportError{Line: lineNum, Message: fmt.Sprintf("invalid JSON: %v", err)})
			continue
		}
		if c.ID == "" {
			importErrors = append(importErrors, ImportError{Line: lineNum, Message: "missing chat id"})
			continue
		}
		chats = append(chats, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	added, err := ws.ImportChats(chats)
	if err != nil {
		return nil, err
	}

	return &ImportOutput{
		Imported: added,
		Skipped:  len(chats) - added,
		Errors:   importErrors,
	}, nil
}
