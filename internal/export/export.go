// Package export writes and reads chat transcripts as JSONL files, with
// strict path discipline around where those files may live.
package export

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/loftlabs/loft/internal/chat"
	"github.com/loftlabs/loft/internal/config"
	"github.com/loftlabs/loft/internal/errors"
	"github.com/loftlabs/loft/internal/workspace"
)

// schemaVersion is the export file format version.
const schemaVersion = "1.0"

// Header is the first line of a JSONL export file.
type Header struct {
	LoftExport    bool   `json:"_loft_export"`
	SchemaVersion string `json:"schema_version"`
	ExportedAt    int64  `json:"exported_at"`
}

// Input contains parameters for the Export operation.
type Input struct {
	Path      string // optional, default: <baseDir>/exports/<name>-<timestamp>.jsonl
	ProjectID string // optional, restrict to one project's chats
}

// Output contains the result of the Export operation.
type Output struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
}

// Export writes chats to a JSONL file: a header line followed by one chat
// document per line. The file is written to a temp name first and renamed
// into place, so a failed export never clobbers an existing file.
func Export(ws *workspace.Workspace, cfg *config.Config, baseDir string, input Input) (*Output, error) {
	now := time.Now()

	var chats []chat.Chat
	if input.ProjectID != "" {
		if _, err := ws.Project(input.ProjectID); err != nil {
			return nil, err
		}
		chats = ws.ProjectChats(input.ProjectID)
	} else {
		chats = ws.Chats()
	}

	exportPath := input.Path
	if exportPath == "" {
		exportPath = defaultExportPath(ws, baseDir, input.ProjectID, now)
	}

	// Default paths are validated too: a hostile project name must not
	// steer the file outside the exports directory.
	if err := ValidatePath(exportPath, PathCheckWrite, cfg, baseDir); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	enc := json.NewEncoder(file)
	header := Header{LoftExport: true, SchemaVersion: schemaVersion, ExportedAt: now.Unix()}
	if err := enc.Encode(header); err != nil {
		return nil, errors.NewInternal(err)
	}
	for _, c := range chats {
		if err := enc.Encode(c); err != nil {
			return nil, errors.NewInternal(err)
		}
	}

	if err := file.Close(); err != nil {
		file = nil
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export file: %w", err))
	}
	file = nil

	if err := os.Rename(tempPath, exportPath); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to move export into place: %w", err))
	}
	success = true

	return &Output{Path: exportPath, Count: len(chats), ExportedAt: now.Unix()}, nil
}

// defaultExportPath builds <baseDir>/exports/<name>-<timestamp>.jsonl, using
// the project name when exporting a single project.
func defaultExportPath(ws *workspace.Workspace, baseDir, projectID string, now time.Time) string {
	name := "chats"
	if projectID != "" {
		if p, err := ws.Project(projectID); err == nil {
			if s := sanitizeForFilename(p.Name); s != "" {
				name = s
			}
		}
	}
	filename := fmt.Sprintf("%s-%s.jsonl", name, now.Format("20060102-150405"))
	return filepath.Join(DefaultExportsDir(baseDir), filename)
}
