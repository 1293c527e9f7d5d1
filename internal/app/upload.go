// Where: internal/app/upload.go
// What: The upload command ingesting a resource workbook.
// Why: Spreadsheet batches seed a session with complete resource definitions.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/opsloom/iacpilot/internal/progress"
	"github.com/opsloom/iacpilot/internal/spreadsheet"
	"github.com/opsloom/iacpilot/internal/workflow"
)

// UploadCmd parses a resource spreadsheet and optionally seeds a session.
type UploadCmd struct {
	File    string `arg:"" type:"existingfile" help:"Workbook to ingest (.xlsx)"`
	Session string `short:"s" help:"Seed this session with the parsed resources (a new session is created when empty)"`
	DryRun  bool   `name:"dry-run" help:"Parse and report only; do not touch any session"`
}

// Run executes the upload command.
func (c UploadCmd) Run(deps *Dependencies) error {
	content, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("upload: read workbook: %w", err)
	}
	if len(content) > spreadsheet.MaxFileSize {
		return fmt.Errorf("upload: workbook exceeds %d bytes", spreadsheet.MaxFileSize)
	}

	result := deps.Parser.Parse(content)

	deps.Console.Header("📄", "Spreadsheet")
	deps.Console.Item("Resources", result.ResourceCount)
	if len(result.ResourceTypes) > 0 {
		deps.Console.Item("Types", strings.Join(result.ResourceTypes, ", "))
	}
	for _, warning := range result.Warnings {
		deps.Console.Warn(warning)
	}
	for _, msg := range result.Errors {
		deps.Console.Error(msg)
	}
	if !result.Success {
		return fmt.Errorf("upload: workbook rejected")
	}

	if c.DryRun || result.ResourceCount == 0 {
		return nil
	}

	if deps.Engine == nil {
		return fmt.Errorf("upload: workflow engine is not configured")
	}

	sessionID := c.Session
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	deps.Console.Item("Session", sessionID)

	state, err := deps.Engine.Run(context.Background(), workflow.RunInput{
		SessionID:            sessionID,
		Message:              fmt.Sprintf("Uploaded a spreadsheet defining %d resources.", result.ResourceCount),
		SpreadsheetResources: result.Resources,
	}, progress.Discard{})
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	return renderResponse(deps, state, "")
}
