// Where: internal/app/chat.go
// What: The chat command driving one workflow turn.
// Why: A user message enters the pipeline here and the response is rendered.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/opsloom/iacpilot/internal/progress"
	"github.com/opsloom/iacpilot/internal/workflow"
)

// ChatCmd sends one user message through the generation pipeline.
type ChatCmd struct {
	Message string `arg:"" help:"The infrastructure request in natural language"`
	Session string `short:"s" help:"Session identifier (a new session is created when omitted)"`
	Output  string `short:"o" type:"path" help:"Directory to write generated files into"`
	Quiet   bool   `short:"q" help:"Suppress per-stage progress output"`
}

// Run executes the chat command.
func (c ChatCmd) Run(deps *Dependencies) error {
	if deps.Engine == nil {
		return fmt.Errorf("chat: workflow engine is not configured")
	}

	sessionID := c.Session
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	deps.Console.Header("💬", "Chat")
	deps.Console.Item("Session", sessionID)

	events := progress.NewChannel(16)
	var wg sync.WaitGroup
	if !c.Quiet {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range events.Events() {
				renderProgress(deps, ev)
			}
		}()
	}

	state, err := deps.Engine.Run(context.Background(), workflow.RunInput{
		SessionID: sessionID,
		Message:   c.Message,
	}, events)
	events.Close()
	wg.Wait()
	if err != nil {
		return fmt.Errorf("chat: %w", err)
	}

	return renderResponse(deps, state, c.Output)
}

// renderProgress prints one stage transition.
func renderProgress(deps *Dependencies, ev progress.Event) {
	line := fmt.Sprintf("%s: %s", ev.Agent, ev.Status)
	if ev.Message != "" {
		line += " - " + ev.Message
	}
	switch ev.Status {
	case progress.StatusFailed:
		deps.Console.Warn(line)
	default:
		deps.Console.Info(line)
	}
}

// renderResponse prints the assistant message, the generated files, and the
// run metadata; when outDir is set the files are also written to disk.
func renderResponse(deps *Dependencies, state *workflow.State, outDir string) error {
	resp := state.BuildResponse()

	if resp.Message != "" {
		deps.Console.BlockStart("🤖", "Assistant")
		for _, line := range strings.Split(strings.TrimRight(resp.Message, "\n"), "\n") {
			deps.Console.ItemPlain(line)
		}
		deps.Console.BlockEnd()
	}

	deps.Console.Item("State", state.WorkflowState)
	deps.Console.Item("Resources", len(state.Resources))
	if state.CompliancePassed != nil {
		deps.Console.Item("Compliance", *state.CompliancePassed)
	}

	if len(resp.CodeBlocks) == 0 {
		return nil
	}

	if outDir == "" {
		for _, block := range resp.CodeBlocks {
			fmt.Fprintf(deps.Out, "\n--- %s ---\n%s\n", block.Filename, block.Content)
		}
		return nil
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("chat: create output directory: %w", err)
	}
	for _, block := range resp.CodeBlocks {
		path := filepath.Join(outDir, block.Filename)
		if err := os.WriteFile(path, []byte(block.Content), 0o644); err != nil {
			return fmt.Errorf("chat: write %s: %w", block.Filename, err)
		}
		deps.Console.Success("wrote " + path)
	}
	return nil
}
