// Where: cmd/iacpilot/cli.go
// What: CLI dependency wiring helpers.
// Why: Centralize construction for testability.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"github.com/opsloom/iacpilot/internal/app"
	"github.com/opsloom/iacpilot/internal/config"
	"github.com/opsloom/iacpilot/internal/deploy"
	"github.com/opsloom/iacpilot/internal/llm"
	"github.com/opsloom/iacpilot/internal/secrets"
	"github.com/opsloom/iacpilot/internal/spreadsheet"
	"github.com/opsloom/iacpilot/internal/store"
	"github.com/opsloom/iacpilot/internal/workflow"
)

// buildDependencies constructs all runtime dependencies required by the CLI.
// A .env file in the working directory is honored before settings load.
func buildDependencies() (app.Dependencies, io.Closer, error) {
	_ = godotenv.Load()
	settings := config.Load()

	st, err := store.Open(settings.DatabasePath)
	if err != nil {
		return app.Dependencies{}, nil, err
	}

	var chatter llm.Chatter
	if settings.OpenAIAPIKey != "" {
		chatter = llm.New(llm.Config{
			APIKey:      settings.OpenAIAPIKey,
			BaseURL:     settings.OpenAIBaseURL,
			Model:       settings.ModelName,
			Temperature: settings.Temperature,
			MaxTokens:   settings.MaxTokens,
			Timeout:     settings.LLMTimeout,
		})
	}

	engine, err := workflow.NewEngine(st, st, chatter, workflow.WithAudit(st))
	if err != nil {
		st.Close()
		return app.Dependencies{}, nil, err
	}

	deps := app.Dependencies{
		Out:     os.Stdout,
		Store:   st,
		Engine:  engine,
		Chatter: chatter,
		Parser:  spreadsheet.NewParser(),
	}

	// Deployment wiring is optional: environments and terraform only matter
	// for the deploy command group.
	if settings.EncryptionKey != "" {
		box, err := secrets.NewBox(settings.EncryptionKey)
		if err != nil {
			st.Close()
			return app.Dependencies{}, nil, err
		}
		deps.Box = box

		runner, err := buildRunner(settings)
		if err == nil {
			executor, execErr := deploy.NewExecutor(st, runner, box, settings.WorkRoot, deploy.Timeouts{
				Init:    settings.InitTimeout,
				Plan:    settings.PlanTimeout,
				Apply:   settings.ApplyTimeout,
				Destroy: settings.DestroyTimeout,
			})
			if execErr != nil {
				st.Close()
				return app.Dependencies{}, nil, execErr
			}
			deps.Executor = executor
		}
	}

	return deps, st, nil
}

// buildRunner selects the terraform runner per configuration.
func buildRunner(settings config.Settings) (deploy.Runner, error) {
	switch settings.TerraformRunner {
	case "docker":
		return deploy.NewDockerRunner(settings.TerraformImage)
	case "", "local":
		return deploy.NewLocalRunner(settings.TerraformBinary)
	default:
		return nil, fmt.Errorf("unknown terraform runner %q", settings.TerraformRunner)
	}
}
