// Where: internal/app/app.go
// What: CLI entrypoint logic and dependency wiring.
// Why: Provide a testable command dispatcher over injected subsystems.
package app

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"

	"github.com/opsloom/iacpilot/internal/deploy"
	"github.com/opsloom/iacpilot/internal/llm"
	"github.com/opsloom/iacpilot/internal/secrets"
	"github.com/opsloom/iacpilot/internal/spreadsheet"
	"github.com/opsloom/iacpilot/internal/store"
	"github.com/opsloom/iacpilot/internal/ui"
	"github.com/opsloom/iacpilot/internal/version"
	"github.com/opsloom/iacpilot/internal/workflow"
)

// Dependencies holds the injected subsystems commands run against.
type Dependencies struct {
	Out      io.Writer
	Console  *ui.Console
	Store    *store.Store
	Engine   *workflow.Engine
	Executor *deploy.Executor
	Chatter  llm.Chatter
	Parser   *spreadsheet.Parser
	Box      *secrets.Box
}

// CLI defines the command tree parsed by Kong.
type CLI struct {
	Chat    ChatCmd    `cmd:"" help:"Send a message through the generation pipeline"`
	Upload  UploadCmd  `cmd:"" help:"Ingest a resource spreadsheet"`
	Policy  PolicyCmd  `cmd:"" help:"Manage compliance policies"`
	Env     EnvCmd     `cmd:"" name:"env" help:"Manage deployment environments"`
	Deploy  DeployCmd  `cmd:"" help:"Plan, apply, and destroy deployments"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// VersionCmd prints build information.
type VersionCmd struct{}

// Run executes the version command.
func (VersionCmd) Run(deps *Dependencies) error {
	fmt.Fprintf(deps.Out, "iacpilot %s\n", version.GetVersion())
	return nil
}

// Run parses the arguments and dispatches the selected command. Returns the
// process exit code.
func Run(args []string, deps Dependencies) int {
	if deps.Out == nil {
		deps.Out = os.Stdout
	}
	if deps.Console == nil {
		deps.Console = ui.New(deps.Out)
	}
	if deps.Parser == nil {
		deps.Parser = spreadsheet.NewParser()
	}

	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("iacpilot"),
		kong.Description("Conversational infrastructure-as-code generation pipeline"),
		kong.Writers(deps.Out, deps.Out),
		kong.Exit(func(int) {}),
	)
	if err != nil {
		fmt.Fprintln(deps.Out, err)
		return 1
	}

	ctx, err := parser.Parse(args)
	if err != nil {
		fmt.Fprintln(deps.Out, err)
		return 1
	}
	if err := ctx.Run(&deps); err != nil {
		deps.Console.Error(err.Error())
		return 1
	}
	return 0
}
