// Where: internal/app/deploy.go
// What: Deployment lifecycle commands (plan, apply, destroy, show, list).
// Why: The generated project meets real cloud credentials here.
package app

import (
	"context"
	"fmt"

	"github.com/opsloom/iacpilot/internal/deploy"
)

// DeployCmd groups the deployment subcommands.
type DeployCmd struct {
	Plan    DeployPlanCmd    `cmd:"" help:"Run terraform init+plan for a session's generated code"`
	Apply   DeployApplyCmd   `cmd:"" help:"Apply a planned deployment"`
	Destroy DeployDestroyCmd `cmd:"" help:"Destroy an applied deployment"`
	Show    DeployShowCmd    `cmd:"" help:"Show one deployment"`
	List    DeployListCmd    `cmd:"" help:"List deployments for a session"`
}

type (
	// DeployPlanCmd plans a session's generated code against an environment.
	DeployPlanCmd struct {
		Session string `arg:"" help:"Session whose generated code to deploy"`
		Env     string `arg:"" help:"Environment name holding the credentials"`
	}
	// DeployApplyCmd applies a plan_ready deployment.
	DeployApplyCmd struct {
		DeploymentID string `arg:"" help:"Deployment id"`
	}
	// DeployDestroyCmd tears down an applied deployment.
	DeployDestroyCmd struct {
		DeploymentID string `arg:"" help:"Deployment id"`
	}
	// DeployShowCmd prints one deployment record.
	DeployShowCmd struct {
		DeploymentID string `arg:"" help:"Deployment id"`
	}
	// DeployListCmd lists a session's deployments, newest first.
	DeployListCmd struct {
		Session string `arg:"" help:"Session id"`
		Limit   int    `default:"20" help:"Maximum rows"`
	}
)

// Run executes the deploy plan command.
func (c DeployPlanCmd) Run(deps *Dependencies) error {
	ctx := context.Background()

	state, err := deps.Store.LoadState(ctx, c.Session)
	if err != nil {
		return fmt.Errorf("deploy plan: %w", err)
	}
	if state == nil || len(state.GeneratedCode) == 0 {
		return fmt.Errorf("deploy plan: session %s has no generated code", c.Session)
	}

	env, err := deps.Store.GetEnvironmentByName(ctx, c.Env)
	if err != nil {
		return fmt.Errorf("deploy plan: %w", err)
	}
	if deps.Executor == nil {
		return fmt.Errorf("deploy plan: executor is not configured")
	}

	deps.Console.Header("🚀", "Plan")
	d, err := deps.Executor.Plan(ctx, c.Session, env.ID, state.GeneratedCode)
	if err != nil {
		return fmt.Errorf("deploy plan: %w", err)
	}
	renderDeployment(deps, d)
	return nil
}

// Run executes the deploy apply command.
func (c DeployApplyCmd) Run(deps *Dependencies) error {
	if deps.Executor == nil {
		return fmt.Errorf("deploy apply: executor is not configured")
	}
	deps.Console.Header("🚀", "Apply")
	d, err := deps.Executor.Apply(context.Background(), c.DeploymentID)
	if err != nil {
		return fmt.Errorf("deploy apply: %w", err)
	}
	renderDeployment(deps, d)
	return nil
}

// Run executes the deploy destroy command.
func (c DeployDestroyCmd) Run(deps *Dependencies) error {
	if deps.Executor == nil {
		return fmt.Errorf("deploy destroy: executor is not configured")
	}
	deps.Console.Header("🔥", "Destroy")
	d, err := deps.Executor.Destroy(context.Background(), c.DeploymentID)
	if err != nil {
		return fmt.Errorf("deploy destroy: %w", err)
	}
	renderDeployment(deps, d)
	return nil
}

// Run executes the deploy show command.
func (c DeployShowCmd) Run(deps *Dependencies) error {
	d, err := deps.Store.GetDeployment(context.Background(), c.DeploymentID)
	if err != nil {
		return fmt.Errorf("deploy show: %w", err)
	}
	deps.Console.Header("📦", "Deployment")
	renderDeployment(deps, d)
	if d.PlanOutput != "" {
		fmt.Fprintln(deps.Out, d.PlanOutput)
	}
	if d.ApplyOutput != "" {
		fmt.Fprintln(deps.Out, d.ApplyOutput)
	}
	return nil
}

// Run executes the deploy list command.
func (c DeployListCmd) Run(deps *Dependencies) error {
	deployments, err := deps.Store.ListDeployments(context.Background(), c.Session, c.Limit)
	if err != nil {
		return fmt.Errorf("deploy list: %w", err)
	}
	deps.Console.Header("📦", "Deployments")
	if len(deployments) == 0 {
		deps.Console.ItemPlain("no deployments for session " + c.Session)
		return nil
	}
	for _, d := range deployments {
		deps.Console.Item(d.DeploymentID, string(d.Status))
	}
	return nil
}

// renderDeployment prints the status line plus whichever results exist.
func renderDeployment(deps *Dependencies, d *deploy.Deployment) {
	deps.Console.Item("Deployment", d.DeploymentID)
	deps.Console.Item("Status", string(d.Status))
	if d.PlanSummary != nil {
		deps.Console.Item("Plan", fmt.Sprintf("%d to add, %d to change, %d to destroy",
			d.PlanSummary.Add, d.PlanSummary.Change, d.PlanSummary.Destroy))
	}
	if len(d.TerraformOutputs) > 0 {
		deps.Console.BlockStart("", "Outputs")
		for key, value := range d.TerraformOutputs {
			deps.Console.Item(key, value)
		}
		deps.Console.BlockEnd()
	}
	if d.ErrorMessage != "" {
		deps.Console.Error(d.ErrorMessage)
	}
}
