// Where: internal/app/policy.go
// What: Policy management commands.
// Why: Organization rules are created, listed, toggled, and edited here.
package app

import (
	"context"
	"fmt"

	"github.com/opsloom/iacpilot/internal/policy"
	"github.com/opsloom/iacpilot/internal/resource"
)

// PolicyCmd groups the policy management subcommands.
type PolicyCmd struct {
	List   PolicyListCmd   `cmd:"" help:"List policies"`
	Add    PolicyAddCmd    `cmd:"" help:"Add a policy from a natural-language rule"`
	Update PolicyUpdateCmd `cmd:"" help:"Update a policy"`
	Toggle PolicyToggleCmd `cmd:"" help:"Enable or disable a policy"`
	Remove PolicyRemoveCmd `cmd:"" help:"Remove a policy"`
	Import PolicyImportCmd `cmd:"" help:"Import policies from a YAML seed file"`
}

type (
	// PolicyListCmd lists stored policies.
	PolicyListCmd struct {
		Enabled bool `help:"Show enabled policies only"`
	}
	// PolicyAddCmd creates a policy; the rule is compiled at creation time.
	PolicyAddCmd struct {
		Name        string `arg:"" help:"Policy name (unique)"`
		Rule        string `arg:"" help:"Natural-language rule text"`
		Platform    string `default:"all" enum:"all,aws,azure" help:"Cloud platform filter"`
		Severity    string `default:"error" enum:"error,warning" help:"error blocks generation; warning only reports"`
		Description string `help:"Free-form description"`
		Disabled    bool   `help:"Create the policy disabled"`
	}
	// PolicyUpdateCmd edits a policy; the rule recompiles only when its text
	// changes.
	PolicyUpdateCmd struct {
		ID          int64  `arg:"" help:"Policy id"`
		Name        string `help:"New name"`
		Rule        string `help:"New natural-language rule text"`
		Platform    string `enum:"all,aws,azure,unchanged" default:"unchanged" help:"New cloud platform filter"`
		Severity    string `enum:"error,warning,unchanged" default:"unchanged" help:"New severity"`
		Description string `help:"New description"`
	}
	// PolicyToggleCmd flips the enabled flag.
	PolicyToggleCmd struct {
		ID int64 `arg:"" help:"Policy id"`
	}
	// PolicyRemoveCmd deletes a policy.
	PolicyRemoveCmd struct {
		ID int64 `arg:"" help:"Policy id"`
	}
	// PolicyImportCmd bulk-creates policies from a seed document.
	PolicyImportCmd struct {
		File string `arg:"" type:"existingfile" help:"Seed file (YAML)"`
	}
)

// Run executes the policy list command.
func (c PolicyListCmd) Run(deps *Dependencies) error {
	ctx := context.Background()
	policies, err := deps.Store.ListPolicies(ctx, c.Enabled)
	if err != nil {
		return fmt.Errorf("policy list: %w", err)
	}

	deps.Console.Header("🛡️", "Policies")
	if len(policies) == 0 {
		deps.Console.ItemPlain("no policies defined")
		return nil
	}
	for _, p := range policies {
		state := "enabled"
		if !p.Enabled {
			state = "disabled"
		}
		deps.Console.BlockStart("", fmt.Sprintf("#%d %s [%s/%s/%s]", p.ID, p.Name, p.Platform, p.Severity, state))
		deps.Console.ItemPlain(p.NaturalLanguageRule)
		if p.Compiled.Empty() {
			deps.Console.Warn("rule is not compiled")
		}
		deps.Console.BlockEnd()
	}
	return nil
}

// Run executes the policy add command.
func (c PolicyAddCmd) Run(deps *Dependencies) error {
	ctx := context.Background()

	compiled, err := policy.Compile(ctx, deps.Chatter, c.Rule)
	if err != nil {
		return fmt.Errorf("policy add: %w", err)
	}

	p := policy.Policy{
		Name:                c.Name,
		Description:         c.Description,
		NaturalLanguageRule: c.Rule,
		Platform:            resource.Platform(c.Platform),
		Severity:            policy.Severity(c.Severity),
		Enabled:             !c.Disabled,
		Compiled:            compiled,
	}
	if err := deps.Store.CreatePolicy(ctx, &p); err != nil {
		return fmt.Errorf("policy add: %w", err)
	}

	deps.Console.Success(fmt.Sprintf("policy #%d %q created", p.ID, p.Name))
	return nil
}

// Run executes the policy update command. Unset flags leave the stored
// values untouched, so repeated invocations are idempotent.
func (c PolicyUpdateCmd) Run(deps *Dependencies) error {
	ctx := context.Background()
	p, err := deps.Store.GetPolicy(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("policy update: %w", err)
	}

	if c.Name != "" {
		p.Name = c.Name
	}
	if c.Description != "" {
		p.Description = c.Description
	}
	if c.Platform != "unchanged" {
		p.Platform = resource.Platform(c.Platform)
	}
	if c.Severity != "unchanged" {
		p.Severity = policy.Severity(c.Severity)
	}
	if c.Rule != "" && c.Rule != p.NaturalLanguageRule {
		compiled, err := policy.Compile(ctx, deps.Chatter, c.Rule)
		if err != nil {
			return fmt.Errorf("policy update: %w", err)
		}
		p.NaturalLanguageRule = c.Rule
		p.Compiled = compiled
	}

	if err := deps.Store.UpdatePolicy(ctx, p); err != nil {
		return fmt.Errorf("policy update: %w", err)
	}
	deps.Console.Success(fmt.Sprintf("policy #%d updated", p.ID))
	return nil
}

// Run executes the policy toggle command.
func (c PolicyToggleCmd) Run(deps *Dependencies) error {
	p, err := deps.Store.TogglePolicy(context.Background(), c.ID)
	if err != nil {
		return fmt.Errorf("policy toggle: %w", err)
	}
	state := "enabled"
	if !p.Enabled {
		state = "disabled"
	}
	deps.Console.Success(fmt.Sprintf("policy #%d %s", p.ID, state))
	return nil
}

// Run executes the policy remove command.
func (c PolicyRemoveCmd) Run(deps *Dependencies) error {
	if err := deps.Store.DeletePolicy(context.Background(), c.ID); err != nil {
		return fmt.Errorf("policy remove: %w", err)
	}
	deps.Console.Success(fmt.Sprintf("policy #%d removed", c.ID))
	return nil
}

// Run executes the policy import command. The whole file compiles before
// anything is stored.
func (c PolicyImportCmd) Run(deps *Dependencies) error {
	ctx := context.Background()
	policies, err := policy.LoadSeed(ctx, deps.Chatter, c.File)
	if err != nil {
		return fmt.Errorf("policy import: %w", err)
	}
	for i := range policies {
		if err := deps.Store.CreatePolicy(ctx, &policies[i]); err != nil {
			return fmt.Errorf("policy import: %q: %w", policies[i].Name, err)
		}
	}
	deps.Console.Success(fmt.Sprintf("%d policies imported", len(policies)))
	return nil
}
