// Where: internal/workflow/stages.go
// What: The parse, collect, and comply stages with their routing.
// Why: Each stage is a pure function over the state plus its collaborators.
package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/opsloom/iacpilot/internal/llm"
	"github.com/opsloom/iacpilot/internal/policy"
	"github.com/opsloom/iacpilot/internal/progress"
	"github.com/opsloom/iacpilot/internal/resource"
)

// runParse maps the conversation onto the canonical resource list.
//
// Re-entry discrimination: a state seeded by a spreadsheet upload on its
// first turn must not be re-parsed (the batch is already complete), but a
// natural-language follow-up must always re-parse so newly supplied fields
// land. Resource presence alone is not enough to tell the two apart.
func (e *Engine) runParse(ctx context.Context, st *State, em progress.Emitter) stage {
	progress.Started(em, progress.AgentParser, "Analyzing your request...")

	spreadsheetSeed := st.InputType == InputSpreadsheet ||
		(len(st.Resources) > 0 && len(st.Messages) <= 1)

	if spreadsheetSeed && len(st.Resources) > 0 {
		for i := range st.Resources {
			st.Resources[i].Normalize()
			resource.MirrorMetadataTags(st.Resources[i].Properties)
		}
		st.InformationComplete = true
		st.WorkflowState = StateCheckingCompliance
		st.AppendAssistant(fmt.Sprintf("Received %d resources from spreadsheet upload.", len(st.Resources)))
		progress.Completed(em, progress.AgentParser, "")
		return stageComply
	}

	if e.chatter == nil {
		st.RecordError("no language model configured")
		st.AppendAssistant("No language model is configured; cannot parse free-form input.")
		progress.Failed(em, progress.AgentParser, "no model configured")
		return stageEnd
	}

	messages := append([]llm.Message{{Role: llm.RoleSystem, Content: parseSystemPrompt}}, st.Messages...)
	response, err := e.chatter.Chat(ctx, messages, llm.Options{})
	if err != nil {
		st.RecordError("parse stage: " + err.Error())
		st.AppendAssistant("I could not reach the language model. Please try again.")
		progress.Failed(em, progress.AgentParser, err.Error())
		return stageEnd
	}

	extraction, err := llm.DecodeExtraction(response)
	if err != nil {
		// Reported, not retried: the turn costs a clarification, never state.
		st.WorkflowState = StateWaitingForUser
		st.AppendAssistant("I could not identify cloud resources in that request. Could you rephrase it, for example: \"create an EC2 instance in us-east-1\"?")
		progress.Completed(em, progress.AgentParser, "no resources extracted")
		return stageEnd
	}

	if len(extraction.Resources) == 0 {
		st.WorkflowState = StateWaitingForUser
		message := extraction.Message
		if message == "" {
			message = "I need more detail about the infrastructure you want to build."
		}
		st.AppendAssistant(message)
		progress.Completed(em, progress.AgentParser, "clarification requested")
		return stageEnd
	}

	st.Resources = resource.Merge(st.Resources, extraction.Resources)
	for i := range st.Resources {
		resource.MirrorMetadataTags(st.Resources[i].Properties)
	}
	st.WorkflowState = StateCollecting
	progress.Completed(em, progress.AgentParser, fmt.Sprintf("%d resources identified", len(st.Resources)))
	return stageCollect
}

// runCollect detects missing required fields per resource. Complete
// information advances to comply; anything missing composes one follow-up
// message and ends the run awaiting the next turn.
func (e *Engine) runCollect(ctx context.Context, st *State, em progress.Emitter) stage {
	progress.Started(em, progress.AgentCollector, "Validating resource information...")

	missing := map[string][]string{}
	var unknown []string
	for _, r := range st.Resources {
		r.Normalize()
		if !resource.Known(r.Type) {
			unknown = append(unknown, fmt.Sprintf("%s (%s)", r.Name, r.Type))
			continue
		}
		if fields := resource.MissingFields(r); len(fields) > 0 {
			missing[r.Name] = fields
		}
	}
	st.MissingFields = missing

	if len(missing) == 0 && len(unknown) == 0 {
		st.InformationComplete = true
		st.WorkflowState = StateCheckingCompliance
		progress.Completed(em, progress.AgentCollector, "information complete")
		return stageComply
	}

	st.InformationComplete = false
	st.WorkflowState = StateWaitingForUser
	st.AppendAssistant(composeMissingFieldsMessage(st.Resources, missing, unknown))
	progress.Completed(em, progress.AgentCollector, "awaiting more information")
	return stageEnd
}

// composeMissingFieldsMessage enumerates gaps grouped by resource, in
// resource order, with a copy-paste template for the reply.
func composeMissingFieldsMessage(resources []resource.Resource, missing map[string][]string, unknown []string) string {
	var b strings.Builder
	b.WriteString("I need a bit more information before generating code.\n")

	for _, r := range resources {
		fields, ok := missing[r.Name]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "\n**%s** (%s) is missing:\n", r.Name, r.Type)
		for _, f := range fields {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}

	if len(unknown) > 0 {
		sort.Strings(unknown)
		b.WriteString("\nThese resources have types I do not support yet: ")
		b.WriteString(strings.Join(unknown, ", "))
		b.WriteString(".\n")
	}

	if len(missing) > 0 {
		b.WriteString("\nYou can reply like:\n```\n")
		for _, r := range resources {
			for _, f := range missing[r.Name] {
				fmt.Fprintf(&b, "%s: <value>\n", f)
			}
		}
		b.WriteString("```\n")
	}
	return b.String()
}

// runComply evaluates the enabled policies against the resource list.
func (e *Engine) runComply(ctx context.Context, st *State, em progress.Emitter) stage {
	progress.Started(em, progress.AgentComply, "Checking compliance policies...")
	st.WorkflowState = StateCheckingCompliance

	policies, err := e.policies.EnabledPolicies(ctx)
	if err != nil {
		st.RecordError("compliance stage: " + err.Error())
		st.AppendAssistant("Policy evaluation failed: " + err.Error())
		progress.Failed(em, progress.AgentComply, err.Error())
		return stageEnd
	}

	if len(policies) == 0 {
		passed := true
		st.CompliancePassed = &passed
		st.Violations = nil
		st.WorkflowState = StateGenerating
		st.AppendAssistant("No compliance policies configured. Proceeding to code generation...")
		progress.Completed(em, progress.AgentComply, "no policies configured")
		return stageGenerate
	}

	result := policy.Evaluate(policies, st.Resources)
	st.CompliancePassed = &result.Passed
	st.Violations = result.Violations
	st.PolicyWarnings = result.Warnings

	if result.Passed {
		st.WorkflowState = StateGenerating
		message := fmt.Sprintf("Compliance check passed. Checked %d policies. Proceeding to code generation...", result.CheckedPolicies)
		if len(result.Warnings) > 0 {
			message += fmt.Sprintf(" (%d warnings)", len(result.Warnings))
		}
		st.AppendAssistant(message)
		progress.Completed(em, progress.AgentComply, "passed")
		return stageGenerate
	}

	st.WorkflowState = StateComplianceFailed
	var b strings.Builder
	fmt.Fprintf(&b, "Compliance check failed. Found %d violations:\n", len(st.Violations))
	for _, v := range st.Violations {
		fmt.Fprintf(&b, "- %s: %s (policy: %s)\n", v.ResourceName, v.Detail, v.PolicyName)
	}
	b.WriteString("\nPlease fix these issues before proceeding.")
	st.AppendAssistant(b.String())
	progress.Completed(em, progress.AgentComply, "violations found")
	return stageEnd
}
