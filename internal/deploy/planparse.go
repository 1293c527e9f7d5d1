// Where: internal/deploy/planparse.go
// What: Extract the add/change/destroy summary from terraform plan output.
// Why: The human summary line is the stable contract across terraform versions.
package deploy

import (
	"regexp"
	"strconv"
	"strings"
)

var planSummaryLine = regexp.MustCompile(`Plan: (\d+) to add, (\d+) to change, (\d+) to destroy`)

// ParsePlanSummary reads the "Plan: N to add, ..." line. A plan with no
// changes has no summary line and parses to all zeros.
func ParsePlanSummary(planOutput string) PlanSummary {
	m := planSummaryLine.FindStringSubmatch(planOutput)
	if m == nil {
		return PlanSummary{}
	}
	add, _ := strconv.Atoi(m[1])
	change, _ := strconv.Atoi(m[2])
	destroy, _ := strconv.Atoi(m[3])
	return PlanSummary{Add: add, Change: change, Destroy: destroy}
}

// NoChanges reports whether the plan output declares an empty diff.
func NoChanges(planOutput string) bool {
	return strings.Contains(planOutput, "No changes.")
}
