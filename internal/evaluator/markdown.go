package evaluator

import (
	"fmt"
	"strings"

	"solana-trade-agent/internal/domain"
)

// RenderMarkdown renders the criteria checklist of one evaluation as Markdown.
func RenderMarkdown(result domain.EvaluationResult, criteria []CriterionResult) string {
	var sb strings.Builder

	status := "REJECTED"
	if result.Accepted {
		status = "ACCEPTED"
	}
	sb.WriteString(fmt.Sprintf("# Evaluation: %s\n\n", result.TokenID))
	sb.WriteString(fmt.Sprintf("## Result: %s (score %.2f)\n\n", status, result.Score))

	sb.WriteString("| # | Field | Threshold | Actual | Pass |\n")
	sb.WriteString("|---|-------|-----------|--------|------|\n")
	for i, c := range criteria {
		actual := fmt.Sprintf("%.4f", c.Actual)
		if c.Missing {
			actual = "missing"
		}
		passStr := "PASS"
		if !c.Pass {
			passStr = "FAIL"
		}
		sb.WriteString(fmt.Sprintf("| %d | %s | %s %.4f | %s | %s |\n",
			i+1, c.Name, c.Bound, c.Value, actual, passStr))
	}

	if len(result.Failing) > 0 {
		sb.WriteString(fmt.Sprintf("\nFailing: %s\n", strings.Join(result.Failing, ", ")))
	}
	return sb.String()
}
