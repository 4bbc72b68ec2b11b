// Package feedback renders grading results into text a student reads.
package feedback

import (
	"fmt"
	"strings"

	"gradehouse/internal/grading"
	"gradehouse/pkg/models"
)

// Generator renders one graded submission. Implementations may produce
// plain text, markdown, or anything a delivery channel needs.
type Generator interface {
	Render(sub *models.Submission, result *grading.Result, focus *grading.FocusReport) (string, error)
}

// PlainText is the default renderer: final score, per-test outcomes
// grouped by category, and the top focus suggestions.
type PlainText struct {
	// MaxFocusItems caps the suggestion list. Zero means 3.
	MaxFocusItems int
}

func (p *PlainText) Render(sub *models.Submission, result *grading.Result, focus *grading.FocusReport) (string, error) {
	if result == nil {
		return "", fmt.Errorf("no grading result to render")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Grading report for %s\n", sub.ID)
	fmt.Fprintf(&b, "Final score: %.1f / 100\n\n", result.FinalScore)

	writeCategory(&b, "Base", result.Base)
	writeCategory(&b, "Bonus", result.Bonus)
	writeCategory(&b, "Penalty", result.Penalty)

	if focus != nil && len(focus.Base) > 0 {
		limit := p.MaxFocusItems
		if limit <= 0 {
			limit = 3
		}
		b.WriteString("Where to focus next:\n")
		for i, item := range focus.Base {
			if i >= limit {
				break
			}
			label := item.TestName
			if item.SubjectPath != "" {
				label = item.SubjectPath + "/" + item.TestName
			}
			fmt.Fprintf(&b, "  %d. %s (scored %.1f)\n", i+1, label, item.Score)
		}
	}

	return b.String(), nil
}

func writeCategory(b *strings.Builder, label string, node *grading.ResultNode) {
	if node == nil {
		return
	}
	if node.Scored {
		fmt.Fprintf(b, "%s: %.1f\n", label, node.Score)
	} else {
		fmt.Fprintf(b, "%s: not graded\n", label)
	}
	writeTests(b, node, "  ")
	b.WriteString("\n")
}

func writeTests(b *strings.Builder, node *grading.ResultNode, indent string) {
	for _, t := range node.Tests {
		if !t.Executed {
			fmt.Fprintf(b, "%s- %s: skipped\n", indent, t.TestName)
			continue
		}
		fmt.Fprintf(b, "%s- %s: %.1f", indent, t.TestName, t.Score)
		if t.Report != "" {
			fmt.Fprintf(b, " (%s)", firstLine(t.Report))
		}
		b.WriteString("\n")
	}
	for _, child := range node.Children {
		fmt.Fprintf(b, "%s%s:\n", indent, child.Name)
		writeTests(b, child, indent+"  ")
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
