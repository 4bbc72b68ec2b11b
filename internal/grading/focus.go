package grading

import (
	"sort"
	"strings"
)

// FocusItem ranks one executed test by how much score it left on the
// table. Impact is the lost fraction of the test scaled by every
// weight on the path down to it, so items are comparable across the
// whole category.
type FocusItem struct {
	TestName    string  `json:"test_name"`
	SubjectPath string  `json:"subject_path,omitempty"`
	Score       float64 `json:"score"`
	Impact      float64 `json:"impact"`
}

// FocusReport lists, per category, where effort would raise the grade
// the most.
type FocusReport struct {
	Base    []FocusItem `json:"base"`
	Bonus   []FocusItem `json:"bonus,omitempty"`
	Penalty []FocusItem `json:"penalty,omitempty"`
}

// BuildFocus derives the focus report from a grading result. Tests
// that never executed are excluded; a skipped test says nothing about
// where to improve.
func BuildFocus(result *Result) *FocusReport {
	report := &FocusReport{}
	if result.Base != nil {
		report.Base = rankHolder(result.Base)
	}
	if result.Bonus != nil {
		report.Bonus = rankHolder(result.Bonus)
	}
	if result.Penalty != nil {
		report.Penalty = rankHolder(result.Penalty)
	}
	return report
}

func rankHolder(root *ResultNode) []FocusItem {
	var items []FocusItem
	collectFocus(root, 1.0, nil, &items)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Impact > items[j].Impact
	})
	return items
}

// collectFocus walks the result tree carrying the product of weights
// above the current node. Mixed holders split the carried factor
// between their subject group and their test group.
func collectFocus(node *ResultNode, factor float64, path []string, items *[]FocusItem) {
	testFactor := factor
	childFactor := factor
	if node.Mixed {
		sw := node.SubjectsWeight / 100.0
		childFactor = factor * sw
		testFactor = factor * (1 - sw)
	}

	for i, t := range node.Tests {
		if !t.Executed {
			continue
		}
		w := 0.0
		if i < len(node.testWeights) {
			w = node.testWeights[i]
		}
		impact := (100 - t.Score) * testFactor * (w / 100.0)
		if impact <= 0 {
			continue
		}
		*items = append(*items, FocusItem{
			TestName:    t.TestName,
			SubjectPath: strings.Join(path, "/"),
			Score:       t.Score,
			Impact:      impact,
		})
	}

	for _, child := range node.Children {
		collectFocus(child, childFactor*(child.Weight/100.0), append(path, child.Name), items)
	}
}
