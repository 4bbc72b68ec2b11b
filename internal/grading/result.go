// Package grading walks a criteria tree against one submission and
// aggregates test outcomes into the final score.
package grading

import (
	"gradehouse/internal/criteria"
)

// TestResult is the outcome of one executed rubric test.
type TestResult struct {
	TestName    string                 `json:"test_name"`
	SubjectName string                 `json:"subject_name,omitempty"`
	Score       float64                `json:"score"`
	Report      string                 `json:"report"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
	// Executed is false when the test never ran, for example because
	// the grading context was cancelled first. Unexecuted tests carry
	// no weight during aggregation.
	Executed bool `json:"executed"`
}

// ResultNode mirrors one holder of the criteria tree with scores
// attached.
type ResultNode struct {
	Name           string        `json:"name"`
	Weight         float64       `json:"weight"`
	SubjectsWeight float64       `json:"subjects_weight,omitempty"`
	Mixed          bool          `json:"mixed,omitempty"`
	Score          float64       `json:"score"`
	Scored         bool          `json:"scored"`
	Children       []*ResultNode `json:"children,omitempty"`
	Tests          []*TestResult `json:"tests,omitempty"`

	testWeights []float64
}

// Result is the complete outcome of grading one submission.
type Result struct {
	FinalScore float64     `json:"final_score"`
	Base       *ResultNode `json:"base"`
	Bonus      *ResultNode `json:"bonus,omitempty"`
	Penalty    *ResultNode `json:"penalty,omitempty"`
}

// AllTests flattens every test result in rubric order.
func (r *Result) AllTests() []*TestResult {
	var out []*TestResult
	for _, node := range []*ResultNode{r.Base, r.Bonus, r.Penalty} {
		if node != nil {
			collectTests(node, &out)
		}
	}
	return out
}

func collectTests(node *ResultNode, out *[]*TestResult) {
	*out = append(*out, node.Tests...)
	for _, child := range node.Children {
		collectTests(child, out)
	}
}

// aggregate computes the node's score bottom-up. Weights of children
// that produced no score are redistributed across the siblings that
// did, so a skipped subtree never drags the average toward zero.
func (n *ResultNode) aggregate() {
	for _, child := range n.Children {
		child.aggregate()
	}

	testScore, testOK := weightedMeanTests(n.Tests, n.testWeights)
	childScore, childOK := weightedMeanChildren(n.Children)

	switch {
	case n.Mixed && testOK && childOK:
		sw := n.SubjectsWeight / 100.0
		n.Score = childScore*sw + testScore*(1-sw)
		n.Scored = true
	case childOK:
		n.Score = childScore
		n.Scored = true
	case testOK:
		n.Score = testScore
		n.Scored = true
	default:
		n.Score = 0
		n.Scored = false
	}
}

func weightedMeanTests(tests []*TestResult, weights []float64) (float64, bool) {
	var sum, mass float64
	count := 0
	for i, t := range tests {
		if !t.Executed {
			continue
		}
		w := 0.0
		if i < len(weights) {
			w = weights[i]
		}
		sum += t.Score * w
		mass += w
		count++
	}
	if count == 0 {
		return 0, false
	}
	if mass == 0 {
		// All executed siblings carry zero weight; fall back to a
		// plain average.
		sum = 0
		for _, t := range tests {
			if t.Executed {
				sum += t.Score
			}
		}
		return sum / float64(count), true
	}
	return sum / mass, true
}

func weightedMeanChildren(children []*ResultNode) (float64, bool) {
	var sum, mass float64
	count := 0
	for _, child := range children {
		if !child.Scored {
			continue
		}
		sum += child.Score * child.Weight
		mass += child.Weight
		count++
	}
	if count == 0 {
		return 0, false
	}
	if mass == 0 {
		sum = 0
		for _, child := range children {
			if child.Scored {
				sum += child.Score
			}
		}
		return sum / float64(count), true
	}
	return sum / mass, true
}

// finalize combines the three category scores into the final grade.
// Bonus and penalty scale their category weight by attainment, then
// the total clamps to the 0-100 scale.
func finalize(tree *criteria.Tree, base, bonus, penalty *ResultNode) float64 {
	score := 0.0
	if base != nil && base.Scored {
		score = base.Score
	}
	if bonus != nil && bonus.Scored && tree.Bonus != nil {
		score += bonus.Score / 100.0 * tree.Bonus.Weight
	}
	if penalty != nil && penalty.Scored && tree.Penalty != nil {
		score -= penalty.Score / 100.0 * tree.Penalty.Weight
	}
	return clamp(score, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
