package criteria

import (
	"fmt"
)

// TestCatalog is the slice of a template the builder needs: enough to
// reject rubric tests the template does not expose.
type TestCatalog interface {
	Name() string
	HasTest(name string) bool
}

// Build compiles a parsed rubric into the normalized criteria tree.
// After a successful build, sibling weights under every holder sum to
// 100 and every leaf names a test the catalog can execute.
func Build(cfg *Config, catalog TestCatalog) (*Tree, error) {
	if cfg == nil {
		return nil, &ConfigError{Reason: "empty document"}
	}
	if cfg.Base == nil {
		return nil, &ConfigError{Path: "base", Reason: "base category is required"}
	}
	if catalog == nil {
		return nil, &ConfigError{Reason: "no template loaded"}
	}

	tree := &Tree{TemplateName: catalog.Name()}

	base, err := buildCategory(cfg.Base, KindBase, catalog)
	if err != nil {
		return nil, err
	}
	tree.Base = base

	if cfg.Bonus != nil {
		bonus, err := buildCategory(cfg.Bonus, KindBonus, catalog)
		if err != nil {
			return nil, err
		}
		tree.Bonus = bonus
	}
	if cfg.Penalty != nil {
		penalty, err := buildCategory(cfg.Penalty, KindPenalty, catalog)
		if err != nil {
			return nil, err
		}
		tree.Penalty = penalty
	}

	return tree, nil
}

func buildCategory(cfg *CategoryConfig, kind CategoryKind, catalog TestCatalog) (*Holder, error) {
	path := string(kind)
	if cfg.Weight < 0 {
		return nil, &ConfigError{Path: path, Reason: "negative weight"}
	}
	if len(cfg.Tests) > 0 && len(cfg.Subjects) > 0 {
		return nil, &ConfigError{Path: path, Reason: "category declares both tests and subjects"}
	}
	if len(cfg.Tests) == 0 && len(cfg.Subjects) == 0 {
		return nil, &ConfigError{Path: path, Reason: "category declares neither tests nor subjects"}
	}

	holder := &Holder{
		Name:   string(kind),
		Kind:   kind,
		Weight: cfg.Weight,
	}

	if len(cfg.Subjects) > 0 {
		subjects, err := buildSubjects(cfg.Subjects, kind, path, catalog)
		if err != nil {
			return nil, err
		}
		holder.Subjects = subjects
	} else {
		tests, err := buildTests(cfg.Tests, string(kind), path, catalog)
		if err != nil {
			return nil, err
		}
		holder.Tests = tests
	}

	return holder, nil
}

func buildSubject(cfg SubjectConfig, kind CategoryKind, path string, catalog TestCatalog) (*Holder, error) {
	if cfg.SubjectName == "" {
		return nil, &ConfigError{Path: path, Reason: "subject without a name"}
	}
	path = path + "." + cfg.SubjectName
	if cfg.Weight < 0 {
		return nil, &ConfigError{Path: path, Reason: "negative weight"}
	}

	hasTests := len(cfg.Tests) > 0
	hasSubjects := len(cfg.Subjects) > 0
	if !hasTests && !hasSubjects {
		return nil, &ConfigError{Path: path, Reason: "subject declares neither tests nor subjects"}
	}

	holder := &Holder{
		Name:   cfg.SubjectName,
		Kind:   kind,
		Weight: cfg.Weight,
	}

	if hasTests && hasSubjects {
		// Mixing is allowed only with an explicit split of mass
		// between the subject group and the test group.
		if cfg.SubjectsWeight == nil {
			return nil, &ConfigError{Path: path, Reason: "mixed subject requires subjects_weight"}
		}
		sw := *cfg.SubjectsWeight
		if sw < 0 || sw > 100 {
			return nil, &ConfigError{Path: path, Reason: fmt.Sprintf("subjects_weight %v out of range [0,100]", sw)}
		}
		holder.Mixed = true
		holder.SubjectsWeight = sw
	}

	if hasSubjects {
		subjects, err := buildSubjects(cfg.Subjects, kind, path, catalog)
		if err != nil {
			return nil, err
		}
		holder.Subjects = subjects
	}
	if hasTests {
		tests, err := buildTests(cfg.Tests, cfg.SubjectName, path, catalog)
		if err != nil {
			return nil, err
		}
		holder.Tests = tests
	}

	return holder, nil
}

func buildSubjects(cfgs []SubjectConfig, kind CategoryKind, path string, catalog TestCatalog) ([]*Holder, error) {
	subjects := make([]*Holder, 0, len(cfgs))
	weights := make([]float64, 0, len(cfgs))
	for _, sc := range cfgs {
		child, err := buildSubject(sc, kind, path, catalog)
		if err != nil {
			return nil, err
		}
		subjects = append(subjects, child)
		weights = append(weights, child.Weight)
	}
	for i, w := range balanceWeights(weights) {
		subjects[i].Weight = w
	}
	return subjects, nil
}

func buildTests(cfgs []TestConfig, subjectName, path string, catalog TestCatalog) ([]*TestNode, error) {
	tests := make([]*TestNode, 0, len(cfgs))
	weights := make([]float64, 0, len(cfgs))
	for _, tc := range cfgs {
		if tc.Name == "" {
			return nil, &ConfigError{Path: path, Reason: "test without a name"}
		}
		if tc.Weight < 0 {
			return nil, &ConfigError{Path: path + "." + tc.Name, Reason: "negative weight"}
		}
		if !catalog.HasTest(tc.Name) {
			return nil, &UnknownTestError{TestName: tc.Name, Template: catalog.Name()}
		}

		files, err := NormalizeFileTarget(tc.File)
		if err != nil {
			return nil, err
		}
		params, err := NormalizeParameters(tc.Parameters)
		if err != nil {
			return nil, err
		}

		tests = append(tests, &TestNode{
			Name:        tc.Name,
			Weight:      tc.Weight,
			SubjectName: subjectName,
			Files:       files,
			Params:      params,
		})
		weights = append(weights, tc.Weight)
	}
	for i, w := range balanceWeights(weights) {
		tests[i].Weight = w
	}
	return tests, nil
}

// balanceWeights rescales sibling weights so they sum to 100. All-zero
// siblings each receive an equal share.
func balanceWeights(weights []float64) []float64 {
	n := len(weights)
	if n == 0 {
		return weights
	}
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	out := make([]float64, n)
	if sum == 0 {
		share := 100.0 / float64(n)
		for i := range out {
			out[i] = share
		}
		return out
	}
	for i, w := range weights {
		out[i] = w * 100.0 / sum
	}
	return out
}
