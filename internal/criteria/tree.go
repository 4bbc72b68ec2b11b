package criteria

// CategoryKind names the three root categories of a rubric.
type CategoryKind string

const (
	KindBase    CategoryKind = "base"
	KindBonus   CategoryKind = "bonus"
	KindPenalty CategoryKind = "penalty"
)

// FileTarget selects which submission files a test reads. Empty means
// the test receives no files; All means the whole submission.
type FileTarget struct {
	All   bool
	Names []string
}

// TestNode is a leaf of the criteria tree. Nodes are stateless and
// reusable across submissions; the executable function is resolved by
// name against the loaded template at execution time.
type TestNode struct {
	Name        string
	Weight      float64
	SubjectName string
	Files       FileTarget
	Params      map[string]interface{}
}

// Holder is a non-leaf node: a category or subject owning children.
// Sibling weights under a holder always sum to 100 after build. When a
// holder carries both subjects and tests, SubjectsWeight (0-100) splits
// the mass between the two groups.
type Holder struct {
	Name           string
	Kind           CategoryKind
	Weight         float64
	SubjectsWeight float64
	Mixed          bool
	Subjects       []*Holder
	Tests          []*TestNode
}

// Leafy reports whether the holder directly owns tests.
func (h *Holder) Leafy() bool { return len(h.Tests) > 0 && len(h.Subjects) == 0 }

// Tree is the normalized runtime rubric. Immutable after construction
// and shared across concurrent graders without synchronization.
type Tree struct {
	TemplateName string
	Base         *Holder
	Bonus        *Holder
	Penalty      *Holder
}

// Categories iterates the present categories in rubric order.
func (t *Tree) Categories() []*Holder {
	out := make([]*Holder, 0, 3)
	if t.Base != nil {
		out = append(out, t.Base)
	}
	if t.Bonus != nil {
		out = append(out, t.Bonus)
	}
	if t.Penalty != nil {
		out = append(out, t.Penalty)
	}
	return out
}

// Walk visits every test node of a holder subtree in declaration order.
func (h *Holder) Walk(visit func(path []*Holder, t *TestNode)) {
	h.walk([]*Holder{}, visit)
}

func (h *Holder) walk(path []*Holder, visit func(path []*Holder, t *TestNode)) {
	here := append(path, h)
	for _, t := range h.Tests {
		visit(here, t)
	}
	for _, child := range h.Subjects {
		child.walk(here, visit)
	}
}
