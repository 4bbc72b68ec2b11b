// Package template defines the pluggable test libraries a rubric draws
// its tests from. Templates are registered at build time; no dynamic
// loading is involved.
package template

import (
	"context"
	"fmt"

	"gradehouse/internal/criteria"
	"gradehouse/internal/sandbox"
	"gradehouse/pkg/models"
)

// Result is what one test reports back: a score on the 0-100 scale and
// a human-readable account of what was checked.
type Result struct {
	Score  float64
	Report string
}

// Input carries everything a test may act on. Sandbox is nil when the
// owning template does not require one. Files holds only the files the
// rubric targeted for this test.
type Input struct {
	Files    map[string]string
	Sandbox  *sandbox.Sandbox
	Params   map[string]interface{}
	Language models.Language
}

// TestFunc executes one rubric test. Errors signal infrastructure
// failure; a graded zero is a Result with Score 0, not an error.
type TestFunc func(ctx context.Context, in Input) (Result, error)

// Template is a named collection of tests.
type Template interface {
	Name() string
	Description() string
	// RequiresSandbox reports whether tests of this template need a
	// container. The pipeline skips sandbox acquisition otherwise.
	RequiresSandbox() bool
	GetTest(name string) (TestFunc, bool)
	// Stop releases any resources the template holds. Called once when
	// the service shuts down.
	Stop()
}

// NotFoundError reports a template name the registry does not know.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no template registered under %q", e.Name)
}

type catalog struct {
	t Template
}

func (c catalog) Name() string { return c.t.Name() }

func (c catalog) HasTest(name string) bool {
	_, ok := c.t.GetTest(name)
	return ok
}

// Catalog adapts a template for rubric validation.
func Catalog(t Template) criteria.TestCatalog { return catalog{t: t} }
