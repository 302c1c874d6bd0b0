package check

import (
	"context"
	"fmt"
	"log/slog"
)

// Scenario is a named entry point of the check. All scenarios run the same
// routine; they differ in label only.
type Scenario struct {
	Name        string
	Description string
}

var scenarios = []Scenario{
	{Name: "depth", Description: "grouped Conv3D vs per-group split, depthwise labelling"},
	{Name: "sep", Description: "grouped Conv3D vs per-group split, separable labelling"},
}

// Scenarios returns the registered scenarios in their default run order.
func Scenarios() []Scenario {
	return append([]Scenario(nil), scenarios...)
}

// DefaultScenarioNames returns the names run when none are given.
func DefaultScenarioNames() []string {
	names := make([]string, len(scenarios))
	for i, s := range scenarios {
		names[i] = s.Name
	}
	return names
}

// Lookup finds a scenario by name.
func Lookup(name string) (Scenario, bool) {
	for _, s := range scenarios {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

// RunAll runs the named scenarios in order, or the defaults when names is
// empty. It stops at the first error and returns the reports gathered so far.
func RunAll(ctx context.Context, names []string, cfg Config, logger *slog.Logger) ([]*Report, error) {
	if len(names) == 0 {
		names = DefaultScenarioNames()
	}
	for _, name := range names {
		if _, ok := Lookup(name); !ok {
			return nil, fmt.Errorf("%w: unknown scenario %q", ErrInvalidConfig, name)
		}
	}

	reports := make([]*Report, 0, len(names))
	for _, name := range names {
		r, err := Run(ctx, name, cfg, logger)
		if err != nil {
			return reports, fmt.Errorf("scenario %s: %w", name, err)
		}
		reports = append(reports, r)
	}
	return reports, nil
}
