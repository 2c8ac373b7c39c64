package job

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/overmindtech/flightctl/flight"
)

// Operations recorded in a Plan
const (
	OpRead  = "read"
	OpJoin  = "join"
	OpWrite = "write"
)

// Step is a single engine operation
type Step struct {
	Op      string            `json:"op" yaml:"op"`
	Dataset string            `json:"dataset,omitempty" yaml:"dataset,omitempty"`
	Inputs  []string          `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Column  string            `json:"column,omitempty" yaml:"column,omitempty"`
	Format  string            `json:"format,omitempty" yaml:"format,omitempty"`
	Mode    SaveMode          `json:"mode,omitempty" yaml:"mode,omitempty"`
	Options map[string]string `json:"options,omitempty" yaml:"options,omitempty"`
}

// Plan is everything an engine was asked to do, in order
type Plan struct {
	RunID string `json:"run_id" yaml:"run_id"`
	Steps []Step `json:"steps" yaml:"steps"`
}

// Redacted returns a copy of the plan with access tokens hidden
func (p Plan) Redacted() Plan {
	out := p.clone()

	for _, step := range out.Steps {
		if _, ok := step.Options[flight.OptionToken]; ok {
			step.Options[flight.OptionToken] = "REDACTED"
		}
	}

	return out
}

func (p Plan) clone() Plan {
	out := Plan{
		RunID: p.RunID,
		Steps: make([]Step, len(p.Steps)),
	}

	for i, step := range p.Steps {
		step.Inputs = slices.Clone(step.Inputs)
		step.Options = maps.Clone(step.Options)
		out.Steps[i] = step
	}

	return out
}

// PlanEngine is an Engine that moves no data. It records each call so that the
// plan can be handed to a real engine, or inspected
type PlanEngine struct {
	mu    sync.Mutex
	plan  Plan
	count int
}

var _ Engine = (*PlanEngine)(nil)

// NewPlanEngine creates an empty plan for the given run
func NewPlanEngine(runID uuid.UUID) *PlanEngine {
	return &PlanEngine{
		plan: Plan{
			RunID: runID.String(),
			Steps: []Step{},
		},
	}
}

// Plan returns a copy of the steps recorded so far
func (e *PlanEngine) Plan() Plan {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.plan.clone()
}

func (e *PlanEngine) Read(ctx context.Context, format string, options map[string]string) (Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ds := e.newDataset()
	e.plan.Steps = append(e.plan.Steps, Step{
		Op:      OpRead,
		Dataset: ds.name,
		Format:  format,
		Options: maps.Clone(options),
	})

	return ds, nil
}

func (e *PlanEngine) Write(ctx context.Context, dataset Dataset, format string, options map[string]string, mode SaveMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ds, err := e.own(dataset)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.plan.Steps = append(e.plan.Steps, Step{
		Op:      OpWrite,
		Inputs:  []string{ds.name},
		Format:  format,
		Mode:    mode,
		Options: maps.Clone(options),
	})

	return nil
}

func (e *PlanEngine) join(ctx context.Context, left *planDataset, other Dataset, column string) (Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	right, err := e.own(other)
	if err != nil {
		return nil, err
	}

	if column == "" {
		return nil, errors.New("join column must not be empty")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ds := e.newDataset()
	e.plan.Steps = append(e.plan.Steps, Step{
		Op:      OpJoin,
		Dataset: ds.name,
		Inputs:  []string{left.name, right.name},
		Column:  column,
	})

	return ds, nil
}

// newDataset must be called with the lock held
func (e *PlanEngine) newDataset() *planDataset {
	e.count++
	return &planDataset{
		engine: e,
		name:   fmt.Sprintf("ds%d", e.count),
	}
}

func (e *PlanEngine) own(dataset Dataset) (*planDataset, error) {
	ds, ok := dataset.(*planDataset)
	if !ok || ds.engine != e {
		return nil, fmt.Errorf("dataset %v was not created by this engine", dataset)
	}

	return ds, nil
}

type planDataset struct {
	engine *PlanEngine
	name   string
}

func (d *planDataset) Join(ctx context.Context, other Dataset, column string) (Dataset, error) {
	return d.engine.join(ctx, d, other, column)
}

func (d *planDataset) String() string {
	return d.name
}
