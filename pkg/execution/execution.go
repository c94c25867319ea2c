// Package execution builds workflow executions from trigger results and
// hands them to an enqueuer.
package execution

import (
	"context"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/grafana/cqlflow/pkg/materialize"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// State is the lifecycle state of an execution.
type State string

const StateCreated State = "CREATED"

// TriggerContext identifies the flow and trigger an execution is created
// for. It is built per evaluation and never shared.
type TriggerContext struct {
	Namespace    string
	FlowID       string
	FlowRevision int
	TriggerID    string
	TriggerType  string
}

// Trigger is the trigger section of an execution.
type Trigger struct {
	ID        string              `json:"id"`
	Type      string              `json:"type"`
	Variables *materialize.Output `json:"variables"`
}

// Execution is a workflow execution started by a trigger.
type Execution struct {
	ID           string    `json:"id"`
	Namespace    string    `json:"namespace"`
	FlowID       string    `json:"flowId"`
	FlowRevision int       `json:"flowRevision"`
	State        State     `json:"state"`
	Trigger      Trigger   `json:"trigger"`
	Created      time.Time `json:"created"`
}

func (e *Execution) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Creator turns a trigger result into an enqueued execution.
type Creator interface {
	Create(ctx context.Context, tc TriggerContext, out *materialize.Output) (*Execution, error)
}

// Enqueuer accepts executions for the workflow engine.
type Enqueuer interface {
	Enqueue(ctx context.Context, e *Execution) error
}

// Factory creates executions stamped by its clock and enqueues them.
type Factory struct {
	enqueuer Enqueuer
	clock    quartz.Clock
}

func NewFactory(enqueuer Enqueuer, clock quartz.Clock) *Factory {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Factory{enqueuer: enqueuer, clock: clock}
}

func (f *Factory) Create(ctx context.Context, tc TriggerContext, out *materialize.Output) (*Execution, error) {
	e := &Execution{
		ID:           uuid.NewString(),
		Namespace:    tc.Namespace,
		FlowID:       tc.FlowID,
		FlowRevision: tc.FlowRevision,
		State:        StateCreated,
		Trigger: Trigger{
			ID:        tc.TriggerID,
			Type:      tc.TriggerType,
			Variables: out,
		},
		Created: f.clock.Now().UTC(),
	}
	if err := f.enqueuer.Enqueue(ctx, e); err != nil {
		return nil, errors.Wrapf(err, "enqueuing execution %s", e.ID)
	}
	return e, nil
}
