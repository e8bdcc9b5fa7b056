package patient

import (
	"context"
)

// UpdateFunc receives the current record and returns the replacement. An
// error aborts the update without writing anything.
type UpdateFunc func(current Patient) (Patient, error)

// Repository is the storage collaborator behind the service. Implementations
// own their locking: Create and Update are atomic with respect to other
// calls on the same repository.
type Repository interface {
	List(ctx context.Context) (Directory, error)
	Get(ctx context.Context, id string) (*Patient, error)
	Create(ctx context.Context, id string, p *Patient) error
	Update(ctx context.Context, id string, fn UpdateFunc) (*Patient, error)
	Delete(ctx context.Context, id string) error
}

// Action names a kind of change in a ChangeEvent.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// ChangeEvent is emitted after a successful mutation.
type ChangeEvent struct {
	ID      string   `json:"id"`
	Action  Action   `json:"action"`
	Patient *Patient `json:"patient,omitempty"`
}

// EventPublisher delivers change events to interested parties.
type EventPublisher interface {
	Publish(ctx context.Context, evt ChangeEvent) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, ChangeEvent) error { return nil }
