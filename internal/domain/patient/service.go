package patient

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// SortFields lists the fields accepted by SortBy.
var SortFields = []string{"weight", "height", "bmi"}

type Service struct {
	repo   Repository
	events EventPublisher
	logger zerolog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithEvents sets the publisher notified after each successful mutation.
func WithEvents(p EventPublisher) ServiceOption {
	return func(s *Service) { s.events = p }
}

// WithLogger sets the logger used for non-fatal failures.
func WithLogger(l zerolog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

func NewService(repo Repository, opts ...ServiceOption) *Service {
	s := &Service{repo: repo, events: noopPublisher{}, logger: zerolog.Nop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) List(ctx context.Context) (Directory, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (*Patient, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, in NewPatient) (*Patient, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	p := in.Record()
	if err := s.repo.Create(ctx, in.ID, &p); err != nil {
		return nil, err
	}
	s.publish(ctx, ChangeEvent{ID: in.ID, Action: ActionCreated, Patient: &p})
	return &p, nil
}

func (s *Service) Update(ctx context.Context, id string, patch Patch) (*Patient, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	p, err := s.repo.Update(ctx, id, func(current Patient) (Patient, error) {
		merged := patch.Apply(current)
		if err := merged.Validate(); err != nil {
			return Patient{}, err
		}
		return merged, nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, ChangeEvent{ID: id, Action: ActionUpdated, Patient: p})
	return p, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, ChangeEvent{ID: id, Action: ActionDeleted})
	return nil
}

// SortBy returns every record ordered by a numeric field. Ties keep
// directory order in both directions.
func (s *Service) SortBy(ctx context.Context, field, order string) ([]Patient, error) {
	key, err := sortKey(field)
	if err != nil {
		return nil, err
	}
	if order == "" {
		order = "asc"
	}
	if order != "asc" && order != "desc" {
		return nil, fmt.Errorf("%w: Invalid order! Choose either asc or desc", ErrInvalidArgument)
	}

	dir, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	records := dir.Records()
	desc := order == "desc"
	sort.SliceStable(records, func(i, j int) bool {
		if desc {
			return key(records[i]) > key(records[j])
		}
		return key(records[i]) < key(records[j])
	})
	return records, nil
}

func sortKey(field string) (func(Patient) float64, error) {
	switch field {
	case "weight":
		return func(p Patient) float64 { return p.Weight }, nil
	case "height":
		return func(p Patient) float64 { return p.Height }, nil
	case "bmi":
		return func(p Patient) float64 { return p.BMI }, nil
	}
	return nil, fmt.Errorf("%w: Invalid field! Choose from %v", ErrInvalidArgument, SortFields)
}

func (s *Service) publish(ctx context.Context, evt ChangeEvent) {
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.Warn().Err(err).Str("patient_id", evt.ID).Str("action", string(evt.Action)).Msg("publish change event")
	}
}

// MultiPublisher fans an event out to several publishers and returns the
// first error after trying all of them.
type MultiPublisher []EventPublisher

func (m MultiPublisher) Publish(ctx context.Context, evt ChangeEvent) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, evt); err != nil && first == nil {
			first = err
		}
	}
	return first
}
