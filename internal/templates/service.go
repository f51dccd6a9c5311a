// Package templates manages the availability templates a vet authors.
// Templates are validated before any write; deleting one never touches
// schedules already generated from it.
package templates

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"televet/internal/model"
	"televet/internal/repository"
)

// ErrNotFound is returned for unknown template IDs.
var ErrNotFound = repository.ErrTemplateNotFound

// Repository is the persistence the service needs.
type Repository interface {
	Get(ctx context.Context, vetID, id string) (*model.AvailabilityTemplate, error)
	List(ctx context.Context, vetID string) ([]model.AvailabilityTemplate, error)
	Create(ctx context.Context, vetID string, tpl model.AvailabilityTemplate) (*model.AvailabilityTemplate, error)
	Update(ctx context.Context, vetID, id string, tpl model.AvailabilityTemplate) (*model.AvailabilityTemplate, error)
	Delete(ctx context.Context, vetID, id string) error
}

type Service struct {
	repo   Repository
	logger *zerolog.Logger
}

func NewService(repo Repository, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{repo: repo, logger: logger}
}

func (s *Service) Create(ctx context.Context, vetID string, tpl model.AvailabilityTemplate) (*model.AvailabilityTemplate, error) {
	clean, err := Validate(tpl)
	if err != nil {
		return nil, err
	}
	created, err := s.repo.Create(ctx, vetID, clean)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("vet_id", vetID).Str("template_id", created.ID).Str("type", string(created.Type)).Msg("template created")
	return created, nil
}

func (s *Service) Update(ctx context.Context, vetID, id string, tpl model.AvailabilityTemplate) (*model.AvailabilityTemplate, error) {
	clean, err := Validate(tpl)
	if err != nil {
		return nil, err
	}
	updated, err := s.repo.Update(ctx, vetID, id, clean)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("vet_id", vetID).Str("template_id", id).Msg("template updated")
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, vetID, id string) error {
	if err := s.repo.Delete(ctx, vetID, id); err != nil {
		return err
	}
	s.logger.Info().Str("vet_id", vetID).Str("template_id", id).Msg("template deleted")
	return nil
}

func (s *Service) List(ctx context.Context, vetID string) ([]model.AvailabilityTemplate, error) {
	return s.repo.List(ctx, vetID)
}

func (s *Service) Get(ctx context.Context, vetID, id string) (*model.AvailabilityTemplate, error) {
	return s.repo.Get(ctx, vetID, id)
}

// CopyDay copies the slots of one weekday onto another and saves the
// template.
func (s *Service) CopyDay(ctx context.Context, vetID, id string, from, to model.Weekday) (*model.AvailabilityTemplate, error) {
	if !from.Valid() || !to.Valid() {
		return nil, &ValidationError{Message: msgUnknownDay}
	}
	tpl, err := s.repo.Get(ctx, vetID, id)
	if err != nil {
		return nil, err
	}
	if tpl.Type != model.TemplateWeek {
		return nil, fmt.Errorf("%w: days can only be copied within a week template", ErrInvalidTemplate)
	}
	copied, err := CopyWeekday(*tpl, from, to)
	if err != nil {
		return nil, err
	}
	return s.Update(ctx, vetID, id, copied)
}

// CopyFrom fills the template from the day template srcID. A week template
// receives the slots on day; a day template has its slots replaced and day
// is ignored.
func (s *Service) CopyFrom(ctx context.Context, vetID, id, srcID string, day model.Weekday) (*model.AvailabilityTemplate, error) {
	dst, err := s.repo.Get(ctx, vetID, id)
	if err != nil {
		return nil, err
	}
	src, err := s.repo.Get(ctx, vetID, srcID)
	if err != nil {
		return nil, err
	}

	var copied model.AvailabilityTemplate
	switch dst.Type {
	case model.TemplateWeek:
		if !day.Valid() {
			return nil, &ValidationError{Message: msgUnknownDay}
		}
		copied, err = CopyDayTemplateIntoWeekday(*dst, day, *src)
	default:
		copied, err = CopyDayTemplate(*dst, *src)
	}
	if err != nil {
		return nil, err
	}
	return s.Update(ctx, vetID, id, copied)
}
