package repository

import (
	"context"
	"errors"
	"fmt"

	"televet/internal/docstore"
	"televet/internal/model"
)

// ErrTemplateNotFound is returned for unknown template IDs.
var ErrTemplateNotFound = errors.New("template not found")

// TemplateRepository persists availability templates.
type TemplateRepository struct {
	store docstore.Store
}

func NewTemplateRepository(store docstore.Store) *TemplateRepository {
	return &TemplateRepository{store: store}
}

func (r *TemplateRepository) Get(ctx context.Context, vetID, id string) (*model.AvailabilityTemplate, error) {
	doc, err := r.store.Get(ctx, TemplatesPath(vetID), id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template %s: %w", id, err)
	}
	return decodeTemplate(doc)
}

func (r *TemplateRepository) List(ctx context.Context, vetID string) ([]model.AvailabilityTemplate, error) {
	docs, err := r.store.List(ctx, TemplatesPath(vetID))
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	out := make([]model.AvailabilityTemplate, 0, len(docs))
	for _, doc := range docs {
		tpl, err := decodeTemplate(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, *tpl)
	}
	return out, nil
}

// Create stores a new template and returns it with its generated ID.
func (r *TemplateRepository) Create(ctx context.Context, vetID string, tpl model.AvailabilityTemplate) (*model.AvailabilityTemplate, error) {
	data, err := encodeTemplate(tpl)
	if err != nil {
		return nil, err
	}
	id, err := r.store.Add(ctx, TemplatesPath(vetID), data)
	if err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	tpl.ID = id
	return &tpl, nil
}

// Update overwrites an existing template.
func (r *TemplateRepository) Update(ctx context.Context, vetID, id string, tpl model.AvailabilityTemplate) (*model.AvailabilityTemplate, error) {
	data, err := encodeTemplate(tpl)
	if err != nil {
		return nil, err
	}
	err = r.store.Mutate(ctx, TemplatesPath(vetID), id, func(_ docstore.Data, exists bool) (docstore.Data, bool, error) {
		if !exists {
			return nil, false, ErrTemplateNotFound
		}
		return data, false, nil
	})
	if err != nil {
		return nil, fmt.Errorf("update template %s: %w", id, err)
	}
	tpl.ID = id
	return &tpl, nil
}

func (r *TemplateRepository) Delete(ctx context.Context, vetID, id string) error {
	if err := r.store.Delete(ctx, TemplatesPath(vetID), id); err != nil {
		return fmt.Errorf("delete template %s: %w", id, err)
	}
	return nil
}

func encodeTemplate(tpl model.AvailabilityTemplate) (docstore.Data, error) {
	tpl.ID = ""
	// The stored shape carries only the field that matches the type.
	if tpl.Type == model.TemplateWeek {
		tpl.Slots = nil
	} else {
		tpl.Days = nil
	}
	return docstore.Encode(tpl)
}

func decodeTemplate(doc docstore.Document) (*model.AvailabilityTemplate, error) {
	var tpl model.AvailabilityTemplate
	if err := docstore.Decode(doc.Data, &tpl); err != nil {
		return nil, fmt.Errorf("template %s: %w", doc.Key, err)
	}
	tpl.ID = doc.Key
	return &tpl, nil
}
