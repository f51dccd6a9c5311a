package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"televet/internal/docstore"
	"televet/internal/model"
)

// ErrAppointmentNotFound is returned for unknown appointment IDs.
var ErrAppointmentNotFound = errors.New("appointment not found")

// AppointmentRepository persists appointments in the shared collection.
type AppointmentRepository struct {
	store docstore.Store
}

func NewAppointmentRepository(store docstore.Store) *AppointmentRepository {
	return &AppointmentRepository{store: store}
}

// Create stores a new appointment and returns its generated ID.
func (r *AppointmentRepository) Create(ctx context.Context, a model.Appointment) (string, error) {
	a.ID = ""
	data, err := docstore.Encode(a)
	if err != nil {
		return "", err
	}
	id, err := r.store.Add(ctx, AppointmentsCollection, data)
	if err != nil {
		return "", fmt.Errorf("create appointment: %w", err)
	}
	return id, nil
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (*model.Appointment, error) {
	doc, err := r.store.Get(ctx, AppointmentsCollection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment %s: %w", id, err)
	}
	return decodeAppointment(doc)
}

func (r *AppointmentRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, AppointmentsCollection, id); err != nil {
		return fmt.Errorf("delete appointment %s: %w", id, err)
	}
	return nil
}

// ListByOwner returns an owner's appointments, newest first.
func (r *AppointmentRepository) ListByOwner(ctx context.Context, ownerID string) ([]model.Appointment, error) {
	docs, err := r.store.List(ctx, AppointmentsCollection)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	var out []model.Appointment
	for _, doc := range docs {
		if doc.Data["ownerId"] != ownerID {
			continue
		}
		a, err := decodeAppointment(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func decodeAppointment(doc docstore.Document) (*model.Appointment, error) {
	var a model.Appointment
	if err := docstore.Decode(doc.Data, &a); err != nil {
		return nil, fmt.Errorf("appointment %s: %w", doc.Key, err)
	}
	a.ID = doc.Key
	return &a, nil
}
