package repository

import (
	"context"
	"errors"
	"fmt"

	"televet/internal/docstore"
	"televet/internal/model"
)

// ScheduleRepository persists day schedules. Every record read is passed
// through DaySchedule.Normalize before it reaches callers.
type ScheduleRepository struct {
	store docstore.Store
}

func NewScheduleRepository(store docstore.Store) *ScheduleRepository {
	return &ScheduleRepository{store: store}
}

// Get loads the schedule of one date. ok is false when no record exists.
func (r *ScheduleRepository) Get(ctx context.Context, vetID, date string) (day model.DaySchedule, ok bool, err error) {
	doc, err := r.store.Get(ctx, SchedulesPath(vetID), date)
	if errors.Is(err, docstore.ErrNotFound) {
		return model.DaySchedule{Date: date}, false, nil
	}
	if err != nil {
		return model.DaySchedule{}, false, fmt.Errorf("get schedule %s: %w", date, err)
	}
	day, err = decodeSchedule(doc)
	if err != nil {
		return model.DaySchedule{}, false, err
	}
	return day, true, nil
}

// List returns all of a vet's schedules ordered by date.
func (r *ScheduleRepository) List(ctx context.Context, vetID string) ([]model.DaySchedule, error) {
	docs, err := r.store.List(ctx, SchedulesPath(vetID))
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	out := make([]model.DaySchedule, 0, len(docs))
	for _, doc := range docs {
		day, err := decodeSchedule(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, day)
	}
	return out, nil
}

// Put writes the whole record for day.Date.
func (r *ScheduleRepository) Put(ctx context.Context, vetID string, day model.DaySchedule) error {
	data, err := docstore.Encode(day)
	if err != nil {
		return err
	}
	if err := r.store.Set(ctx, SchedulesPath(vetID), day.Date, data); err != nil {
		return fmt.Errorf("put schedule %s: %w", day.Date, err)
	}
	return nil
}

func (r *ScheduleRepository) Delete(ctx context.Context, vetID, date string) error {
	if err := r.store.Delete(ctx, SchedulesPath(vetID), date); err != nil {
		return fmt.Errorf("delete schedule %s: %w", date, err)
	}
	return nil
}

// UpdateFunc edits day in place. Returning remove=true deletes the record.
type UpdateFunc func(day *model.DaySchedule, exists bool) (remove bool, err error)

// Update runs fn as one atomic read-modify-write of the date's record.
func (r *ScheduleRepository) Update(ctx context.Context, vetID, date string, fn UpdateFunc) error {
	err := r.store.Mutate(ctx, SchedulesPath(vetID), date, func(current docstore.Data, exists bool) (docstore.Data, bool, error) {
		day := model.DaySchedule{Date: date}
		if exists {
			var err error
			day, err = decodeSchedule(docstore.Document{Key: date, Data: current})
			if err != nil {
				return nil, false, err
			}
		}

		remove, err := fn(&day, exists)
		if err != nil || remove {
			return nil, remove, err
		}
		day.Date = date
		data, err := docstore.Encode(day)
		return data, false, err
	})
	if err != nil {
		return fmt.Errorf("update schedule %s: %w", date, err)
	}
	return nil
}

// Subscribe forwards changes of the vet's schedule collection.
func (r *ScheduleRepository) Subscribe(ctx context.Context, vetID string, fn func(docstore.Change)) (func(), error) {
	return r.store.Subscribe(ctx, SchedulesPath(vetID), fn)
}

func decodeSchedule(doc docstore.Document) (model.DaySchedule, error) {
	var day model.DaySchedule
	if err := docstore.Decode(doc.Data, &day); err != nil {
		return model.DaySchedule{}, fmt.Errorf("schedule %s: %w", doc.Key, err)
	}
	day.Normalize(doc.Key)
	return day, nil
}
