package repository

import (
	"context"
	"errors"
	"fmt"

	"televet/internal/docstore"
	"televet/internal/model"
)

// SettingsRepository reads and writes the vet's scheduling settings.
type SettingsRepository struct {
	store    docstore.Store
	defaults model.VetSchedulingSettings
}

func NewSettingsRepository(store docstore.Store) *SettingsRepository {
	return &SettingsRepository{store: store, defaults: model.DefaultSettings()}
}

// WithDefaultMinAdvance sets the window reported for vets without stored
// settings. Values outside the stored bounds are ignored.
func (r *SettingsRepository) WithDefaultMinAdvance(minutes int) *SettingsRepository {
	if minutes >= model.MinAdvanceMinutesMin && minutes <= model.MinAdvanceMinutesMax {
		r.defaults.MinAdvanceBookingMinutes = minutes
	}
	return r
}

// Get returns stored settings, or the defaults when none exist.
func (r *SettingsRepository) Get(ctx context.Context, vetID string) (model.VetSchedulingSettings, error) {
	s, ok, err := r.Lookup(ctx, vetID)
	if err != nil {
		return model.VetSchedulingSettings{}, err
	}
	if !ok {
		return r.defaults, nil
	}
	return s, nil
}

// Lookup returns the stored settings and whether a minimum advance has
// actually been saved for the vet. Unsaved fields are filled from the
// defaults.
func (r *SettingsRepository) Lookup(ctx context.Context, vetID string) (model.VetSchedulingSettings, bool, error) {
	doc, err := r.store.Get(ctx, SettingsPath(vetID), settingsKey)
	if errors.Is(err, docstore.ErrNotFound) {
		return r.defaults, false, nil
	}
	if err != nil {
		return model.VetSchedulingSettings{}, false, fmt.Errorf("get settings: %w", err)
	}
	var s model.VetSchedulingSettings
	if err := docstore.Decode(doc.Data, &s); err != nil {
		return model.VetSchedulingSettings{}, false, fmt.Errorf("settings: %w", err)
	}
	if s.MinAdvanceBookingMinutes == 0 {
		return r.defaults, false, nil
	}
	return s, true, nil
}

// Save merges the settings into the stored document.
func (r *SettingsRepository) Save(ctx context.Context, vetID string, s model.VetSchedulingSettings) error {
	data, err := docstore.Encode(s)
	if err != nil {
		return err
	}
	if err := r.store.UpdateFields(ctx, SettingsPath(vetID), settingsKey, data); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
