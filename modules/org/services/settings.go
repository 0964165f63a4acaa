package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

func (r *reader) globalSettings(ctx context.Context) (map[string]any, error) {
	if r.global != nil {
		return r.global, nil
	}
	r.global = map[string]any{}
	if r.s.settings == nil {
		return r.global, nil
	}
	g, err := r.s.settings.GlobalSettings(ctx)
	if err != nil {
		r.global = nil
		return nil, err
	}
	r.global = g
	return g, nil
}

// mergedSettings layers the unit's own settings over the parent's merged
// settings, and both over the global ones.
func (r *reader) mergedSettings(ctx context.Context, unitID uuid.UUID, parent map[string]any) (map[string]any, error) {
	out := map[string]any{}
	if r.s.settings != nil {
		local, err := r.s.settings.UnitSettings(ctx, unitID)
		if err != nil {
			return nil, err
		}
		for k, v := range local {
			out[k] = v
		}
	}
	for k, v := range parent {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	global, err := r.globalSettings(ctx)
	if err != nil {
		return nil, err
	}
	for k, v := range global {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out, nil
}

// SetSetting stores one setting for a unit, or globally when unitID is nil.
func (s *OrgService) SetSetting(ctx context.Context, unitID *uuid.UUID, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return invalidInput("setting key is required")
	}
	if s.settings == nil {
		return invalidInput("settings are not configured")
	}
	return s.settings.SetSetting(ctx, unitID, key, value)
}
