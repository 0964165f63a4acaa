package services

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/os2mo/mora/modules/org/domain/lora"
	"github.com/os2mo/mora/modules/org/domain/projection"
)

type Class struct {
	UUID    uuid.UUID `json:"uuid"`
	Name    string    `json:"name"`
	UserKey string    `json:"user_key"`
	Example *string   `json:"example"`
	Scope   *string   `json:"scope"`
}

// ScopeValue is the class scope, or "" when unset.
func (c *Class) ScopeValue() string {
	if c == nil || c.Scope == nil {
		return ""
	}
	return *c.Scope
}

// cacheKey scopes shared cache entries to the read window, since class
// titles are versioned like everything else.
func (r *reader) cacheKey(id uuid.UUID) string {
	w := r.c.Window()
	return id.String() + ":" + string(w.Validity) + ":" + w.Day.Format("2006-01-02")
}

func (r *reader) class(ctx context.Context, id uuid.UUID) (*Class, error) {
	if c, ok := r.classes[id]; ok {
		recordClassLookup("request", true)
		return c, nil
	}
	recordClassLookup("request", false)

	key := r.cacheKey(id)
	if r.s.classes != nil {
		c, ok, err := r.s.classes.Get(ctx, key)
		if err != nil {
			logWithFields(ctx, logrus.WarnLevel, "class cache lookup failed", logrus.Fields{"class": id, "error": err})
		} else {
			recordClassLookup("shared", ok)
			if ok {
				r.classes[id] = c
				return c, nil
			}
		}
	}

	obj, err := r.c.Class().Get(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	if obj == nil {
		r.classes[id] = nil
		return nil, nil
	}
	attrs, ok, err := r.current(ctx, id, obj, lora.ClassProperties)
	if err != nil || !ok {
		return nil, err
	}
	c := &Class{
		UUID:    id,
		Name:    attrs.Get(lora.KeyTitle),
		UserKey: attrs.Get(lora.KeyUserKey),
		Example: optional(attrs.Values, lora.KeyExample),
		Scope:   optional(attrs.Values, lora.KeyScope),
	}
	r.classes[id] = c
	if r.s.classes != nil {
		if err := r.s.classes.Set(ctx, key, c); err != nil {
			logWithFields(ctx, logrus.WarnLevel, "class cache store failed", logrus.Fields{"class": id, "error": err})
		}
	}
	return c, nil
}

func (s *OrgService) GetOneClass(ctx context.Context, q projection.Query, id uuid.UUID) (*Class, error) {
	c, err := s.reader(q).class(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, newServiceError(http.StatusNotFound, CodeNotFound, "class not found", nil).With("class_uuid", id)
	}
	return c, nil
}
