package memstore

import (
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/os2mo/mora/modules/org/domain/lora"
)

// Search keys with store-wide meaning.
const (
	keyAnyAttr     = "vilkaarligattr"
	keyAnyRelation = "vilkaarligrel"
)

// matches applies the store's search semantics: relation keys match the
// referenced uuid or urn, other keys match attribute and state values, and
// '%' in a value is a wildcard. Every key must match.
func matches(id uuid.UUID, obj *lora.Object, filter lora.Filter) bool {
	for key, values := range filter {
		if len(values) == 0 {
			continue
		}
		if !matchKey(id, obj, key, values) {
			return false
		}
	}
	return true
}

func matchKey(id uuid.UUID, obj *lora.Object, key string, values []string) bool {
	switch key {
	case lora.KeyUUID:
		return slices.Contains(values, id.String())
	case keyAnyAttr:
		return anyFact(obj, lora.Attributes, func(f lora.Fact) bool {
			for _, v := range f.Values {
				if like(v, values) {
					return true
				}
			}
			return false
		})
	case keyAnyRelation:
		return anyFact(obj, lora.Relations, func(f lora.Fact) bool {
			return like(f.UUID(), values) || like(f.Get(lora.KeyURN), values)
		})
	}
	if facts := obj.Facts(lora.Field{Axis: lora.Relations, Name: key}); len(facts) > 0 {
		for _, f := range facts {
			if like(f.UUID(), values) || like(f.Get(lora.KeyURN), values) {
				return true
			}
		}
		return false
	}
	for _, axis := range []lora.Axis{lora.Attributes, lora.States} {
		found := anyFact(obj, axis, func(f lora.Fact) bool {
			v, ok := f.Values[key]
			return ok && like(v, values)
		})
		if found {
			return true
		}
	}
	return false
}

func anyFact(obj *lora.Object, axis lora.Axis, pred func(lora.Fact) bool) bool {
	for _, field := range obj.Fields() {
		if field.Axis != axis {
			continue
		}
		if slices.ContainsFunc(obj.Facts(field), pred) {
			return true
		}
	}
	return false
}

// like compares case-insensitively, honouring '%' wildcards.
func like(value string, patterns []string) bool {
	if value == "" {
		return false
	}
	value = strings.ToLower(value)
	for _, p := range patterns {
		if likeOne(value, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func likeOne(value, pattern string) bool {
	if !strings.Contains(pattern, "%") {
		return value == pattern
	}
	parts := strings.Split(pattern, "%")
	if !strings.HasPrefix(value, parts[0]) {
		return false
	}
	value = value[len(parts[0]):]
	last := parts[len(parts)-1]
	for _, part := range parts[1 : len(parts)-1] {
		i := strings.Index(value, part)
		if i < 0 {
			return false
		}
		value = value[i+len(part):]
	}
	return strings.HasSuffix(value, last)
}
