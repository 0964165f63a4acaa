package intl

import (
	"fmt"
	"slices"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

type SupportedLanguage struct {
	Code        string
	VerboseName string
	Tag         language.Tag
}

// SupportedLanguages lists the locales names can be ordered by.
var SupportedLanguages = []SupportedLanguage{
	{Code: "da", VerboseName: "Dansk", Tag: language.Danish},
	{Code: "en", VerboseName: "English", Tag: language.English},
}

// Collator orders strings by the rules of one locale. It is safe for
// concurrent use.
type Collator struct {
	mu  sync.Mutex
	tag language.Tag
	c   *collate.Collator
}

func NewCollator(locale string) (*Collator, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("invalid collation locale %q: %w", locale, err)
	}
	return &Collator{tag: tag, c: collate.New(tag)}, nil
}

// MustCollator is NewCollator for locales known at compile time.
func MustCollator(locale string) *Collator {
	c, err := NewCollator(locale)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Collator) Tag() language.Tag { return c.tag }

func (c *Collator) Compare(a, b string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.c.CompareString(a, b)
}

// SortBy sorts items ascending by the collated key, keeping equal keys in
// their original order.
func SortBy[T any](c *Collator, items []T, key func(T) string) {
	slices.SortStableFunc(items, func(a, b T) int {
		return c.Compare(key(a), key(b))
	})
}
