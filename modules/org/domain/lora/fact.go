package lora

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"sort"
	"strconv"

	"github.com/os2mo/mora/pkg/virkning"
)

const virkningKey = "virkning"

// Fact is one version of a field: a flat set of values valid over a single
// interval. On the wire the values sit next to a "virkning" member.
type Fact struct {
	Values   map[string]string
	Virkning virkning.Interval
}

func NewFact(iv virkning.Interval, kv ...string) Fact {
	if len(kv)%2 != 0 {
		panic("lora.NewFact: odd number of key/value arguments")
	}
	values := make(map[string]string, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		values[kv[i]] = kv[i+1]
	}
	return Fact{Values: values, Virkning: iv}
}

func (f Fact) Get(key string) string {
	return f.Values[key]
}

func (f Fact) UUID() string {
	return f.Values["uuid"]
}

// With returns a copy with key set.
func (f Fact) With(key, value string) Fact {
	out := f.Clone()
	if out.Values == nil {
		out.Values = map[string]string{}
	}
	out.Values[key] = value
	return out
}

// During returns a copy valid over iv.
func (f Fact) During(iv virkning.Interval) Fact {
	out := f.Clone()
	out.Virkning = iv
	return out
}

func (f Fact) Clone() Fact {
	return Fact{Values: maps.Clone(f.Values), Virkning: f.Virkning}
}

// SameValues compares payloads, ignoring the interval.
func (f Fact) SameValues(o Fact) bool {
	return maps.Equal(f.Values, o.Values)
}

// Same compares payload and interval bounds.
func (f Fact) Same(o Fact) bool {
	return f.SameValues(o) && f.Virkning.SameBounds(o.Virkning)
}

func (f Fact) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(f.Values))
	for k := range f.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for _, k := range keys {
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(f.Values[k])
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
		buf.WriteByte(',')
	}
	vk, err := json.Marshal(f.Virkning)
	if err != nil {
		return nil, err
	}
	buf.WriteString(`"virkning":`)
	buf.Write(vk)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (f *Fact) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := Fact{Values: make(map[string]string, len(raw))}
	for k, v := range raw {
		if k == virkningKey {
			if err := json.Unmarshal(v, &out.Virkning); err != nil {
				return fmt.Errorf("fact virkning: %w", err)
			}
			continue
		}
		s, err := scalarString(v)
		if err != nil {
			return fmt.Errorf("fact value %q: %w", k, err)
		}
		out.Values[k] = s
	}
	if _, ok := raw[virkningKey]; !ok {
		return fmt.Errorf("fact without %s: %w", virkningKey, virkning.ErrInvalidInterval)
	}
	*f = out
	return nil
}

// scalarString flattens a JSON scalar. Store payloads are string-typed,
// but numbers and booleans occasionally appear in hand-written fixtures.
func scalarString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return "", nil
	}
	return "", fmt.Errorf("not a scalar: %s", raw)
}

func (f Fact) MarshalYAML() (any, error) {
	out := make(map[string]any, len(f.Values)+1)
	for k, v := range f.Values {
		out[k] = v
	}
	out[virkningKey] = f.Virkning
	return out, nil
}

func (f *Fact) UnmarshalYAML(unmarshal func(any) error) error {
	var iv struct {
		Virkning virkning.Interval `yaml:"virkning"`
	}
	if err := unmarshal(&iv); err != nil {
		return err
	}
	var raw map[string]any
	if err := unmarshal(&raw); err != nil {
		return err
	}
	if _, ok := raw[virkningKey]; !ok {
		return fmt.Errorf("fact without %s: %w", virkningKey, virkning.ErrInvalidInterval)
	}
	out := Fact{Values: make(map[string]string, len(raw)), Virkning: iv.Virkning}
	for k, v := range raw {
		if k == virkningKey {
			continue
		}
		if v == nil {
			out.Values[k] = ""
			continue
		}
		out.Values[k] = fmt.Sprint(v)
	}
	*f = out
	return nil
}

// SortFacts orders facts by start, then end.
func SortFacts(facts []Fact) {
	sort.SliceStable(facts, func(i, j int) bool {
		a, b := facts[i].Virkning, facts[j].Virkning
		if c := a.From.Compare(b.From); c != 0 {
			return c < 0
		}
		return a.To.Before(b.To)
	})
}
