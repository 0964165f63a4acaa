package services

import (
	"context"
	"net/http"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/os2mo/mora/modules/org/domain/lora"
	"github.com/os2mo/mora/modules/org/domain/payload"
	"github.com/os2mo/mora/modules/org/domain/projection"
	"github.com/os2mo/mora/pkg/virkning"
)

// Address type scopes.
const (
	ScopeDAR   = "DAR"
	ScopeEmail = "EMAIL"
	ScopePhone = "PHONE"
	ScopeEAN   = "EAN"
	ScopeWWW   = "WWW"
)

var urnPrefixes = map[string]string{
	ScopeEmail: "urn:mailto:",
	ScopePhone: "urn:magenta.dk:telefon:",
	ScopeEAN:   "urn:magenta.dk:ean:",
	ScopeWWW:   "urn:magenta.dk:www:",
}

var hrefPrefixes = map[string]string{
	ScopeEmail: "mailto:",
	ScopePhone: "tel:",
	ScopeWWW:   "",
}

var (
	danishPhone  = regexp.MustCompile(`^(\+45)(\d{4})(\d{4})$`)
	municipality = regexp.MustCompile(`^urn:dk:kommune:(\d+)$`)
)

// AddressOwner selects whose addresses are read.
type AddressOwner string

const (
	OwnerUnit     AddressOwner = "ou"
	OwnerEmployee AddressOwner = "e"
)

type Address struct {
	Href        *string  `json:"href"`
	Name        string   `json:"name"`
	Value       string   `json:"value"`
	AddressType *Class   `json:"address_type"`
	Validity    Validity `json:"validity"`
}

// AddressInput is an address as submitted: the class of the address type
// and the raw value, which for DAR addresses is the address uuid.
type AddressInput struct {
	AddressType uuid.UUID `json:"address_type"`
	Value       string    `json:"value"`
}

func normalizePhone(v string) string {
	v = strings.Join(strings.Fields(v), "")
	if !strings.HasPrefix(v, "+") {
		v = "+45" + v
	}
	return v
}

// encodeAddress turns an address into the values of an address relation.
func (r *reader) encodeAddress(ctx context.Context, in AddressInput) (map[string]string, error) {
	class, err := r.class(ctx, in.AddressType)
	if err != nil {
		return nil, err
	}
	if class == nil {
		return nil, newServiceError(http.StatusNotFound, CodeNotFound, "address type not found", nil).
			With("address_type_uuid", in.AddressType)
	}
	scope := class.ScopeValue()
	out := map[string]string{lora.KeyObjType: in.AddressType.String()}
	if scope == ScopeDAR {
		id, err := uuid.Parse(strings.TrimSpace(in.Value))
		if err != nil {
			return nil, invalidInput("DAR address value must be a uuid")
		}
		out[lora.KeyUUID] = id.String()
		return out, nil
	}
	prefix, ok := urnPrefixes[scope]
	if !ok {
		return nil, invalidInput("unknown address scope " + strconv.Quote(scope))
	}
	value := strings.TrimSpace(in.Value)
	if scope == ScopePhone {
		value = normalizePhone(value)
	}
	if value == "" {
		return nil, invalidInput("address value is required")
	}
	out[lora.KeyURN] = prefix + value
	return out, nil
}

func (r *reader) addressType(ctx context.Context, rel lora.Fact) (*Class, error) {
	id, err := uuid.Parse(rel.Get(lora.KeyObjType))
	if err != nil {
		scope := ScopeDAR
		return &Class{Scope: &scope}, nil
	}
	class, err := r.class(ctx, id)
	if err != nil {
		return nil, err
	}
	if class == nil {
		scope := ScopeDAR
		return &Class{UUID: id, Scope: &scope}, nil
	}
	return class, nil
}

// decodeAddress renders one address relation.
func (r *reader) decodeAddress(ctx context.Context, rel lora.Fact) (*Address, error) {
	class, err := r.addressType(ctx, rel)
	if err != nil {
		return nil, err
	}
	out := &Address{AddressType: class, Validity: r.s.validityOf(rel.Virkning)}
	scope := class.ScopeValue()
	if scope == ScopeDAR {
		out.Value = rel.UUID()
		out.Name = rel.UUID()
		id, err := uuid.Parse(rel.UUID())
		if err != nil || r.s.addresses == nil {
			return out, nil
		}
		addr, err := r.s.addresses.Get(ctx, id)
		if err != nil {
			logWithFields(ctx, logrus.WarnLevel, "failed to resolve DAR address", logrus.Fields{"address": id, "error": err})
			return out, nil
		}
		out.Name = addr.Name
		out.Href = stringRef(addr.Href)
		return out, nil
	}

	urn := rel.Get(lora.KeyURN)
	value := strings.TrimPrefix(urn, urnPrefixes[scope])
	out.Value = value
	out.Name = value
	if scope == ScopePhone {
		if m := danishPhone.FindStringSubmatch(value); m != nil {
			out.Name = m[2] + " " + m[3]
		}
	}
	if prefix, ok := hrefPrefixes[scope]; ok {
		out.Href = stringRef(prefix + value)
	}
	return out, nil
}

func ownerFields(owner AddressOwner) (lora.Kind, lora.Field, lora.Field, lora.Field, error) {
	switch owner {
	case OwnerUnit:
		return lora.KindOrganisationUnit, lora.OrgUnitAddresses, lora.OrgUnitValidity, lora.OrgUnitProperties, nil
	case OwnerEmployee:
		return lora.KindUser, lora.Field{Axis: lora.Relations, Name: "adresser"}, lora.UserValidity, lora.UserProperties, nil
	default:
		return "", lora.Field{}, lora.Field{}, lora.Field{}, invalidInput("unknown address owner " + string(owner))
	}
}

// GetAddresses lists the addresses of a unit or an employee relevant to
// the query, ordered by validity and then name.
func (s *OrgService) GetAddresses(ctx context.Context, q projection.Query, owner AddressOwner, id uuid.UUID) ([]Address, error) {
	kind, addrField, validity, props, err := ownerFields(owner)
	if err != nil {
		return nil, err
	}
	r := s.reader(q)
	scope := r.c.Scope(kind)
	full, _, err := scope.Full(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	if full == nil {
		if owner == OwnerUnit {
			return nil, unitNotFound(id)
		}
		return nil, newServiceError(http.StatusNotFound, CodeNotFound, "employee not found", nil).With("employee_uuid", id)
	}
	effects, err := scope.GetEffects(ctx, id, []lora.Field{addrField, validity}, []lora.Field{props})
	if err != nil {
		return nil, mapError(err)
	}

	type keyed struct {
		addr *Address
		iv   virkning.Interval
	}
	seen := map[string]struct{}{}
	var found []keyed
	for eff := range effects {
		states := eff.Object.Facts(validity)
		if len(states) == 0 || states[0].Get(lora.KeyValidity) != lora.Active {
			continue
		}
		for _, rel := range eff.Object.Facts(addrField) {
			if !r.c.IsRelevant(rel.Virkning) {
				continue
			}
			k := rel.Get(lora.KeyUUID) + rel.Get(lora.KeyURN) + rel.Virkning.String()
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			addr, err := r.decodeAddress(ctx, rel)
			if err != nil {
				return nil, err
			}
			found = append(found, keyed{addr: addr, iv: rel.Virkning})
		}
	}
	slices.SortStableFunc(found, func(a, b keyed) int {
		if c := a.iv.From.Compare(b.iv.From); c != 0 {
			return c
		}
		if c := a.iv.To.Compare(b.iv.To); c != 0 {
			return c
		}
		return s.collator.Compare(a.addr.Name, b.addr.Name)
	})
	out := make([]Address, len(found))
	for i, k := range found {
		out[i] = *k.addr
	}
	return out, nil
}

// AddAddress adds an address to a unit over the given validity.
func (s *OrgService) AddAddress(ctx context.Context, unitID uuid.UUID, in AddressInput, v Validity) (err error) {
	defer func() { recordWrite("add_address", err) }()
	iv, err := s.parseInterval(v)
	if err != nil {
		return err
	}
	r := s.reader(at(iv.From))
	full, token, err := r.c.OrganisationUnit().Full(ctx, unitID)
	if err != nil {
		return mapError(err)
	}
	if full == nil {
		return unitNotFound(unitID)
	}
	values, err := r.encodeAddress(ctx, in)
	if err != nil {
		return err
	}
	if err := s.checkDateInUnitRange(ctx, unitID, iv); err != nil {
		return err
	}
	obj := &lora.Object{Note: payload.NoteAddAddress}
	obj.SetFacts(lora.OrgUnitAddresses, append(full.Facts(lora.OrgUnitAddresses), lora.Fact{Values: values, Virkning: iv}))
	if _, err := r.c.OrganisationUnit().UpdateIfUnchanged(ctx, obj, unitID, token); err != nil {
		return mapError(err)
	}
	return nil
}

// AddressEdit replaces the address stored as Original. Zero fields of
// Data keep the original values.
type AddressEdit struct {
	Original *struct {
		AddressType uuid.UUID `json:"address_type"`
		Value       string    `json:"value"`
		Validity    Validity  `json:"validity"`
	} `json:"original"`
	Data struct {
		AddressType *uuid.UUID `json:"address_type"`
		Value       *string    `json:"value"`
		Validity    *Validity  `json:"validity"`
	} `json:"data"`
}

// EditAddress swaps one address relation of a unit for a new value.
func (s *OrgService) EditAddress(ctx context.Context, unitID uuid.UUID, edit AddressEdit) (err error) {
	defer func() { recordWrite("edit_address", err) }()
	if edit.Original == nil {
		return invalidInput("original required!")
	}
	oldIV, err := s.parseInterval(edit.Original.Validity)
	if err != nil {
		return err
	}
	nextValidity := edit.Original.Validity
	if edit.Data.Validity != nil {
		nextValidity = *edit.Data.Validity
	}
	nextIV, err := s.parseInterval(nextValidity)
	if err != nil {
		return err
	}
	nextIn := AddressInput{AddressType: edit.Original.AddressType, Value: edit.Original.Value}
	if edit.Data.AddressType != nil {
		nextIn.AddressType = *edit.Data.AddressType
	}
	if edit.Data.Value != nil {
		nextIn.Value = *edit.Data.Value
	}

	r := s.reader(at(oldIV.From))
	full, token, err := r.c.OrganisationUnit().Full(ctx, unitID)
	if err != nil {
		return mapError(err)
	}
	if full == nil {
		return unitNotFound(unitID)
	}
	oldValues, err := r.encodeAddress(ctx, AddressInput{AddressType: edit.Original.AddressType, Value: edit.Original.Value})
	if err != nil {
		return err
	}
	nextValues, err := r.encodeAddress(ctx, nextIn)
	if err != nil {
		return err
	}
	if err := s.checkDateInUnitRange(ctx, unitID, nextIV); err != nil {
		return err
	}
	next := lora.Fact{Values: nextValues, Virkning: nextIV}
	rels, err := payload.ReplaceRelationValue(full.Facts(lora.OrgUnitAddresses), lora.Fact{Values: oldValues, Virkning: oldIV}, &next)
	if err != nil {
		return mapError(err)
	}
	obj := &lora.Object{Note: payload.NoteEditAddress}
	obj.SetFacts(lora.OrgUnitAddresses, rels)
	if _, err := r.c.OrganisationUnit().UpdateIfUnchanged(ctx, obj, unitID, token); err != nil {
		return mapError(err)
	}
	return nil
}

// AddressAutocomplete searches DAR, limited to the organisation's
// municipality unless global is set.
func (s *OrgService) AddressAutocomplete(ctx context.Context, orgID uuid.UUID, q string, global bool) ([]map[string]any, error) {
	if s.addresses == nil {
		return nil, newServiceError(http.StatusBadGateway, CodeStoreUnavailable, "address lookup is not configured", nil)
	}
	code := 0
	if !global {
		r := s.reader(projection.Query{})
		obj, err := r.c.Organisation().Get(ctx, orgID)
		if err != nil {
			return nil, mapError(err)
		}
		if obj == nil {
			return nil, newServiceError(http.StatusNotFound, CodeNotFound, "organisation not found", nil).With("org_uuid", orgID)
		}
		fact, ok, err := r.current(ctx, orgID, obj, lora.OrganisationAuthority)
		if err != nil {
			return nil, err
		}
		m := municipality.FindStringSubmatch(fact.Get(lora.KeyURN))
		if !ok || m == nil {
			return nil, newServiceError(http.StatusNotFound, CodeNotFound, "no local municipality found", nil).With("org_uuid", orgID)
		}
		code, _ = strconv.Atoi(m[1])
	}
	hits, err := s.addresses.Autocomplete(ctx, q, code)
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]map[string]any, len(hits))
	for i, h := range hits {
		out[i] = map[string]any{"location": map[string]any{"uuid": h.ID, "name": h.Name}}
	}
	return out, nil
}
