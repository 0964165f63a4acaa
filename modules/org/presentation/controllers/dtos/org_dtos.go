// Package dtos holds the JSON bodies accepted by the org API.
package dtos

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/os2mo/mora/modules/org/services"
	"github.com/os2mo/mora/pkg/constants"
)

type UUIDRef struct {
	UUID uuid.UUID `json:"uuid" validate:"required"`
}

// ValidityDTO is {from, to} with ISO dates; to is inclusive.
type ValidityDTO struct {
	From *string `json:"from"`
	To   *string `json:"to"`
}

func (v ValidityDTO) ToService() services.Validity {
	return services.Validity{From: v.From, To: v.To}
}

type AddressDTO struct {
	AddressType UUIDRef `json:"address_type"`
	Value       string  `json:"value" validate:"required"`
}

func (a AddressDTO) ToService() services.AddressInput {
	return services.AddressInput{AddressType: a.AddressType.UUID, Value: a.Value}
}

func refUUID(r *UUIDRef) *uuid.UUID {
	if r == nil {
		return nil
	}
	id := r.UUID
	return &id
}

// Ok validates the DTO and returns field -> rule for each failing field.
func Ok(dto any) (map[string]string, bool) {
	err := constants.Validate.Struct(dto)
	if err == nil {
		return nil, true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"body": err.Error()}, false
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		ns := fe.Namespace()
		if i := strings.IndexByte(ns, '.'); i >= 0 {
			ns = ns[i+1:]
		}
		out[ns] = fe.Tag()
	}
	return out, false
}

type CreateOrgUnitDTO struct {
	UUID            *uuid.UUID     `json:"uuid"`
	Name            string         `json:"name" validate:"required"`
	UserKey         string         `json:"user_key"`
	Parent          UUIDRef        `json:"parent"`
	OrgUnitType     *UUIDRef       `json:"org_unit_type"`
	Addresses       []AddressDTO   `json:"addresses" validate:"omitempty,dive"`
	IntegrationData map[string]any `json:"integration_data"`
	Validity        ValidityDTO    `json:"validity"`
}

func (d *CreateOrgUnitDTO) ToService() services.CreateOrgUnitRequest {
	req := services.CreateOrgUnitRequest{
		UUID:            d.UUID,
		Name:            strings.TrimSpace(d.Name),
		UserKey:         strings.TrimSpace(d.UserKey),
		Parent:          d.Parent.UUID,
		OrgUnitType:     refUUID(d.OrgUnitType),
		IntegrationData: d.IntegrationData,
		Validity:        d.Validity.ToService(),
	}
	for _, a := range d.Addresses {
		req.Addresses = append(req.Addresses, a.ToService())
	}
	return req
}

type EditOrgUnitDTO struct {
	Original *struct {
		Validity ValidityDTO `json:"validity"`
	} `json:"original"`
	Data struct {
		UUID            *uuid.UUID     `json:"uuid"`
		Name            *string        `json:"name"`
		UserKey         *string        `json:"user_key"`
		IntegrationData map[string]any `json:"integration_data"`
		OrgUnitType     *UUIDRef       `json:"org_unit_type"`
		Parent          *UUIDRef       `json:"parent"`
		Validity        ValidityDTO    `json:"validity"`
	} `json:"data"`
}

func (d *EditOrgUnitDTO) ToService() services.EditOrgUnitRequest {
	var req services.EditOrgUnitRequest
	if d.Original != nil {
		req.Original = &struct{ Validity services.Validity }{Validity: d.Original.Validity.ToService()}
	}
	req.Data.UUID = d.Data.UUID
	req.Data.Name = d.Data.Name
	req.Data.UserKey = d.Data.UserKey
	req.Data.IntegrationData = d.Data.IntegrationData
	req.Data.OrgUnitType = refUUID(d.Data.OrgUnitType)
	req.Data.Parent = refUUID(d.Data.Parent)
	req.Data.Validity = d.Data.Validity.ToService()
	return req
}

type TerminateDTO struct {
	Validity ValidityDTO `json:"validity"`
}

type AddAddressDTO struct {
	AddressDTO
	Validity ValidityDTO `json:"validity"`
}

type EditAddressDTO struct {
	Original *struct {
		AddressType UUIDRef     `json:"address_type"`
		Value       string      `json:"value" validate:"required"`
		Validity    ValidityDTO `json:"validity"`
	} `json:"original" validate:"required"`
	Data struct {
		AddressType *UUIDRef     `json:"address_type"`
		Value       *string      `json:"value"`
		Validity    *ValidityDTO `json:"validity"`
	} `json:"data"`
}

func (d *EditAddressDTO) ToService() services.AddressEdit {
	var edit services.AddressEdit
	if d.Original != nil {
		edit.Original = &struct {
			AddressType uuid.UUID         `json:"address_type"`
			Value       string            `json:"value"`
			Validity    services.Validity `json:"validity"`
		}{
			AddressType: d.Original.AddressType.UUID,
			Value:       d.Original.Value,
			Validity:    d.Original.Validity.ToService(),
		}
	}
	edit.Data.AddressType = refUUID(d.Data.AddressType)
	edit.Data.Value = d.Data.Value
	if d.Data.Validity != nil {
		v := d.Data.Validity.ToService()
		edit.Data.Validity = &v
	}
	return edit
}

type CreateFunctionDTO struct {
	UUID         *uuid.UUID  `json:"uuid"`
	Person       UUIDRef     `json:"person"`
	OrgUnit      UUIDRef     `json:"org_unit"`
	FunctionType *UUIDRef    `json:"job_function"`
	Tasks        []UUIDRef   `json:"tasks" validate:"omitempty,dive"`
	Address      *AddressDTO `json:"address"`
	UserKey      string      `json:"user_key"`
	Validity     ValidityDTO `json:"validity"`
}

func refs(in []UUIDRef) []uuid.UUID {
	if in == nil {
		return nil
	}
	out := make([]uuid.UUID, len(in))
	for i, r := range in {
		out[i] = r.UUID
	}
	return out
}

func (d *CreateFunctionDTO) ToService() services.CreateFunctionRequest {
	req := services.CreateFunctionRequest{
		UUID:         d.UUID,
		Person:       d.Person.UUID,
		OrgUnit:      d.OrgUnit.UUID,
		FunctionType: refUUID(d.FunctionType),
		Tasks:        refs(d.Tasks),
		UserKey:      strings.TrimSpace(d.UserKey),
		Validity:     d.Validity.ToService(),
	}
	if d.Address != nil {
		a := d.Address.ToService()
		req.Address = &a
	}
	return req
}

type EditFunctionDTO struct {
	Original *struct {
		Validity ValidityDTO `json:"validity"`
	} `json:"original"`
	Data struct {
		Person       *UUIDRef    `json:"person"`
		OrgUnit      *UUIDRef    `json:"org_unit"`
		FunctionType *UUIDRef    `json:"job_function"`
		Tasks        []UUIDRef   `json:"tasks" validate:"omitempty,dive"`
		Address      *AddressDTO `json:"address"`
		Validity     ValidityDTO `json:"validity"`
	} `json:"data"`
}

func (d *EditFunctionDTO) ToService() services.EditFunctionRequest {
	var req services.EditFunctionRequest
	if d.Original != nil {
		req.Original = &struct{ Validity services.Validity }{Validity: d.Original.Validity.ToService()}
	}
	req.Data.Person = refUUID(d.Data.Person)
	req.Data.OrgUnit = refUUID(d.Data.OrgUnit)
	req.Data.FunctionType = refUUID(d.Data.FunctionType)
	req.Data.Tasks = refs(d.Data.Tasks)
	if d.Data.Address != nil {
		a := d.Data.Address.ToService()
		req.Data.Address = &a
	}
	req.Data.Validity = d.Data.Validity.ToService()
	return req
}

type MoveFunctionDTO struct {
	OrgUnit  UUIDRef `json:"org_unit"`
	Validity struct {
		From string `json:"from" validate:"required"`
	} `json:"validity"`
}

type MoveEngagementsDTO struct {
	Date    string                `json:"move_date" validate:"required"`
	Present []uuid.UUID           `json:"presentEngagementIds"`
	Future  []services.FutureMove `json:"futureEngagementIds"`
}

type SettingDTO struct {
	Key   string `json:"key" validate:"required"`
	Value string `json:"value"`
}
