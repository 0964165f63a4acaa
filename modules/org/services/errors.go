package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/os2mo/mora/modules/org/domain/lora"
	"github.com/os2mo/mora/modules/org/domain/payload"
	"github.com/os2mo/mora/modules/org/domain/projection"
	"github.com/os2mo/mora/modules/org/infrastructure/dar"
	"github.com/os2mo/mora/modules/org/infrastructure/loraclient"
	"github.com/os2mo/mora/pkg/virkning"
)

// Error codes returned to API clients.
const (
	CodeInvalidInterval         = "E_INVALID_INTERVAL"
	CodeOrgUnitNotFound         = "E_ORG_UNIT_NOT_FOUND"
	CodeNotFound                = "E_NOT_FOUND"
	CodeParentNotFound          = "V_PARENT_NOT_FOUND"
	CodeInvalidInput            = "E_INVALID_INPUT"
	CodeChangingThePast         = "V_CHANGING_THE_PAST"
	CodeTerminateWithChildren   = "V_TERMINATE_UNIT_WITH_CHILDREN_OR_ROLES"
	CodeTooManyResults          = "E_TOO_MANY_RESULTS"
	CodeInconsistentData        = "E_INCONSISTENT_DATA"
	CodeDateOutsideOrgUnitRange = "V_DATE_OUTSIDE_ORG_UNIT_RANGE"
	CodeMoveToChild             = "V_ORG_UNIT_MOVE_TO_CHILD"
	CodeStoreUnavailable        = "E_STORE_UNAVAILABLE"
	CodeConflict                = "E_CONFLICT"
	CodeOriginalEntryNotFound   = "E_ORIGINAL_ENTRY_NOT_FOUND"
	CodeOverlappingValidity     = "V_OVERLAPPING_VALIDITY"
)

type ServiceError struct {
	Status  int
	Code    string
	Message string
	Meta    map[string]any
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

// With adds structured context rendered next to the message.
func (e *ServiceError) With(key string, value any) *ServiceError {
	if e.Meta == nil {
		e.Meta = map[string]any{}
	}
	e.Meta[key] = value
	return e
}

func newServiceError(status int, code, message string, cause error) *ServiceError {
	return &ServiceError{Status: status, Code: code, Message: message, Cause: cause}
}

func invalidInput(message string) *ServiceError {
	return newServiceError(http.StatusBadRequest, CodeInvalidInput, message, nil)
}

func unitNotFound(ids ...any) *ServiceError {
	var ref any = ids
	if len(ids) == 1 {
		ref = ids[0]
	}
	return newServiceError(http.StatusNotFound, CodeOrgUnitNotFound, "org unit not found", nil).
		With("org_unit_uuid", ref)
}

// mapError translates errors from the engines and the store into service
// errors. Errors that already are service errors pass through.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return err
	}
	switch {
	case errors.Is(err, virkning.ErrInvalidInterval):
		return newServiceError(http.StatusBadRequest, CodeInvalidInterval, "invalid validity interval", err)
	case errors.Is(err, payload.ErrOverlap):
		return newServiceError(http.StatusBadRequest, CodeOverlappingValidity, "validity overlaps an existing value", err)
	case errors.Is(err, payload.ErrOldIntervalNotFound):
		return newServiceError(http.StatusBadRequest, CodeOriginalEntryNotFound, "original entry not found", err)
	case errors.Is(err, projection.ErrAmbiguousCurrent):
		return newServiceError(http.StatusInternalServerError, CodeInconsistentData, "more than one current value", err)
	case errors.Is(err, lora.ErrConflict):
		return newServiceError(http.StatusConflict, CodeConflict, "object was changed concurrently", err)
	case errors.Is(err, lora.ErrNotFound), errors.Is(err, dar.ErrNotFound):
		return newServiceError(http.StatusNotFound, CodeNotFound, "object not found", err)
	case errors.Is(err, loraclient.ErrUnavailable), errors.Is(err, dar.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return newServiceError(http.StatusBadGateway, CodeStoreUnavailable, "store unavailable", err)
	}
	return err
}
