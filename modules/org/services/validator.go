package services

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/os2mo/mora/modules/org/domain/lora"
	"github.com/os2mo/mora/modules/org/domain/projection"
	"github.com/os2mo/mora/pkg/virkning"
)

// checkDateInUnitRange requires the unit to be active over all of iv.
func (s *OrgService) checkDateInUnitRange(ctx context.Context, unitID uuid.UUID, iv virkning.Interval) error {
	r := s.reader(projection.Query{})
	obj, _, err := r.c.OrganisationUnit().Full(ctx, unitID)
	if err != nil {
		return mapError(err)
	}
	if obj == nil {
		return unitNotFound(unitID)
	}
	if !projection.Covered(obj.Facts(lora.OrgUnitValidity), iv, projection.HasValue(lora.KeyValidity, lora.Active)) {
		return newServiceError(http.StatusBadRequest, CodeDateOutsideOrgUnitRange,
			"date range exceeds validity range of associated org unit", nil).
			With("org_unit_uuid", unitID).
			With("valid_from", s.validityOf(iv).From).
			With("valid_to", s.validityOf(iv).To)
	}
	return nil
}

// checkCandidateParent rejects moving a unit below itself or one of its
// descendants as of the given date, and parents that are neither a unit
// nor an organisation.
func (s *OrgService) checkCandidateParent(ctx context.Context, unitID, parentID uuid.UUID, from virkning.Bound) error {
	moveToChild := func() error {
		return newServiceError(http.StatusBadRequest, CodeMoveToChild, "org unit cannot be moved to one of its own child units", nil).
			With("org_unit_uuid", unitID).
			With("parent_uuid", parentID)
	}
	if parentID == unitID {
		return moveToChild()
	}
	r := s.reader(at(from))
	parent, err := r.loadUnit(ctx, parentID)
	if err != nil {
		return err
	}
	if parent == nil {
		org, err := r.organisation(ctx, parentID)
		if err != nil {
			return err
		}
		if org == nil {
			return parentNotFound(parentID)
		}
		return nil
	}

	seen := uuidSet{parent.id: {}}
	for cur := parent; cur.parent != uuid.Nil; {
		if cur.parent == unitID {
			return moveToChild()
		}
		if seen.has(cur.parent) {
			break
		}
		seen.add(cur.parent)
		next, err := r.loadUnit(ctx, cur.parent)
		if err != nil {
			return err
		}
		if next == nil {
			break
		}
		cur = next
	}
	return nil
}

func parentNotFound(id uuid.UUID) *ServiceError {
	return newServiceError(http.StatusNotFound, CodeParentNotFound, "corresponding parent unit or organisation not found", nil).
		With("parent_uuid", id)
}

// checkNotInPast rejects edits taking effect before today.
func (s *OrgService) checkNotInPast(from virkning.Bound) error {
	today := virkning.At(s.Today())
	if from.Before(today) {
		return newServiceError(http.StatusBadRequest, CodeChangingThePast, "cannot perform changes before current date", nil).
			With("date", s.validityOf(virkning.Interval{From: from, FromIncluded: true, To: virkning.PosInf}).From)
	}
	return nil
}
