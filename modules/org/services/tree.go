package services

import (
	"bytes"
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/os2mo/mora/modules/org/domain/lora"
	"github.com/os2mo/mora/modules/org/domain/projection"
	"github.com/os2mo/mora/pkg/intl"
)

// TreeNode is a unit placed in a tree. ChildCount is set only on nodes
// whose children were not expanded.
type TreeNode struct {
	MinimalUnit
	ChildCount *int        `json:"child_count,omitempty"`
	Children   []*TreeNode `json:"children,omitempty"`
}

type uuidSet map[uuid.UUID]struct{}

func (s uuidSet) add(id uuid.UUID) { s[id] = struct{}{} }

func (s uuidSet) has(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

func (s uuidSet) sorted() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.SortFunc(out, func(a, b uuid.UUID) int { return strings.Compare(a.String(), b.String()) })
	return out
}

// getUnitTree builds the forest spanning seeds and all their ancestors up
// to the organisation. The walk is breadth first, one store round trip per
// level. With withSiblings every ancestor also brings its siblings, which
// are left collapsed with a child count.
func (s *OrgService) getUnitTree(ctx context.Context, r *reader, seeds []uuid.UUID, withSiblings bool) (out []*TreeNode, err error) {
	iterations := 0
	defer func() { recordTreeBuild(withSiblings, iterations, err) }()

	units := map[uuid.UUID]*unitFacts{}
	children := map[uuid.UUID]uuidSet{}
	orgs := uuidSet{}
	addChild := func(parent, child uuid.UUID) {
		if children[parent] == nil {
			children[parent] = uuidSet{}
		}
		children[parent].add(child)
	}

	leaves := uuidSet{}
	for _, id := range seeds {
		leaves.add(id)
	}

	for len(leaves) > 0 {
		iterations++
		items, err := r.c.OrganisationUnit().Load(ctx, leaves.sorted()...)
		if err != nil {
			return nil, mapError(err)
		}
		found := uuidSet{}
		next := uuidSet{}
		for _, it := range items {
			u, err := decodeUnit(it.ID, r.picker(ctx, it.ID, it.Object))
			if err != nil {
				return nil, err
			}
			if u == nil {
				continue
			}
			found.add(u.id)
			units[u.id] = u
			if u.org != uuid.Nil {
				orgs.add(u.org)
			}
		}

		missing := uuidSet{}
		for id := range leaves {
			if !found.has(id) && !orgs.has(id) {
				missing.add(id)
			}
		}
		if len(missing) > 0 {
			ids := missing.sorted()
			return nil, unitNotFound(anySlice(ids)...)
		}

		for _, id := range found.sorted() {
			u := units[id]
			if u.parent == uuid.Nil {
				continue
			}
			if withSiblings {
				siblings, err := r.c.OrganisationUnit().GetAll(ctx, lora.Filter{}.
					Add(lora.OrgUnitParent.Name, u.parent.String()).
					Add(lora.OrgUnitBelongsTo.Name, u.org.String()).
					Add(lora.KeyValidity, lora.Active))
				if err != nil {
					return nil, mapError(err)
				}
				for _, it := range siblings {
					if _, ok := units[it.ID]; ok {
						addChild(u.parent, it.ID)
						continue
					}
					sib, err := decodeUnit(it.ID, r.picker(ctx, it.ID, it.Object))
					if err != nil {
						return nil, err
					}
					if sib == nil {
						continue
					}
					units[sib.id] = sib
					addChild(u.parent, sib.id)
				}
			}
			addChild(u.parent, u.id)
			if _, seen := units[u.parent]; !seen && !orgs.has(u.parent) {
				next.add(u.parent)
			}
		}
		leaves = next
	}

	if len(orgs) == 0 {
		return nil, unitNotFound(anySlice(seeds)...)
	}

	nodes := map[uuid.UUID]*TreeNode{}
	var build func(id uuid.UUID) (*TreeNode, error)
	build = func(id uuid.UUID) (*TreeNode, error) {
		if n, ok := nodes[id]; ok {
			return n, nil
		}
		node := &TreeNode{MinimalUnit: r.minimal(units[id])}
		nodes[id] = node
		kids, expanded := children[id]
		if withSiblings && !expanded {
			n, err := r.childCount(ctx, id)
			if err != nil {
				return nil, err
			}
			node.ChildCount = &n
		}
		for kid := range kids {
			child, err := build(kid)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, child)
		}
		sortNodes(s.collator, node.Children)
		return node, nil
	}

	for org := range orgs {
		for kid := range children[org] {
			node, err := build(kid)
			if err != nil {
				return nil, err
			}
			out = append(out, node)
		}
	}
	sortNodes(s.collator, out)
	return out, nil
}

// sortNodes orders siblings by collated name, then by uuid. Siblings are
// gathered from maps, so equal names need the second key to sort the same
// way on every call.
func sortNodes(c *intl.Collator, nodes []*TreeNode) {
	slices.SortFunc(nodes, func(a, b *TreeNode) int {
		if n := c.Compare(a.Name, b.Name); n != 0 {
			return n
		}
		return bytes.Compare(a.UUID[:], b.UUID[:])
	})
}

func anySlice(ids []uuid.UUID) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

// OrgUnitTree returns the tree spanning the matched units of an
// organisation and their ancestors. Units match by id or, with query, by
// any attribute value. Searches finding more than the configured limit
// are rejected.
func (s *OrgService) OrgUnitTree(ctx context.Context, q projection.Query, orgID uuid.UUID, ids []uuid.UUID, query string) ([]*TreeNode, error) {
	r := s.reader(q)
	filter := lora.Filter{}.
		Add(lora.OrgUnitBelongsTo.Name, orgID.String()).
		Add(lora.KeyValidity, lora.Active)
	if query != "" {
		filter.Add("vilkaarligattr", "%"+query+"%")
	}
	if len(ids) > 0 {
		strs := make([]string, len(ids))
		for i, id := range ids {
			strs[i] = id.String()
		}
		filter.Add(lora.KeyUUID, strs...)
	}
	found, err := r.c.OrganisationUnit().Query(ctx, filter)
	if err != nil {
		return nil, mapError(err)
	}
	if len(found) > s.treeSearchLimit {
		return nil, newServiceError(http.StatusBadRequest, CodeTooManyResults, "too many results", nil).
			With("found", len(found)).
			With("limit", s.treeSearchLimit)
	}
	if len(found) == 0 {
		return []*TreeNode{}, nil
	}
	return s.getUnitTree(ctx, r, found, false)
}

// AncestorTree returns the tree from the organisation down to each of the
// given units, with the siblings of every unit on the way.
func (s *OrgService) AncestorTree(ctx context.Context, q projection.Query, ids []uuid.UUID) ([]*TreeNode, error) {
	if len(ids) == 0 {
		return nil, invalidInput("at least one unit is required")
	}
	return s.getUnitTree(ctx, s.reader(q), ids, true)
}
