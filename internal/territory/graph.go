package territory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/crewplanner-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/crewplanner-backend/pkg/errors"
)

// Graph is the read-only two-level area hierarchy for one request.
type Graph struct {
	areas    map[uuid.UUID]models.Area
	byName   map[string]uuid.UUID
	children map[uuid.UUID][]uuid.UUID
}

// NewGraph indexes areas and rejects hierarchies deeper than parent -> child.
func NewGraph(areas []models.Area) (*Graph, error) {
	g := &Graph{
		areas:    make(map[uuid.UUID]models.Area, len(areas)),
		byName:   make(map[string]uuid.UUID, len(areas)),
		children: make(map[uuid.UUID][]uuid.UUID),
	}
	for _, area := range areas {
		g.areas[area.ID] = area
	}

	for _, area := range areas {
		if area.ParentID == nil {
			continue
		}
		parent, ok := g.areas[*area.ParentID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("area %s references unknown parent %s", area.ID, *area.ParentID))
		}
		if parent.ParentID != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("area %s nests under child area %s", area.ID, parent.ID))
		}
		g.children[parent.ID] = append(g.children[parent.ID], area.ID)
	}

	for _, area := range areas {
		if !area.Active {
			continue
		}
		key := normalize(area.Name)
		if key == "" {
			continue
		}
		// duplicate names resolve to the lowest id so lookups stay stable
		if existing, ok := g.byName[key]; ok && existing.String() < area.ID.String() {
			continue
		}
		g.byName[key] = area.ID
	}

	for parent := range g.children {
		ids := g.children[parent]
		sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	}
	return g, nil
}

// ResolveCanonicalArea maps a free-text location name to its canonical area id. A matched
// child rolls up to its parent. The bool is false when the name cannot be resolved, which
// callers must treat as "cannot verify" rather than an error.
func (g *Graph) ResolveCanonicalArea(name string) (uuid.UUID, bool) {
	if g == nil {
		return uuid.Nil, false
	}
	id, ok := g.byName[normalize(name)]
	if !ok {
		return uuid.Nil, false
	}
	if area := g.areas[id]; area.ParentID != nil {
		return *area.ParentID, true
	}
	return id, true
}

// Area returns the area with the given id.
func (g *Graph) Area(id uuid.UUID) (models.Area, bool) {
	if g == nil {
		return models.Area{}, false
	}
	area, ok := g.areas[id]
	return area, ok
}

// Children lists the child area ids of parent in id order.
func (g *Graph) Children(parent uuid.UUID) []uuid.UUID {
	if g == nil {
		return nil
	}
	return append([]uuid.UUID(nil), g.children[parent]...)
}

// Canonical rolls an area id up to its parent, leaving top-level or unknown ids unchanged.
func (g *Graph) Canonical(id uuid.UUID) uuid.UUID {
	if g == nil {
		return id
	}
	if area, ok := g.areas[id]; ok && area.ParentID != nil {
		return *area.ParentID
	}
	return id
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
