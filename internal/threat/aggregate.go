package threat

import (
	"cmp"
	"slices"

	"github.com/couchcryptid/fire-threat-engine/internal/domain"
)

// Link is a directed propagation path from a fire origin to a reached target.
type Link struct {
	OriginID string `json:"origin_id"`
	TargetID string `json:"target_id"`
}

// RangeCircle is centred on a fire origin; its radius is the distance to one
// reached target.
type RangeCircle struct {
	OriginID     string     `json:"origin_id"`
	TargetID     string     `json:"target_id"`
	Center       domain.Geo `json:"center"`
	RadiusMeters float64    `json:"radius_meters"`
}

// Assessment is the merged view of all per-origin predictions.
type Assessment struct {
	FireNodes       []string      `json:"fire_nodes"`
	ThreatenedNodes []string      `json:"threatened_nodes"`
	Links           []Link        `json:"links"`
	RangeCircles    []RangeCircle `json:"range_circles"`
}

// Aggregate merges predictions into threatened/fire sets plus links and range
// circles. A node that is burning, either in fireIDs or by its own topology
// status, is never reported as threatened. Output slices are sorted and never nil.
func Aggregate(preds domain.PredictionMap, topology domain.NodeIndex, fireIDs []string) Assessment {
	fires := slices.Clone(fireIDs)
	slices.Sort(fires)
	fires = slices.Compact(fires)

	burning := make(map[string]bool, len(fires))
	for _, id := range fires {
		burning[id] = true
	}

	a := Assessment{
		FireNodes:       fires,
		ThreatenedNodes: []string{},
		Links:           []Link{},
		RangeCircles:    []RangeCircle{},
	}
	if a.FireNodes == nil {
		a.FireNodes = []string{}
	}

	threatened := make(map[string]bool)
	for originID, list := range preds {
		origin, originKnown := topology[originID]
		for _, p := range list {
			if !p.WillReach || p.TargetID == originID {
				continue
			}
			a.Links = append(a.Links, Link{OriginID: originID, TargetID: p.TargetID})

			target, targetKnown := topology[p.TargetID]
			if !burning[p.TargetID] && !(targetKnown && target.IsFire()) {
				threatened[p.TargetID] = true
			}

			if !originKnown || !targetKnown {
				continue
			}
			center, ok := origin.Located()
			if !ok {
				continue
			}
			radius, ok := domain.NodeDistance(origin, target)
			if !ok {
				continue
			}
			a.RangeCircles = append(a.RangeCircles, RangeCircle{
				OriginID:     originID,
				TargetID:     p.TargetID,
				Center:       center,
				RadiusMeters: radius,
			})
		}
	}

	for id := range threatened {
		a.ThreatenedNodes = append(a.ThreatenedNodes, id)
	}
	slices.Sort(a.ThreatenedNodes)

	slices.SortFunc(a.Links, func(x, y Link) int {
		return cmp.Or(cmp.Compare(x.OriginID, y.OriginID), cmp.Compare(x.TargetID, y.TargetID))
	})
	a.Links = slices.Compact(a.Links)

	slices.SortFunc(a.RangeCircles, func(x, y RangeCircle) int {
		return cmp.Or(cmp.Compare(x.OriginID, y.OriginID), cmp.Compare(x.TargetID, y.TargetID))
	})
	a.RangeCircles = slices.CompactFunc(a.RangeCircles, func(x, y RangeCircle) bool {
		return x.OriginID == y.OriginID && x.TargetID == y.TargetID
	})
	return a
}
