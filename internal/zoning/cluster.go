package zoning

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/paulmach/orb"

	"zone-routing-service/internal/domain"
	"zone-routing-service/internal/geo"
)

// Cluster runs seeded k-means++ over customers projected onto a local
// Cartesian plane centered on the depot. Near-depot points can weigh more
// in centroid updates, and clusters over the size cap are split in two.
type Cluster struct {
	TargetZones int

	// MaxCustomersPerZone caps cluster sizes when positive. A cluster above
	// cap*(1+Tolerance) is split.
	MaxCustomersPerZone int
	Tolerance           float64

	// DisableDepotWeight turns off the 1/(1+d/20) centroid weighting that is
	// on by default.
	DisableDepotWeight bool

	// EpsilonKm stops the iteration once every centroid moves less than this.
	EpsilonKm          float64
	MaxIterations      int
	MaxSplitIterations int

	Seed int64
}

func (Cluster) Name() string { return "clustering" }

func (s Cluster) withDefaults() Cluster {
	if s.EpsilonKm <= 0 {
		s.EpsilonKm = 0.001
	}
	if s.MaxIterations <= 0 {
		s.MaxIterations = 50
	}
	if s.MaxSplitIterations <= 0 {
		s.MaxSplitIterations = 10
	}
	if s.Tolerance <= 0 {
		s.Tolerance = 0.20
	}
	if s.Seed == 0 {
		s.Seed = 1
	}
	return s
}

// splitRecord describes one oversize-cluster split for the metadata.
type splitRecord struct {
	FromZone   string `json:"from_zone"`
	SizeBefore int    `json:"size_before"`
	NewZone    string `json:"new_zone"`
}

func (s Cluster) Assign(ctx context.Context, in Input) (domain.ZoningResult, error) {
	s = s.withDefaults()

	if s.TargetZones < 1 {
		return domain.ZoningResult{}, fmt.Errorf(
			"clustering: target_zones must be >= 1, got %d: %w",
			s.TargetZones, domain.ErrInvalidInput)
	}
	if err := validateInput(in); err != nil {
		return domain.ZoningResult{}, err
	}

	proj := geo.NewProjector(depotPoint(in.Depot))
	planar := make([]orb.Point, len(in.Customers))
	weights := make([]float64, len(in.Customers))
	for i, c := range in.Customers {
		planar[i] = proj.Project(point(c))
		weights[i] = 1
		if !s.DisableDepotWeight {
			d := geo.HaversineKm(depotPoint(in.Depot), point(c))
			weights[i] = 1 / (1 + d/20)
		}
	}

	rng := rand.New(rand.NewSource(s.Seed))
	all := make([]int, len(in.Customers))
	for i := range all {
		all[i] = i
	}

	clusters, centers := s.kmeans(ctx, rng, planar, weights, all, s.TargetZones)

	// Oversize enforcement: split the first over-cap cluster in two, up to
	// the split budget.
	type splitPair struct {
		from, created, sizeBefore int
	}
	var splitPairs []splitPair
	constraintSatisfied := true
	if s.MaxCustomersPerZone > 0 {
		limit := float64(s.MaxCustomersPerZone) * (1 + s.Tolerance)
		for iter := 0; iter < s.MaxSplitIterations; iter++ {
			over := -1
			for ci, ms := range clusters {
				if float64(len(ms)) > limit {
					over = ci
					break
				}
			}
			if over < 0 {
				break
			}

			parts, partCenters := s.kmeans(ctx, rng, planar, weights, clusters[over], 2)
			if len(parts) < 2 || len(parts[0]) == 0 || len(parts[1]) == 0 {
				break // coincident points, cannot separate further
			}

			splitPairs = append(splitPairs, splitPair{
				from:       over,
				created:    len(clusters),
				sizeBefore: len(clusters[over]),
			})
			clusters[over] = parts[0]
			centers[over] = partCenters[0]
			clusters = append(clusters, parts[1])
			centers = append(centers, partCenters[1])
		}

		for _, ms := range clusters {
			if float64(len(ms)) > limit {
				constraintSatisfied = false
			}
		}
	}

	zoneIDs := make([]string, len(clusters))
	members := make(map[string][]domain.Customer, len(clusters))
	centroids := make([][2]float64, len(clusters))
	for ci, cluster := range clusters {
		zid := MintZoneID(in.Depot.Code, ci+1)
		zoneIDs[ci] = zid
		for _, i := range cluster {
			members[zid] = append(members[zid], in.Customers[i])
		}
		ll := proj.Unproject(centers[ci])
		centroids[ci] = [2]float64{ll[1], ll[0]}
	}

	splits := make([]splitRecord, len(splitPairs))
	for i, sp := range splitPairs {
		splits[i] = splitRecord{
			FromZone:   zoneIDs[sp.from],
			SizeBefore: sp.sizeBefore,
			NewZone:    zoneIDs[sp.created],
		}
	}

	res := newResult(in, s.Name(), zoneIDs, members)
	res.Metadata["centroids"] = centroids
	res.Metadata["depot_weighting"] = !s.DisableDepotWeight
	res.Metadata["seed"] = s.Seed
	if s.MaxCustomersPerZone > 0 {
		res.Metadata["max_customers_per_zone"] = s.MaxCustomersPerZone
		res.Metadata["constraint_satisfied"] = constraintSatisfied
		res.Metadata["splits"] = splits
	}

	return res, nil
}

// kmeans clusters the given member indices into k groups on the planar
// coordinates, using k-means++ seeding and weighted centroid updates.
// Empty groups are dropped, so fewer than k groups can come back.
func (s Cluster) kmeans(
	ctx context.Context,
	rng *rand.Rand,
	planar []orb.Point,
	weights []float64,
	members []int,
	k int,
) ([][]int, []orb.Point) {
	if k > len(members) {
		k = len(members)
	}
	if k <= 1 {
		return [][]int{members}, []orb.Point{weightedMean(planar, weights, members)}
	}

	centers := seedCenters(rng, planar, members, k)
	groups := make([][]int, k)

	for iter := 0; iter < s.MaxIterations; iter++ {
		if ctx.Err() != nil {
			break
		}

		groups = regroup(centers, planar, members)

		// Re-seed any emptied cluster on the point farthest from its
		// current center so k groups survive.
		for ci := range groups {
			if len(groups[ci]) > 0 {
				continue
			}
			far, farD := members[0], -1.0
			for _, m := range members {
				d := planarDist2(centers[nearestCenter(centers, planar[m])], planar[m])
				if d > farD {
					far, farD = m, d
				}
			}
			centers[ci] = planar[far]
			groups = regroup(centers, planar, members)
		}

		moved := 0.0
		for ci := range centers {
			if len(groups[ci]) == 0 {
				continue
			}
			next := weightedMean(planar, weights, groups[ci])
			if d := planarDist(centers[ci], next); d > moved {
				moved = d
			}
			centers[ci] = next
		}
		if moved < s.EpsilonKm {
			break
		}
	}

	outGroups := make([][]int, 0, k)
	outCenters := make([]orb.Point, 0, k)
	for ci := range groups {
		if len(groups[ci]) == 0 {
			continue
		}
		outGroups = append(outGroups, groups[ci])
		outCenters = append(outCenters, centers[ci])
	}
	return outGroups, outCenters
}

// seedCenters picks k initial centers by k-means++ D² sampling.
func seedCenters(rng *rand.Rand, planar []orb.Point, members []int, k int) []orb.Point {
	centers := make([]orb.Point, 0, k)
	centers = append(centers, planar[members[rng.Intn(len(members))]])

	d2 := make([]float64, len(members))
	for len(centers) < k {
		total := 0.0
		for i, m := range members {
			best := math.Inf(1)
			for _, c := range centers {
				if d := planarDist2(c, planar[m]); d < best {
					best = d
				}
			}
			d2[i] = best
			total += best
		}

		if total == 0 { // all remaining points coincide with a center
			centers = append(centers, centers[0])
			continue
		}

		target := rng.Float64() * total
		pick := len(members) - 1
		acc := 0.0
		for i := range members {
			acc += d2[i]
			if acc >= target {
				pick = i
				break
			}
		}
		centers = append(centers, planar[members[pick]])
	}

	return centers
}

func regroup(centers []orb.Point, planar []orb.Point, members []int) [][]int {
	groups := make([][]int, len(centers))
	for _, m := range members {
		ci := nearestCenter(centers, planar[m])
		groups[ci] = append(groups[ci], m)
	}
	return groups
}

func nearestCenter(centers []orb.Point, p orb.Point) int {
	best, bestD := 0, math.Inf(1)
	for ci, c := range centers {
		if d := planarDist2(c, p); d < bestD {
			best, bestD = ci, d
		}
	}
	return best
}

func weightedMean(planar []orb.Point, weights []float64, members []int) orb.Point {
	var sx, sy, sw float64
	for _, m := range members {
		sx += planar[m][0] * weights[m]
		sy += planar[m][1] * weights[m]
		sw += weights[m]
	}
	return orb.Point{sx / sw, sy / sw}
}

func planarDist2(a, b orb.Point) float64 {
	dx := a[0] - b[0]
	dy := a[1] - b[1]
	return dx*dx + dy*dy
}

func planarDist(a, b orb.Point) float64 {
	return math.Sqrt(planarDist2(a, b))
}
