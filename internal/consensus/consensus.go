// Package consensus reduces per-backend observations to one canonical value
// per metric.
package consensus

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"stemprep/internal/analysis"
	"stemprep/internal/musickey"
)

// ErrInsufficientData means a metric had no observations. The metric is
// recorded as absent, never guessed.
var ErrInsufficientData = errors.New("no observations")

// Method names how a canonical value was reached.
type Method string

const (
	SingleSource        Method = "single-source"
	OctaveFoldedCluster Method = "octave-folded-cluster"
	WeightedVote        Method = "weighted-vote"
	PriorityTiebreak    Method = "priority-tiebreak"
)

// Tempo is the resolved tempo of a file.
type Tempo struct {
	BPM       int
	Method    Method
	Agreement float64
	// Backends are the contributors of the winning cluster, in observation order.
	Backends []string
}

// Key is the resolved key of a file.
type Key struct {
	Key       musickey.Key
	Method    Method
	Agreement float64
	Backends  []string
}

// Qualitative holds one descriptor per name plus the values that lost to a
// higher-priority backend.
type Qualitative struct {
	Values map[string]analysis.Descriptor
	Audit  []analysis.Descriptor
}

// Resolver applies the consensus rules with a BPM clustering tolerance and a
// backend priority order (most accurate first).
type Resolver struct {
	ToleranceBPM float64
	Priority     []string
}

func NewResolver(toleranceBPM float64, priority []string) *Resolver {
	return &Resolver{ToleranceBPM: toleranceBPM, Priority: priority}
}

// rank is the backend's position in the priority list; unlisted backends
// rank after all listed ones.
func (r *Resolver) rank(backend string) int {
	for i, p := range r.Priority {
		if p == backend {
			return i
		}
	}
	return len(r.Priority)
}

type folded struct {
	obs analysis.TempoObservation
	bpm float64
}

type cluster struct {
	members []folded
	weight  float64
}

func (c *cluster) values() ([]float64, []float64) {
	vals := make([]float64, len(c.members))
	weights := make([]float64, len(c.members))
	for i, m := range c.members {
		vals[i] = m.bpm
		weights[i] = m.obs.Confidence
	}
	if c.weight <= 0 {
		weights = nil
	}
	return vals, weights
}

func (c *cluster) mean() float64 {
	vals, weights := c.values()
	return stat.Mean(vals, weights)
}

// spread is the weighted mean squared deviation from the cluster mean.
func (c *cluster) spread() float64 {
	vals, weights := c.values()
	mean := stat.Mean(vals, weights)
	dev := make([]float64, len(vals))
	for i, v := range vals {
		dev[i] = (v - mean) * (v - mean)
	}
	return stat.Mean(dev, weights)
}

// ResolveTempo folds octave errors toward the median, clusters the folded
// values and returns the weighted mean of the strongest cluster.
func (r *Resolver) ResolveTempo(obs []analysis.TempoObservation) (*Tempo, error) {
	if len(obs) == 0 {
		return nil, ErrInsufficientData
	}
	if len(obs) == 1 {
		return &Tempo{
			BPM:       int(math.Round(obs[0].BPM)),
			Method:    SingleSource,
			Agreement: 1.0,
			Backends:  []string{obs[0].Backend},
		}, nil
	}

	raw := make([]float64, len(obs))
	for i, o := range obs {
		raw[i] = o.BPM
	}
	med := median(raw)

	points := make([]folded, len(obs))
	var total float64
	for i, o := range obs {
		points[i] = folded{obs: o, bpm: fold(o.BPM, med)}
		total += o.Confidence
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].bpm < points[j].bpm })

	// Complete linkage: a value joins the current cluster while it stays
	// within tolerance of the cluster's smallest member.
	var clusters []*cluster
	for _, p := range points {
		if n := len(clusters); n > 0 && p.bpm-clusters[n-1].members[0].bpm <= r.ToleranceBPM {
			c := clusters[n-1]
			c.members = append(c.members, p)
			c.weight += p.obs.Confidence
			continue
		}
		clusters = append(clusters, &cluster{members: []folded{p}, weight: p.obs.Confidence})
	}

	best := clusters[0]
	for _, c := range clusters[1:] {
		if better(c, best) {
			best = c
		}
	}

	agreement := float64(len(best.members)) / float64(len(obs))
	if total > 0 {
		agreement = best.weight / total
	}

	return &Tempo{
		BPM:       int(math.Round(best.mean())),
		Method:    OctaveFoldedCluster,
		Agreement: agreement,
		Backends:  memberBackends(obs, best),
	}, nil
}

const epsilon = 1e-9

func better(a, b *cluster) bool {
	if d := a.weight - b.weight; math.Abs(d) > epsilon {
		return d > 0
	}
	if len(a.members) != len(b.members) {
		return len(a.members) > len(b.members)
	}
	if d := a.spread() - b.spread(); math.Abs(d) > epsilon {
		return d < 0
	}
	return a.mean() < b.mean()
}

// fold returns v scaled by whichever of 1, 2 or 1/2 brings it closest to ref.
func fold(v, ref float64) float64 {
	best := v
	for _, m := range []float64{2, 0.5} {
		if math.Abs(v*m-ref) < math.Abs(best-ref) {
			best = v * m
		}
	}
	return best
}

func median(vals []float64) float64 {
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

func memberBackends(obs []analysis.TempoObservation, c *cluster) []string {
	in := make(map[string]bool, len(c.members))
	for _, m := range c.members {
		in[m.obs.Backend] = true
	}
	var names []string
	for _, o := range obs {
		if in[o.Backend] {
			names = append(names, o.Backend)
		}
	}
	return names
}

// ResolveKey runs a confidence-weighted vote over the 24 keys. Keys tied on
// weight are separated by the best priority rank among their voters.
func (r *Resolver) ResolveKey(obs []analysis.KeyObservation) (*Key, error) {
	if len(obs) == 0 {
		return nil, ErrInsufficientData
	}
	if len(obs) == 1 {
		return &Key{
			Key:       obs[0].Key,
			Method:    SingleSource,
			Agreement: 1.0,
			Backends:  []string{obs[0].Backend},
		}, nil
	}

	var total float64
	for _, o := range obs {
		total += o.Confidence
	}
	weight := func(o analysis.KeyObservation) float64 {
		if total > 0 {
			return o.Confidence
		}
		return 1
	}

	votes := map[musickey.Key]float64{}
	bestRank := map[musickey.Key]int{}
	var order []musickey.Key
	for _, o := range obs {
		if _, seen := votes[o.Key]; !seen {
			order = append(order, o.Key)
			bestRank[o.Key] = r.rank(o.Backend)
		}
		votes[o.Key] += weight(o)
		if rk := r.rank(o.Backend); rk < bestRank[o.Key] {
			bestRank[o.Key] = rk
		}
	}

	var top float64
	for _, k := range order {
		top = math.Max(top, votes[k])
	}
	var tied []musickey.Key
	for _, k := range order {
		if math.Abs(votes[k]-top) <= epsilon {
			tied = append(tied, k)
		}
	}

	method := WeightedVote
	if len(tied) > 1 {
		method = PriorityTiebreak
		sort.SliceStable(tied, func(i, j int) bool {
			if bestRank[tied[i]] != bestRank[tied[j]] {
				return bestRank[tied[i]] < bestRank[tied[j]]
			}
			return tied[i].String() < tied[j].String()
		})
	}
	winner := tied[0]

	sum := total
	if sum <= 0 {
		sum = float64(len(obs))
	}

	var backends []string
	for _, o := range obs {
		if o.Key == winner {
			backends = append(backends, o.Backend)
		}
	}

	return &Key{
		Key:       winner,
		Method:    method,
		Agreement: votes[winner] / sum,
		Backends:  backends,
	}, nil
}

// ResolveQualitative keeps, for each descriptor name, the value from the
// highest-priority backend. Every other value goes to the audit list.
func (r *Resolver) ResolveQualitative(desc []analysis.Descriptor) *Qualitative {
	q := &Qualitative{Values: map[string]analysis.Descriptor{}}
	for _, d := range desc {
		cur, ok := q.Values[d.Name]
		if !ok {
			q.Values[d.Name] = d
			continue
		}
		if r.rank(d.Backend) < r.rank(cur.Backend) {
			q.Values[d.Name] = d
			q.Audit = append(q.Audit, cur)
		} else {
			q.Audit = append(q.Audit, d)
		}
	}
	sort.SliceStable(q.Audit, func(i, j int) bool { return q.Audit[i].Name < q.Audit[j].Name })
	return q
}
