// Package quota implements the sandbox's resource accountant: a fixed
// 3x3 matrix of (resource, metric) counters with monotone maximum tracking.
package quota

// Resource identifies a tracked resource.
type Resource int

const (
	Memory Resource = iota
	Instructions
	Output
	resourceCount
)

// Metric identifies a column of the quota matrix.
type Metric int

const (
	Limit Metric = iota
	Current
	Maximum
	metricCount
)

// Accountant tracks current, maximum and limit for memory, instructions and
// output bytes. It is passive: it never aborts anything itself, it only
// answers "would this charge exceed the limit" and updates its bookkeeping
// when the caller commits a charge. Callers are expected to call it from a
// single goroutine — a sandbox owns exactly one Accountant and is itself
// single-threaded.
type Accountant struct {
	table [resourceCount][metricCount]uint64
}

// New returns a zeroed Accountant.
func New() *Accountant {
	return &Accountant{}
}

// SetLimit sets the limit for a resource. A limit of 0 means unbounded.
func (a *Accountant) SetLimit(r Resource, limit uint64) {
	a.table[r][Limit] = limit
}

// Peek returns the current value of (resource, metric).
func (a *Accountant) Peek(r Resource, m Metric) uint64 {
	return a.table[r][m]
}

// Charge applies a signed delta to CURRENT for resource r. Positive deltas
// are checked against LIMIT (0 = unbounded) before being applied; if the
// projected value would exceed a nonzero limit, Charge returns false and
// leaves all counters untouched. Negative deltas (frees) always succeed and
// never move MAXIMUM. On any successful positive charge, MAXIMUM is raised
// to track the new CURRENT if it grew.
func (a *Accountant) Charge(r Resource, delta int64) bool {
	cur := a.table[r][Current]
	if delta < 0 {
		dec := uint64(-delta)
		if dec > cur {
			dec = cur
		}
		a.table[r][Current] = cur - dec
		return true
	}

	inc := uint64(delta)
	projected := cur + inc
	limit := a.table[r][Limit]
	if limit != 0 && projected > limit {
		return false
	}
	a.table[r][Current] = projected
	if projected > a.table[r][Maximum] {
		a.table[r][Maximum] = projected
	}
	return true
}

// Set directly assigns CURRENT (used by the output buffer, which tracks its
// own position rather than accumulating deltas) and updates MAXIMUM.
func (a *Accountant) Set(r Resource, current uint64) {
	a.table[r][Current] = current
	if current > a.table[r][Maximum] {
		a.table[r][Maximum] = current
	}
}

// Reset zeroes CURRENT for a resource without touching LIMIT or MAXIMUM.
func (a *Accountant) Reset(r Resource) {
	a.table[r][Current] = 0
}
