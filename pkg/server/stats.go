package server

import (
	"sync/atomic"

	"github.com/utkarsh5026/httpsfront/pkg/transport"
)

// Stats is a point-in-time copy of the server counters.
type Stats struct {
	Accepted    uint64
	Rejected    uint64
	Established uint64
	Active      int64
	Failures    map[transport.Reason]uint64
}

// TotalFailures sums Failures.
func (s Stats) TotalFailures() uint64 {
	var n uint64
	for _, v := range s.Failures {
		n += v
	}
	return n
}

type counters struct {
	accepted    atomic.Uint64
	rejected    atomic.Uint64
	established atomic.Uint64
	active      atomic.Int64
	failures    [transport.ReasonTimeout + 1]atomic.Uint64
}

func (c *counters) failure(r transport.Reason) {
	if r > 0 && int(r) < len(c.failures) {
		c.failures[r].Add(1)
	}
}

func (c *counters) snapshot() Stats {
	s := Stats{
		Accepted:    c.accepted.Load(),
		Rejected:    c.rejected.Load(),
		Established: c.established.Load(),
		Active:      c.active.Load(),
		Failures:    make(map[transport.Reason]uint64),
	}
	for _, r := range transport.Reasons() {
		if n := c.failures[r].Load(); n > 0 {
			s.Failures[r] = n
		}
	}
	return s
}
