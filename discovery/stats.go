package discovery

import "sync/atomic"

// Stats counts discovery traffic of one Advertiser or Listener.
type Stats struct {
	Requests  uint64
	Responses uint64
	Dropped   uint64
	Limited   uint64
}

type counters struct {
	requests  atomic.Uint64
	responses atomic.Uint64
	dropped   atomic.Uint64
	limited   atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Requests:  c.requests.Load(),
		Responses: c.responses.Load(),
		Dropped:   c.dropped.Load(),
		Limited:   c.limited.Load(),
	}
}
