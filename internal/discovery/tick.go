package discovery

import "time"

// ExpireStale removes every discovered broker, across all monitored
// scopes, whose TTL has elapsed or that received a goodbye record, as
// of now (spec.md §4.3: "A TTL countdown timer ages each entry;
// expiry removes it"). Call once per tick.
func (r *Registry) ExpireStale(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.scopes {
		for instance, b := range e.brokers {
			if b.Expired(now) {
				delete(e.brokers, instance)
			}
		}
	}
}
