package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CartMetrics covers the cart reconciliation engine and the server-side cart.
type CartMetrics struct {
	MergesTotal          *prometheus.CounterVec
	RemoteFallbacksTotal prometheus.Counter
	GuestMutationsTotal  *prometheus.CounterVec
	ServerMutationsTotal *prometheus.CounterVec
}

// NewCartMetrics registers the cart collectors on reg.
func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	f := promauto.With(reg)
	return &CartMetrics{
		MergesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "cart",
			Name:      "merges_total",
			Help:      "Guest cart merges into a remote cart by outcome.",
		}, []string{"status"}), // status: merged, failed
		RemoteFallbacksTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "cart",
			Name:      "remote_fallbacks_total",
			Help:      "Initializations that fell back to the local cart because the remote fetch failed.",
		}),
		GuestMutationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "cart",
			Name:      "guest_mutations_total",
			Help:      "Mutations applied to a guest cart by operation.",
		}, []string{"op"}),
		ServerMutationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "cart",
			Name:      "server_mutations_total",
			Help:      "Mutations applied to server-side carts by operation.",
		}, []string{"op"}),
	}
}

// AuthzMetrics covers permission checks done by the API middleware.
type AuthzMetrics struct {
	ChecksTotal          *prometheus.CounterVec
	RoleCacheHitsTotal   prometheus.Counter
	RoleCacheMissesTotal prometheus.Counter
}

// NewAuthzMetrics registers the authorization collectors on reg.
func NewAuthzMetrics(reg prometheus.Registerer) *AuthzMetrics {
	f := promauto.With(reg)
	return &AuthzMetrics{
		ChecksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "authz",
			Name:      "checks_total",
			Help:      "Permission checks by permission and decision.",
		}, []string{"permission", "decision"}),
		RoleCacheHitsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "authz",
			Name:      "role_cache_hits_total",
			Help:      "Role permission lookups served from cache.",
		}),
		RoleCacheMissesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "authz",
			Name:      "role_cache_misses_total",
			Help:      "Role permission lookups that went to the database.",
		}),
	}
}
