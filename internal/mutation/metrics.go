package mutation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var mutationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "kurosadmin_mutations_total",
		Help: "Total number of writes, by resource type, operation and result",
	},
	[]string{"type", "op", "result"},
)
