package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var transitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "kurosadmin_session_transitions_total",
		Help: "Total number of session state transitions",
	},
	[]string{"from", "to"},
)
