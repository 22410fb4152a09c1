package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	streamEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentchat_stream_events_total",
		Help: "Stream events consumed, by wire kind.",
	}, []string{"kind"})

	resubscribeAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentchat_resubscribe_attempts_total",
		Help: "Resubscription attempts across all turns.",
	})

	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentchat_turns_total",
		Help: "Completed conversational turns, by result.",
	}, []string{"result"})
)
