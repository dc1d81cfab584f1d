package store

import (
	"context"
	"math"
	"time"

	"github.com/Seednode/electricmaze/relay"
)

// Stats summarises a connection history.
type Stats struct {
	TotalDisconnects       int           `json:"totalDisconnects"`
	TotalReconnectAttempts int           `json:"totalReconnectAttempts"`
	SuccessfulReconnects   int           `json:"successfulReconnects"`
	FailedReconnects       int           `json:"failedReconnects"`
	AverageReconnectTime   time.Duration `json:"averageReconnectTime"`
	LastDisconnect         *time.Time    `json:"lastDisconnect,omitempty"`
	LastReconnect          *time.Time    `json:"lastReconnect,omitempty"`
}

// healthyReconnectTime is the reconnect time at or below which the time
// component of the health score is full.
const healthyReconnectTime = 30 * time.Second

// ComputeStats derives Stats from events in chronological order. A reconnect
// is timed from the most recent disconnect before it.
func ComputeStats(events []relay.Event) Stats {
	var (
		st             Stats
		lastDisconnect time.Time
		total          time.Duration
		timed          int
	)

	for _, ev := range events {
		ts := ev.Timestamp

		switch ev.Type {
		case relay.EventDisconnect:
			st.TotalDisconnects++
			lastDisconnect = ts
			st.LastDisconnect = &ts
		case relay.EventReconnectAttempt:
			st.TotalReconnectAttempts++
		case relay.EventReconnectSuccess:
			st.SuccessfulReconnects++
			st.LastReconnect = &ts
			if !lastDisconnect.IsZero() && !ts.Before(lastDisconnect) {
				total += ts.Sub(lastDisconnect)
				timed++
			}
		case relay.EventReconnectFailure:
			st.FailedReconnects++
		}
	}

	if timed > 0 {
		st.AverageReconnectTime = total / time.Duration(timed)
	}

	return st
}

// HealthScore rates a connection from 0 to 100. Seventy percent comes from
// the share of reconnect attempts that succeeded and thirty from how quickly
// reconnects complete.
func HealthScore(st Stats) int {
	if st.TotalReconnectAttempts == 0 {
		return 100
	}

	successRate := float64(st.SuccessfulReconnects) / float64(st.TotalReconnectAttempts)

	avg := max(st.AverageReconnectTime, time.Millisecond)
	timeWeight := math.Min(1, float64(healthyReconnectTime)/float64(avg))

	return int(math.Round((successRate*0.7 + timeWeight*0.3) * 100))
}

// Report is the stored history with its summary.
type Report struct {
	Stats       Stats         `json:"stats"`
	HealthScore int           `json:"healthScore"`
	Events      []relay.Event `json:"events"`
}

func (s *Store) Stats(ctx context.Context) (Report, error) {
	events, err := s.Events(ctx)
	if err != nil {
		return Report{}, err
	}

	st := ComputeStats(events)

	return Report{
		Stats:       st,
		HealthScore: HealthScore(st),
		Events:      events,
	}, nil
}
