package room

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricRoomCreates            = "room_creates_total"
	MetricRoomJoins              = "room_joins_total"
	MetricRoomLeaves             = "room_leaves_total"
	MetricRoomKicks              = "room_kicks_total"
	MetricRoomEnds               = "room_ends_total"
	MetricRoomsSwept             = "rooms_swept_total"
	MetricMediaDisconnectErrors  = "media_disconnect_errors_total"
	MetricActiveRoomParticipants = "room_active_participants"
)

// Sweep reasons used as label values on the rooms_swept_total counter.
const (
	SweepReasonStaleEmpty = "stale_empty"
	SweepReasonRetention  = "retention"
)

// Metrics contains Prometheus metrics for room lifecycle operations.
// All operations are thread-safe.
type Metrics struct {
	roomCreates           prometheus.Counter
	roomJoins             prometheus.Counter
	roomLeaves            prometheus.Counter
	roomKicks             prometheus.Counter
	roomEnds              prometheus.Counter
	roomsSwept            *prometheus.CounterVec
	mediaDisconnectErrors prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register them
// with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		roomCreates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRoomCreates,
			Help: "Total number of rooms created",
		}),
		roomJoins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRoomJoins,
			Help: "Total number of participant joins",
		}),
		roomLeaves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRoomLeaves,
			Help: "Total number of participant leaves",
		}),
		roomKicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRoomKicks,
			Help: "Total number of participants kicked by a host",
		}),
		roomEnds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRoomEnds,
			Help: "Total number of rooms ended by their host",
		}),
		roomsSwept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRoomsSwept,
			Help: "Total number of rooms removed by the background sweeps, by reason",
		}, []string{"reason"}),
		mediaDisconnectErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricMediaDisconnectErrors,
			Help: "Total number of failed media-server disconnect calls",
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncRoomCreates increments the room creates counter.
func (m *Metrics) IncRoomCreates() {
	m.roomCreates.Inc()
}

// IncRoomJoins increments the participant joins counter.
func (m *Metrics) IncRoomJoins() {
	m.roomJoins.Inc()
}

// IncRoomLeaves increments the participant leaves counter.
func (m *Metrics) IncRoomLeaves() {
	m.roomLeaves.Inc()
}

// IncRoomKicks increments the kick counter.
func (m *Metrics) IncRoomKicks() {
	m.roomKicks.Inc()
}

// IncRoomEnds increments the ended rooms counter.
func (m *Metrics) IncRoomEnds() {
	m.roomEnds.Inc()
}

// IncRoomsSwept increments the sweep counter for the given reason.
func (m *Metrics) IncRoomsSwept(reason string) {
	m.roomsSwept.WithLabelValues(reason).Inc()
}

// IncMediaDisconnectErrors increments the failed media disconnect counter.
func (m *Metrics) IncMediaDisconnectErrors() {
	m.mediaDisconnectErrors.Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.roomCreates,
		m.roomJoins,
		m.roomLeaves,
		m.roomKicks,
		m.roomEnds,
		m.roomsSwept,
		m.mediaDisconnectErrors,
	}
}
