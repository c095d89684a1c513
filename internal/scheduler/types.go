package scheduler

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"eventpulse/internal/clock"
	"eventpulse/internal/eventbus"
	"eventpulse/internal/lifecycle"
	logx "eventpulse/pkg/logx"
)

const (
	DefaultPreviewSize           = 5
	DefaultListenerErrorInterval = 10 * time.Second
)

// Config holds the runtime-tunable scheduler settings.
type Config struct {
	Timezone              string // IANA TZ used for display in snapshots
	PreviewSize           int
	ListenerErrorInterval time.Duration
}

// StatusChange is delivered to listeners when an event's status moved.
type StatusChange struct {
	EventID string                 `json:"event_id"`
	Old     lifecycle.StatusResult `json:"old"`
	New     lifecycle.StatusResult `json:"new"`
	At      time.Time              `json:"at"`
}

// Listener receives status changes for one event. A panicking listener is
// recovered and logged; other listeners still run.
type Listener func(StatusChange)

// Subscription identifies one OnStatusChange registration.
type Subscription struct {
	EventID string
	ID      uuid.UUID
}

// TransitionRecorder persists status changes (audit trail). Errors are logged.
type TransitionRecorder interface {
	RecordTransition(c StatusChange) error
}

type listenerEntry struct {
	id      uuid.UUID
	fn      Listener
	removed bool
}

type Service struct {
	mu sync.Mutex

	cfg Config
	loc *time.Location
	clk clock.Clock
	log logx.Logger
	bus eventbus.Bus
	rec TransitionRecorder

	running bool
	gen     uint64
	timer   clock.Timer
	armedAt time.Time

	events   map[string]lifecycle.EventRecord
	order    []string
	statuses map[string]lifecycle.StatusResult
	queue    []lifecycle.Trigger

	listeners map[string][]*listenerEntry

	// Deliveries run in firing order: each fire with changes takes a ticket
	// under mu and waits for its turn on dcond.
	dmu       sync.Mutex
	dcond     *sync.Cond
	nextTick  uint64
	delivered uint64

	failures *failureReporter
}

// Option configures a Service at construction.
type Option func(*Service)

func WithClock(c clock.Clock) Option { return func(s *Service) { s.clk = clock.OrReal(c) } }

func WithLogger(l logx.Logger) Option { return func(s *Service) { s.log = l } }

// WithBus publishes every status change on eventbus.TopicStatusChanged.
func WithBus(b eventbus.Bus) Option { return func(s *Service) { s.bus = b } }

func WithRecorder(r TransitionRecorder) Option { return func(s *Service) { s.rec = r } }

// WithConfig sets the non-zero fields of cfg. Zero fields keep what earlier
// options set, so it composes with WithPreviewSize and friends in any order.
func WithConfig(cfg Config) Option {
	return func(s *Service) {
		if cfg.Timezone != "" {
			s.cfg.Timezone = cfg.Timezone
		}
		if cfg.PreviewSize > 0 {
			s.cfg.PreviewSize = cfg.PreviewSize
		}
		if cfg.ListenerErrorInterval > 0 {
			s.cfg.ListenerErrorInterval = cfg.ListenerErrorInterval
		}
	}
}

func WithPreviewSize(n int) Option { return func(s *Service) { s.cfg.PreviewSize = n } }

func WithListenerErrorInterval(d time.Duration) Option {
	return func(s *Service) { s.cfg.ListenerErrorInterval = d }
}

// QueueEntry is one trigger as shown by Status.
type QueueEntry struct {
	EventID   string              `json:"event_id"`
	EventName string              `json:"event_name,omitempty"`
	Kind      lifecycle.SubStatus `json:"kind"`
	FiresAt   time.Time           `json:"fires_at"`
	TimeUntil string              `json:"time_until"`
}

// Snapshot is a read-only view of the scheduler for diagnostics.
type Snapshot struct {
	Running          bool         `json:"running"`
	Generation       uint64       `json:"generation"`
	Timezone         string       `json:"timezone"`
	TrackedEvents    int          `json:"tracked_events"`
	TriggerCount     int          `json:"trigger_count"`
	Listeners        int          `json:"listeners"`
	ArmedAt          time.Time    `json:"armed_at,omitempty"`
	Next             *QueueEntry  `json:"next,omitempty"`
	Preview          []QueueEntry `json:"preview"`
	ListenerFailures uint64       `json:"listener_failures"`
}
