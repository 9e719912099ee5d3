package dagexec

import "context"

// EventType enumerates the structured events the executor emits
// (spec §4.7, §5).
type EventType string

const (
	EventDAGStart   EventType = "dag:start"
	EventDAGEnd     EventType = "dag:end"
	EventTaskStart  EventType = "task:start"
	EventTaskOK     EventType = "task:ok"
	EventTaskFail   EventType = "task:fail"
	EventTaskSkip   EventType = "task:skip"
	EventShellStart EventType = "shell:start"
	EventShellOut   EventType = "shell:stdout"
	EventShellErr   EventType = "shell:stderr"
	EventShellExit  EventType = "shell:exit"
)

// Event is one notification delivered to the event bus.
type Event struct {
	Type   EventType
	TaskID string
	Error  error
	Cause  string // for task:skip, the upstream failure's task id
	Data   any
}

// EventFilter decides whether an Observer should see a given Event.
type EventFilter interface {
	ShouldNotify(event Event) bool
}

// EventTypeFilter accepts only events of the given types.
type EventTypeFilter struct {
	types map[EventType]bool
}

func NewEventTypeFilter(types ...EventType) *EventTypeFilter {
	f := &EventTypeFilter{types: make(map[EventType]bool, len(types))}
	for _, t := range types {
		f.types[t] = true
	}

	return f
}

func (f *EventTypeFilter) ShouldNotify(event Event) bool {
	return f.types[event.Type]
}

// Observer receives Events from an EventBus.
type Observer interface {
	Name() string
	Filter() EventFilter // nil means "all events"
	OnEvent(ctx context.Context, event Event) error
}

// EventBus fans an Event out to every registered Observer,
// synchronously and in registration order. The executor's
// single-threaded cooperative scheduling (spec §5) requires this:
// events for one task must be observed in emission order before the
// next task starts, so notification cannot be handed off to
// goroutines the way a parallel engine's observer manager would.
type EventBus struct {
	observers []Observer
}

func NewEventBus() *EventBus {
	return &EventBus{}
}

func (b *EventBus) Register(o Observer) {
	b.observers = append(b.observers, o)
}

// Emit calls every observer in turn; an observer's error is discarded
// by the bus (neither logged nor propagated), so the executor does not
// fail a task because an observer failed to record it.
func (b *EventBus) Emit(ctx context.Context, event Event) {
	for _, o := range b.observers {
		if filter := o.Filter(); filter != nil && !filter.ShouldNotify(event) {
			continue
		}

		_ = o.OnEvent(ctx, event)
	}
}
