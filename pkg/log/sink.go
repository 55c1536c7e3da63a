package log

// Logger receives protocol capture events from the connection, the REST
// client and the managers. Log is called on hot paths (the hub reader among
// them) and must not block. Implementations must be safe for concurrent use.
type Logger interface {
	Log(event Event)
}

// NoopLogger drops every event.
type NoopLogger struct{}

// Log implements Logger.
func (NoopLogger) Log(Event) {}

// OrNoop returns l, or NoopLogger when l is nil, so components can log
// unconditionally.
func OrNoop(l Logger) Logger {
	if l == nil {
		return NoopLogger{}
	}
	return l
}

// MultiLogger fans events out to several sinks, typically a capture file
// and an SlogAdapter for debug output.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger returns a MultiLogger over the non-nil loggers.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{loggers: make([]Logger, 0, len(loggers))}
	for _, l := range loggers {
		if l != nil {
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

// Log implements Logger.
func (m *MultiLogger) Log(event Event) {
	for _, l := range m.loggers {
		l.Log(event)
	}
}

// Len returns the number of sinks.
func (m *MultiLogger) Len() int { return len(m.loggers) }

// Logger collapses m: nil for no sinks, the sink itself for one.
func (m *MultiLogger) Logger() Logger {
	switch len(m.loggers) {
	case 0:
		return nil
	case 1:
		return m.loggers[0]
	default:
		return m
	}
}

var (
	_ Logger = NoopLogger{}
	_ Logger = (*MultiLogger)(nil)
)
