package channel

// Observer receives manager events for metrics.
type Observer interface {
	// Sizes reports the pending and invoked counts after a change.
	Sizes(domain string, pending, invoked int)

	// HTTPCall reports the outcome of a subscribe or unsubscribe call.
	HTTPCall(domain, op string, err error)

	// Reply reports an accepted confirmation frame.
	Reply(domain string)

	// CorrelationMiss reports a frame that matched no invoked context.
	CorrelationMiss(domain string)

	// Terminated reports a context ending. err is nil on success.
	Terminated(domain string, err error)
}

type noopObserver struct{}

func (noopObserver) Sizes(string, int, int)         {}
func (noopObserver) HTTPCall(string, string, error) {}
func (noopObserver) Reply(string)                   {}
func (noopObserver) CorrelationMiss(string)         {}
func (noopObserver) Terminated(string, error)       {}
