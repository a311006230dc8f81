package transfer

// Publisher is the subset of C9's broadcast surface a transfer task needs:
// progress/completed/error/cancelled events, each published at most once
// per terminal outcome (cancelled is never double-fired even on a racing
// cancel-then-cleanup).
type Publisher interface {
	PublishProgress(ProgressEvent)
	PublishCompleted(CompletedEvent)
	PublishError(ErrorEvent)
	PublishCancelled(CancelledEvent)
}

// discardPublisher drops every event; used where a caller only wants a
// Task's side effects (file writes, registry state) without wiring a real
// event surface, such as tests.
type discardPublisher struct{}

func (discardPublisher) PublishProgress(ProgressEvent)   {}
func (discardPublisher) PublishCompleted(CompletedEvent) {}
func (discardPublisher) PublishError(ErrorEvent)         {}
func (discardPublisher) PublishCancelled(CancelledEvent) {}
