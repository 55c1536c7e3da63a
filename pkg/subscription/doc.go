// Package subscription implements the correlation bookkeeping for one
// outstanding subscribe or unsubscribe request.
//
// A Context tracks the keys a request expects replies for and the replies
// received so far. Two variants exist:
//
//   - Single-reply: one implicit slot; complete after the first reply.
//   - Multi-reply: one slot per requested key; complete once every key has
//     a reply. A second reply for an already-satisfied key is delivered to
//     the stream but does not change completion.
//
// Every accepted reply is pushed to the context's Stream as it arrives, so
// callers observe partial results before the full set. The stream ends
// exactly once: successfully when the context completes, or with an error
// when the context is failed.
//
// # Streams
//
// Stream is a pull-based, unbounded queue with a terminal outcome. Next
// returns queued values in order, then io.EOF after success or the terminal
// error after a failure.
package subscription
