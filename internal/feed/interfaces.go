package feed

// Stream is the control surface a depth consumer needs from a venue
// connection. The concrete client lives in a venue subpackage; consumers only
// see subscription control and listener registration.
type Stream interface {
	// Subscribe adds the pair to the active set and issues a subscribe
	// request, queueing it if the transport is down.
	Subscribe(coin string, sigFigs *int)

	// Unsubscribe removes the pair from the active set and issues an
	// unsubscribe request. Best-effort; unknown pairs are not an error.
	Unsubscribe(coin string, sigFigs *int)

	// OnSnapshot registers a listener for normalized depth frames. The
	// returned function removes the listener.
	OnSnapshot(fn func(Snapshot)) func()

	// OnOpen registers a listener fired each time the transport opens.
	OnOpen(fn func()) func()

	// OnClose registers a listener fired each time the transport closes.
	OnClose(fn func()) func()
}
