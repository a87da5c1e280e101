package notifier

// Sink receives events delivered by a Hub. Send must return immediately —
// it must not block waiting on a slow consumer. A Sink that cannot accept
// an event right away (a full internal buffer, or a connection that has
// gone away) returns an error; the Hub treats that as the sink having
// closed and removes it from every subscription.
//
// cmd/loomd's WebSocket handler implements Sink over a buffered channel
// feeding a gorilla/websocket.Conn's write pump, mirroring the same
// backpressure-by-dropping behavior this package's Hub expects.
type Sink interface {
	Send(Event) error
}
