package bus

// Coalesce forwards payloads from in to the returned channel. While the
// consumer is busy only the most recent payload is held; older ones are
// dropped. The output is closed once in is closed; a payload still held at
// that point is discarded.
func Coalesce(in <-chan Payload) <-chan Payload {
	out := make(chan Payload)

	go func() {
		defer close(out)

		var (
			pending Payload
			held    bool
		)
		for {
			var send chan<- Payload
			if held {
				send = out
			}

			select {
			case p, ok := <-in:
				if !ok {
					return
				}
				pending, held = p, true
			case send <- pending:
				pending, held = nil, false
			}
		}
	}()

	return out
}
