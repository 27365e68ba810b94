package track

// SignalHandler receives the raw page signals the engine consumes. Session
// implements it; tests and adapters can interpose their own.
type SignalHandler interface {
	Visibility(el Element, visible bool)
	Scroll(scrollY, documentHeight, viewportHeight float64)
	Click(el Element)
	PageHidden()
	PageUnloading()
}

// SignalSource is anything that can feed page signals to a handler: a browser
// bridge, a replay file, a synthetic test driver. Subscribe returns a stop
// function that detaches the handler.
type SignalSource interface {
	Subscribe(h SignalHandler) (stop func())
}

// Attach subscribes the session to a signal source and returns a disposer
// that detaches it and tears the session down. This is the explicit
// start/stop lifecycle: nothing is tracked before Attach, nothing after the
// disposer runs.
func Attach(s *Session, src SignalSource) func() {
	stop := src.Subscribe(s)
	return func() {
		stop()
		s.Close()
	}
}
