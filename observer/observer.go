package observer

// Observer is notified by a Subject and pulls the state it needs from it.
type Observer interface {
	Update(subject Subject)
}

// Subject holds a message and notifies attached observers when asked to.
// Implementations are goroutine safe.
type Subject interface {
	// Attach appends observer to the notification list.
	// The same observer may be attached more than once.
	Attach(observer Observer)

	// UnAttach removes the first attached entry equal to observer.
	// Removing an observer that is not attached is a no-op.
	UnAttach(observer Observer)

	// Notify calls Update on every attached observer in attach order.
	Notify()

	Message() string
	SetMessage(message string)
}
