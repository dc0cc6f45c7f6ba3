package event

// Notifier surfaces user-facing messages. Presentation is up to whoever
// listens on the bus.
type Notifier interface {
	Warning(title string, message string)
}

type BusNotifier struct {
	bus Bus
}

func NewBusNotifier(bus Bus) *BusNotifier {
	return &BusNotifier{bus: bus}
}

func (n *BusNotifier) Warning(title string, message string) {
	n.bus.Publish(Event{
		Type:    TypeSessionExpired,
		Payload: Notice{Level: "warning", Title: title, Message: message},
	})
}
