// Package notify is the outbound notification capability. Delivery is
// best-effort and fire-and-forget: failures are swallowed and never block
// the engine.
package notify

// Notifier delivers a short operator-facing message.
type Notifier interface {
	Notify(title, message string)
}

// Nop satisfies Notifier without doing anything; used in tests and when
// notifications are disabled.
type Nop struct{}

func (Nop) Notify(string, string) {}
