// Package notify composes presentation sinks.
package notify

import (
	"ytmp3convert/internal/core/domain"
	"ytmp3convert/internal/core/ports"
)

// Multi delivers each notification to every sink in order.
type Multi []ports.Notifier

// Notify implements ports.Notifier.
func (m Multi) Notify(n domain.Notification) {
	for _, sink := range m {
		if sink != nil {
			sink.Notify(n)
		}
	}
}

// WithSession stamps session onto notifications before passing them on.
func WithSession(session string, next ports.Notifier) ports.Notifier {
	return ports.NotifierFunc(func(n domain.Notification) {
		n.Session = session
		next.Notify(n)
	})
}
