package sender

import (
	"context"

	"github.com/m3rciful/propbot/core/channel"
	"github.com/m3rciful/propbot/core/dialog"
)

// SendDirectives enqueues one job delivering ds in order through m.
// A retried job resumes at the directive that failed, so earlier ones are not repeated.
func (d *Dispatcher) SendDirectives(ctx context.Context, m channel.Messenger, provider string, ds []dialog.Directive) error {
	if len(ds) == 0 {
		return nil
	}
	pending := append([]dialog.Directive(nil), ds...)
	next := 0
	return d.Enqueue(ctx, "send_directives", provider, func(ctx context.Context) error {
		for next < len(pending) {
			if err := m.Send(ctx, pending[next]); err != nil {
				return err
			}
			next++
		}
		return nil
	})
}
