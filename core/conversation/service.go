// Package conversation wires inbound messages through the session store, the
// dialog engine and the outbound dispatcher.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/m3rciful/propbot/core/channel"
	"github.com/m3rciful/propbot/core/dialog"
	"github.com/m3rciful/propbot/core/logger"
	"github.com/m3rciful/propbot/core/state"
)

// ErrNoSender is returned for messages without a user id.
var ErrNoSender = errors.New("conversation: message has no sender")

const component = "dialog"

// Dispatcher runs outbound work asynchronously.
type Dispatcher interface {
	SendDirectives(ctx context.Context, m channel.Messenger, provider string, ds []dialog.Directive) error
	Enqueue(ctx context.Context, action, endpoint string, run func(ctx context.Context) error) error
}

// LeadRecorder persists completed enquiries.
type LeadRecorder interface {
	SaveLead(ctx context.Context, lead dialog.Lead) error
}

// Options configures a Service. Leads may be nil.
type Options struct {
	Store      state.Store
	Engine     *dialog.Engine
	Messenger  channel.Messenger
	Dispatcher Dispatcher
	Leads      LeadRecorder
}

// Service handles one inbound message at a time per user.
type Service struct {
	store      state.Store
	engine     *dialog.Engine
	messenger  channel.Messenger
	dispatcher Dispatcher
	leads      LeadRecorder
}

// NewService validates opts and builds a Service.
func NewService(opts Options) (*Service, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("conversation: nil store")
	case opts.Engine == nil:
		return nil, errors.New("conversation: nil engine")
	case opts.Messenger == nil:
		return nil, errors.New("conversation: nil messenger")
	case opts.Dispatcher == nil:
		return nil, errors.New("conversation: nil dispatcher")
	}
	return &Service{
		store:      opts.Store,
		engine:     opts.Engine,
		messenger:  opts.Messenger,
		dispatcher: opts.Dispatcher,
		leads:      opts.Leads,
	}, nil
}

// Sessions reports the number of live sessions.
func (s *Service) Sessions() int { return s.store.Len() }

// Handle applies msg to the sender's session, commits the result and queues
// the replies. Dispatch failures are logged and dropped; they never roll
// back the committed state.
func (s *Service) Handle(ctx context.Context, msg channel.Message) (dialog.Outcome, error) {
	if msg.Sender == "" {
		return dialog.Outcome{}, ErrNoSender
	}
	ctx = logger.WithMessageMeta(ctx, msg.Provider, msg.ID, msg.Sender)
	start := time.Now()

	out, from, created := s.transition(msg)
	s.logTransition(ctx, out, from, created, time.Since(start))

	if err := s.dispatcher.SendDirectives(ctx, s.messenger, msg.Provider, out.Directives); err != nil {
		logger.Warn(ctx, "sender", "dispatch.drop",
			slog.String("status", "dropped"),
			slog.Int("directives", len(out.Directives)),
			slog.String("err", err.Error()),
		)
	}
	if out.Lead != nil {
		s.recordLead(ctx, *out.Lead)
	}
	return out, nil
}

// transition runs under the per-user lock so concurrent deliveries for one
// user are applied one after another.
func (s *Service) transition(msg channel.Message) (dialog.Outcome, state.Stage, bool) {
	unlock := s.store.Lock(msg.Sender)
	defer unlock()

	sess, created := s.store.GetOrCreate(msg.Sender)
	var out dialog.Outcome
	if created {
		out = s.engine.Welcome(msg.Sender)
	} else {
		out = s.engine.Decide(dialog.Turn{
			UserID:  msg.Sender,
			Stage:   sess.Stage,
			Context: sess.Context,
			Text:    msg.Text,
		})
	}

	if out.End {
		s.store.Clear(msg.Sender)
	} else {
		s.store.Update(msg.Sender, out.Stage, out.Patch)
	}
	return out, sess.Stage, created
}

func (s *Service) logTransition(ctx context.Context, out dialog.Outcome, from state.Stage, created bool, took time.Duration) {
	outcome := "ok"
	if out.End {
		outcome = "ended"
	}
	attrs := []slog.Attr{
		slog.String("route", out.Route),
		slog.String("from_stage", string(from)),
		slog.String("to_stage", string(out.Stage)),
		slog.Bool("created", created),
		slog.String("outcome", outcome),
		slog.Int("directives", len(out.Directives)),
		slog.Duration("duration", logger.RoundMS(took)),
	}
	logger.Info(ctx, component, "dialog.transition", attrs...)
}

func (s *Service) recordLead(ctx context.Context, lead dialog.Lead) {
	logger.Info(ctx, component, "lead.captured", slog.String("lead_kind", string(lead.Kind)))
	if s.leads == nil {
		return
	}
	err := s.dispatcher.Enqueue(ctx, "save_lead", string(lead.Kind), func(ctx context.Context) error {
		return s.leads.SaveLead(ctx, lead)
	})
	if err != nil {
		logger.Warn(ctx, "db", "lead.drop",
			slog.String("status", "dropped"),
			slog.String("lead_kind", string(lead.Kind)),
			slog.String("err", err.Error()),
		)
	}
}
