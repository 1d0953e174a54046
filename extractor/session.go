package extractor

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"invoice_nft_receipt/invoice"
)

// DefaultCallTimeout bounds one model request.
const DefaultCallTimeout = 60 * time.Second

// Finalizer hands an approved record to the pinning and ledger
// collaborators.
type Finalizer interface {
	Finalize(ctx context.Context, rec invoice.Record) (invoice.Receipt, error)
}

// SessionFactory creates a fresh session for an adapter-chosen id.
type SessionFactory func(id string) *Session

type SessionOptions struct {
	CallTimeout time.Duration
	ImageURI    string
	Now         func() time.Time
	Logger      *zap.Logger
}

// Session drives one conversation: it feeds events through Step and runs
// the effects Step asks for. Calls on one session are serialised.
type Session struct {
	ID string

	mu          sync.Mutex
	state       ConversationState
	history     []Turn
	agent       *Agent
	classifier  *Classifier
	finalizer   Finalizer
	callTimeout time.Duration
	now         func() time.Time
	logger      *zap.Logger
}

// NewSession creates a session in AwaitingInput. classifier and finalizer
// may be nil: the former means strict mode, the latter a local-only
// receipt.
func NewSession(id string, agent *Agent, classifier *Classifier, finalizer Finalizer, opts SessionOptions) *Session {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Session{
		ID:          id,
		state:       NewConversation(opts.ImageURI),
		agent:       agent,
		classifier:  classifier,
		finalizer:   finalizer,
		callTimeout: opts.CallTimeout,
		now:         opts.Now,
		logger:      opts.Logger.With(zap.String("session", id)),
	}
}

// Start submits the opening description. The assumption mode is decided
// here, once per session.
func (s *Session) Start(ctx context.Context, text string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev := Event{Kind: EventSubmitted, Text: text}
	if !s.state.Classified && s.state.State == StateAwaitingInput && strings.TrimSpace(text) != "" && s.classifier != nil {
		cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
		ev.AllowAssumptions = s.classifier.AllowAssumptions(cctx, text)
		cancel()
		s.logger.Info("intent classified", zap.Bool("allow_assumptions", ev.AllowAssumptions))
	}
	return s.apply(ctx, ev)
}

// Reply submits an approval token or free-text feedback.
func (s *Session) Reply(ctx context.Context, text string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(ctx, Event{Kind: EventReplied, Text: text, At: s.now()})
}

// Retry re-issues the request that last failed.
func (s *Session) Retry(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(ctx, Event{Kind: EventRetried, At: s.now()})
}

// Cancel ends the session without a record.
func (s *Session) Cancel() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(context.Background(), Event{Kind: EventCancelled})
}

// Snapshot returns a copy of the session for presentation.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// State returns a copy of the raw conversation state.
func (s *Session) State() ConversationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) apply(ctx context.Context, ev Event) (Snapshot, error) {
	next, eff, err := Step(s.state, ev)
	if err != nil {
		return s.snapshotLocked(), err
	}
	s.state = next

	for eff != EffectNone {
		s.logger.Debug("running effect", zap.Stringer("effect", eff), zap.Int("attempt", s.state.Attempts))
		prev := s.state.State
		out := s.run(ctx, eff)
		next, eff, err = Step(s.state, out)
		if err != nil {
			return s.snapshotLocked(), err
		}
		s.state = next
		s.record(prev, out)
	}
	return s.snapshotLocked(), nil
}

func (s *Session) run(ctx context.Context, eff Effect) Event {
	cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	switch eff {
	case EffectExtract:
		d, err := s.agent.Extract(cctx, s.state.Input, s.state.AllowAssumptions)
		if err != nil {
			return Event{Kind: EventGenerationFailed, Err: err}
		}
		return Event{Kind: EventDraftReady, Draft: d}
	case EffectRevise:
		d, err := s.agent.Revise(cctx, s.state.Draft, s.state.Feedback)
		if err != nil {
			return Event{Kind: EventGenerationFailed, Err: err}
		}
		return Event{Kind: EventDraftReady, Draft: d}
	case EffectFinalize:
		rec := *s.state.Record
		if s.finalizer == nil {
			return Event{Kind: EventHandoffSucceeded, Receipt: invoice.Receipt{Record: rec}}
		}
		receipt, err := s.finalizer.Finalize(cctx, rec)
		if err != nil {
			return Event{Kind: EventHandoffFailed, Err: err}
		}
		return Event{Kind: EventHandoffSucceeded, Receipt: receipt}
	}
	return Event{Kind: EventGenerationFailed}
}

// record logs the outcome of one effect and keeps the draft history.
func (s *Session) record(prev State, out Event) {
	st := s.state
	switch out.Kind {
	case EventDraftReady:
		if st.State != StateAwaitingApproval {
			s.logger.Info("draft rejected", zap.String("state", string(st.State)), zap.String("reason", st.Reason))
			return
		}
		summary := "first draft"
		feedback := ""
		if prev == StateUpdating {
			summary = "revision"
			feedback = st.Feedback
		}
		s.history = append(s.history, Turn{
			Feedback:  feedback,
			Draft:     st.Draft,
			Summary:   summary,
			CreatedAt: s.now(),
		})
		s.logger.Info("draft ready", zap.Int("attempt", st.Attempts), zap.Strings("flags", st.Flags))
	case EventGenerationFailed:
		s.logger.Warn("generation failed",
			zap.Int("attempt", st.Attempts),
			zap.String("state", string(st.State)),
			zap.Error(out.Err),
		)
	case EventHandoffSucceeded:
		s.logger.Info("invoice finalized", zap.String("cid", out.Receipt.CID))
	case EventHandoffFailed:
		s.logger.Warn("hand-off failed, back to approval", zap.Error(out.Err))
	}
}

// Snapshot is the presentation view of a session.
type Snapshot struct {
	SessionID        string           `json:"session_id"`
	State            State            `json:"state"`
	Attempt          int              `json:"attempt"`
	MaxAttempts      int              `json:"max_attempts"`
	AllowAssumptions bool             `json:"allow_assumptions"`
	Draft            *invoice.Draft   `json:"draft,omitempty"`
	MissingFields    []string         `json:"missing_fields,omitempty"`
	Flags            []string         `json:"flags,omitempty"`
	Reason           string           `json:"reason,omitempty"`
	CanRetry         bool             `json:"can_retry"`
	Record           *invoice.Record  `json:"record,omitempty"`
	Receipt          *invoice.Receipt `json:"receipt,omitempty"`
	History          []Turn           `json:"history"`
	Closed           bool             `json:"closed"`
}

func (s *Session) snapshotLocked() Snapshot {
	st := s.state
	snap := Snapshot{
		SessionID:        s.ID,
		State:            st.State,
		Attempt:          st.Attempts,
		MaxAttempts:      MaxAttempts,
		AllowAssumptions: st.AllowAssumptions,
		MissingFields:    append([]string(nil), st.MissingFields...),
		Flags:            append([]string(nil), st.Flags...),
		Reason:           st.Reason,
		CanRetry:         st.CanRetry(),
		History:          append([]Turn{}, s.history...),
		Closed:           st.Closed(),
	}
	if st.HasDraft {
		d := st.Draft
		snap.Draft = &d
	}
	if st.Record != nil {
		r := *st.Record
		snap.Record = &r
	}
	if st.Receipt != nil {
		r := *st.Receipt
		snap.Receipt = &r
	}
	return snap
}
