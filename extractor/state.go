package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"invoice_nft_receipt/invoice"
)

// MaxAttempts bounds the number of generation rounds in one session. The
// initial extraction counts as the first.
const MaxAttempts = 5

var (
	// ErrSessionClosed is returned for any event after a terminal state.
	ErrSessionClosed = errors.New("session is closed")
	// ErrUnexpectedEvent is returned for an event the current state does not accept.
	ErrUnexpectedEvent = errors.New("event not valid in current state")
)

type State string

const (
	StateAwaitingInput    State = "awaiting_input"
	StateGenerating       State = "generating"
	StateAwaitingApproval State = "awaiting_approval"
	StateUpdating         State = "updating"
	StateApproved         State = "approved"
	StateCancelled        State = "cancelled"
	StateFailed           State = "failed"
)

// Effect is the single outbound call the driver must make after a step.
type Effect int

const (
	EffectNone Effect = iota
	EffectExtract
	EffectRevise
	EffectFinalize
)

func (e Effect) String() string {
	switch e {
	case EffectExtract:
		return "extract"
	case EffectRevise:
		return "revise"
	case EffectFinalize:
		return "finalize"
	default:
		return "none"
	}
}

type EventKind int

const (
	EventSubmitted EventKind = iota + 1
	EventDraftReady
	EventGenerationFailed
	EventReplied
	EventRetried
	EventCancelled
	EventHandoffSucceeded
	EventHandoffFailed
)

// Event is an input to Step. Only the fields relevant to Kind are read.
type Event struct {
	Kind             EventKind
	Text             string
	AllowAssumptions bool
	Draft            invoice.Draft
	Receipt          invoice.Receipt
	Err              error
	At               time.Time
}

// ConversationState is everything one session knows. It is a value; Step
// returns a new one.
type ConversationState struct {
	State            State
	Attempts         int
	AllowAssumptions bool
	// Classified is set once the assumption mode has been fixed.
	Classified bool
	Input      string
	Draft      invoice.Draft
	HasDraft   bool
	Feedback   string
	Record     *invoice.Record
	Receipt    *invoice.Receipt
	// MissingFields is set only on a strict-mode missing-field failure.
	MissingFields []string
	// Flags are notes about the last revision the user should see before approving.
	Flags  []string
	Reason string
	// Pending is the effect a Retried event re-issues.
	Pending  Effect
	ImageURI string
}

// NewConversation returns the initial state.
func NewConversation(imageURI string) ConversationState {
	return ConversationState{
		State:    StateAwaitingInput,
		Draft:    invoice.NewDraft(),
		ImageURI: imageURI,
	}
}

// Closed reports whether the session accepts no further events.
func (cs ConversationState) Closed() bool {
	switch cs.State {
	case StateFailed, StateCancelled:
		return true
	case StateApproved:
		return cs.Receipt != nil
	}
	return false
}

// CanRetry reports whether a Retried event would do something.
func (cs ConversationState) CanRetry() bool {
	if cs.Closed() || cs.Pending == EffectNone {
		return false
	}
	return cs.Pending == EffectFinalize || cs.Attempts < MaxAttempts
}

var approvalTokens = map[string]bool{"yes": true, "ok": true, "y": true}

// IsApproval reports whether a reply approves the current draft.
func IsApproval(text string) bool {
	return approvalTokens[strings.ToLower(strings.TrimSpace(text))]
}

// Step applies one event. It performs no I/O; the returned Effect tells
// the caller which request to make next.
func Step(cs ConversationState, ev Event) (ConversationState, Effect, error) {
	if cs.Closed() {
		return cs, EffectNone, ErrSessionClosed
	}
	if ev.Kind == EventCancelled {
		cs.State = StateCancelled
		cs.Pending = EffectNone
		cs.Reason = "cancelled by user"
		return cs, EffectNone, nil
	}

	switch cs.State {
	case StateAwaitingInput:
		switch ev.Kind {
		case EventSubmitted:
			text := strings.TrimSpace(ev.Text)
			if text == "" {
				cs.Reason = "describe the work, the amount and who pays"
				return cs, EffectNone, nil
			}
			cs.Input = text
			if !cs.Classified {
				cs.AllowAssumptions = ev.AllowAssumptions
				cs.Classified = true
			}
			return beginRound(cs, StateGenerating, EffectExtract)
		case EventRetried:
			if cs.Pending != EffectExtract {
				break
			}
			return beginRound(cs, StateGenerating, EffectExtract)
		}

	case StateGenerating:
		switch ev.Kind {
		case EventDraftReady:
			d := ev.Draft
			d.PaymentStatus = invoice.PaymentStatusNotPaid
			if err := invoice.Validate(d, !cs.AllowAssumptions); err != nil {
				var verr *invoice.ValidationError
				if errors.As(err, &verr) {
					cs.MissingFields = verr.Missing
					return fail(cs, err.Error()+`. Start again with these details, or say "you calculate yourself" to let the assistant estimate them`), EffectNone, nil
				}
				return fail(cs, err.Error()), EffectNone, nil
			}
			cs.Draft = d
			cs.HasDraft = true
			cs.Flags = nil
			return awaitApproval(cs), EffectNone, nil
		case EventGenerationFailed:
			return roundFailed(cs, ev.Err, StateAwaitingInput, EffectExtract), EffectNone, nil
		}

	case StateAwaitingApproval:
		switch ev.Kind {
		case EventReplied:
			text := strings.TrimSpace(ev.Text)
			if text == "" {
				cs.Reason = "reply yes to approve, or describe what to change"
				return cs, EffectNone, nil
			}
			if IsApproval(text) {
				return approve(cs, ev.At)
			}
			cs.Feedback = text
			cs.Record = nil
			return beginRound(cs, StateUpdating, EffectRevise)
		case EventRetried:
			switch cs.Pending {
			case EffectRevise:
				return beginRound(cs, StateUpdating, EffectRevise)
			case EffectFinalize:
				return approve(cs, ev.At)
			}
		}

	case StateUpdating:
		switch ev.Kind {
		case EventDraftReady:
			if err := invoice.ValidateAmount(ev.Draft); err != nil {
				return fail(cs, err.Error()), EffectNone, nil
			}
			merged := invoice.Merge(cs.Draft, ev.Draft)
			guarded, reverted := invoice.GuardRoles(cs.Draft, merged, cs.Feedback)
			var flags []string
			for _, f := range reverted {
				flags = append(flags, fmt.Sprintf("%s was kept: the feedback did not ask to change it", f))
			}
			for _, f := range invoice.UnexplainedChanges(cs.Draft, guarded, cs.Feedback) {
				flags = append(flags, fmt.Sprintf("%s changed although the feedback did not mention it", f))
			}
			cs.Draft = guarded
			cs.Flags = flags
			return awaitApproval(cs), EffectNone, nil
		case EventGenerationFailed:
			return roundFailed(cs, ev.Err, StateAwaitingApproval, EffectRevise), EffectNone, nil
		}

	case StateApproved:
		switch ev.Kind {
		case EventHandoffSucceeded:
			r := ev.Receipt
			cs.Receipt = &r
			cs.Pending = EffectNone
			cs.Reason = ""
			return cs, EffectNone, nil
		case EventHandoffFailed:
			cs.State = StateAwaitingApproval
			cs.Pending = EffectFinalize
			cs.Reason = fmt.Sprintf("could not save the invoice: %v. Reply yes to try again, or describe what to change", ev.Err)
			return cs, EffectNone, nil
		}
	}

	return cs, EffectNone, fmt.Errorf("%w: event %d in state %s", ErrUnexpectedEvent, ev.Kind, cs.State)
}

func beginRound(cs ConversationState, next State, eff Effect) (ConversationState, Effect, error) {
	if cs.Attempts >= MaxAttempts {
		return fail(cs, fmt.Sprintf("attempt budget exhausted after %d rounds without approval", MaxAttempts)), EffectNone, nil
	}
	cs.Attempts++
	cs.State = next
	cs.Pending = EffectNone
	cs.MissingFields = nil
	cs.Reason = ""
	return cs, eff, nil
}

func awaitApproval(cs ConversationState) ConversationState {
	cs.State = StateAwaitingApproval
	cs.Pending = EffectNone
	cs.Reason = ""
	return cs
}

func approve(cs ConversationState, at time.Time) (ConversationState, Effect, error) {
	if cs.Record == nil {
		if at.IsZero() {
			at = time.Now()
		}
		rec, err := invoice.NewRecord(cs.Draft, at, cs.ImageURI)
		if err != nil {
			cs.Reason = "the invoice has no amount yet; tell me the amount before approving"
			return cs, EffectNone, nil
		}
		cs.Record = &rec
	}
	cs.State = StateApproved
	cs.Pending = EffectNone
	cs.Reason = ""
	return cs, EffectFinalize, nil
}

// roundFailed handles a parse or upstream failure. An invalid amount ends
// the session; anything else consumes the round and waits for a retry.
func roundFailed(cs ConversationState, err error, back State, eff Effect) ConversationState {
	if errors.Is(err, invoice.ErrInvalidAmount) {
		return fail(cs, err.Error())
	}
	if cs.Attempts >= MaxAttempts {
		return fail(cs, fmt.Sprintf("attempt budget exhausted: %s", describeFailure(err)))
	}
	cs.State = back
	cs.Pending = eff
	cs.Reason = fmt.Sprintf("%s; retry to ask again (%d of %d attempts used)", describeFailure(err), cs.Attempts, MaxAttempts)
	return cs
}

func fail(cs ConversationState, reason string) ConversationState {
	cs.State = StateFailed
	cs.Pending = EffectNone
	cs.Record = nil
	cs.Reason = reason
	return cs
}

func describeFailure(err error) string {
	switch {
	case err == nil:
		return "the model request failed"
	case errors.Is(err, context.DeadlineExceeded):
		return "the model timed out"
	case errors.Is(err, invoice.ErrMalformedReply):
		return "the model reply was not valid invoice JSON"
	default:
		return fmt.Sprintf("the model request failed: %v", err)
	}
}
