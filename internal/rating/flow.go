// Package rating is the post-conversation rating state machine.
package rating

import (
	"context"
	"sync"

	"github.com/htetarkarhlaing/wecare-chat-widget/internal/config"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/errors"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/model"
)

type State string

const (
	StateHidden     State = "hidden"
	StateVisible    State = "visible"
	StateSubmitting State = "submitting"
	StateSubmitted  State = "submitted"
)

const (
	MinRating = 1
	MaxRating = 5
)

// Submitter is implemented by session.Manager.
type Submitter interface {
	SubmitRating(ctx context.Context, rating int, feedback string) (*model.RatingSummary, model.SessionStatus, error)
}

type Draft struct {
	Rating   int
	Feedback string
}

type Snapshot struct {
	State   State
	Draft   Draft
	Summary *model.RatingSummary
	Error   string
}

type Flow struct {
	submitter Submitter

	mu      sync.Mutex
	state   State
	draft   Draft
	summary *model.RatingSummary
	errMsg  string
	// epoch changes on Reset so a submission started earlier is discarded.
	epoch uint64
}

func NewFlow(submitter Submitter) *Flow {
	return &Flow{
		submitter: submitter,
		state:     StateHidden,
		draft:     Draft{Rating: config.DefaultRating},
	}
}

func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Snapshot{
		State:   f.state,
		Draft:   f.draft,
		Summary: cloneSummary(f.summary),
		Error:   f.errMsg,
	}
}

// Sync reconciles the flow with a fetched session. A stored summary always
// wins; an ended session without one opens the form.
func (f *Flow) Sync(status model.SessionStatus, summary *model.RatingSummary) State {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case summary != nil:
		f.state = StateSubmitted
		f.summary = cloneSummary(summary)
		f.errMsg = ""
	case f.state == StateSubmitted || f.state == StateSubmitting:
	case status.IsEnded():
		f.state = StateVisible
	}
	return f.state
}

// RequestEnd opens the form while the session is still active.
func (f *Flow) RequestEnd(status model.SessionStatus) State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateHidden && status == model.SessionStatusActive {
		f.state = StateVisible
	}
	return f.state
}

// Dismiss backs out of the form. Only allowed while the session is active.
func (f *Flow) Dismiss(status model.SessionStatus) State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateVisible && status == model.SessionStatusActive {
		f.state = StateHidden
		f.errMsg = ""
	}
	return f.state
}

func (f *Flow) SetDraft(rating int, feedback string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateSubmitted {
		return
	}
	f.draft = Draft{Rating: rating, Feedback: feedback}
}

// Submit sends the rating. It is only valid from the visible state. On
// failure the flow returns to visible with the draft kept.
func (f *Flow) Submit(ctx context.Context, rating int, feedback string) (*model.RatingSummary, model.SessionStatus, error) {
	if rating < MinRating || rating > MaxRating {
		return nil, model.SessionStatusUnknown, errors.InvalidInput("rating", "must be between 1 and 5")
	}

	f.mu.Lock()
	if f.state != StateVisible {
		state := f.state
		f.mu.Unlock()
		return nil, model.SessionStatusUnknown, errors.RatingUnavailable("Rating is not available in state " + string(state))
	}
	f.state = StateSubmitting
	f.draft = Draft{Rating: rating, Feedback: feedback}
	f.errMsg = ""
	epoch := f.epoch
	f.mu.Unlock()

	summary, status, err := f.submitter.SubmitRating(ctx, rating, feedback)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.epoch != epoch {
		return nil, model.SessionStatusUnknown, errors.RatingUnavailable("Conversation was reset")
	}
	if err != nil {
		f.state = StateVisible
		f.errMsg = errors.RatingSubmitFailed(nil).Message
		if !errors.IsAppError(err) {
			err = errors.RatingSubmitFailed(err)
		}
		return nil, model.SessionStatusUnknown, err
	}

	f.state = StateSubmitted
	f.summary = cloneSummary(summary)
	return cloneSummary(summary), status, nil
}

// AllowsSending is false once the form is open or a rating exists.
func (f *Flow) AllowsSending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == StateHidden
}

// Reset returns to the initial state and invalidates in-flight submissions.
func (f *Flow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.epoch++
	f.state = StateHidden
	f.draft = Draft{Rating: config.DefaultRating}
	f.summary = nil
	f.errMsg = ""
}

func cloneSummary(s *model.RatingSummary) *model.RatingSummary {
	if s == nil {
		return nil
	}
	c := *s
	if s.RatedAt != nil {
		t := *s.RatedAt
		c.RatedAt = &t
	}
	return &c
}
