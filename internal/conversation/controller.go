// Package conversation orchestrates one widget conversation: the session,
// its messages, the realtime channel and the rating flow.
//
// All state lives behind one mutex that is never held across a network call.
// Committing or clearing the session's credentials happens under it, so an
// adopt and a reset cannot interleave. Each session gets a generation number;
// a continuation that finds a newer generation discards its result.
package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/htetarkarhlaing/wecare-chat-widget/internal/config"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/errors"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/messages"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/model"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/rating"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/realtime"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/session"
)

// Sessions is implemented by session.Manager.
type Sessions interface {
	rating.Submitter
	Resume(ctx context.Context) (*model.Session, error)
	Create(ctx context.Context, intake model.Intake) (*session.CreateResult, error)
	Adopt(ctx context.Context, s *model.Session) *model.Session
	Fetch(ctx context.Context, sessionID string) (*model.ChatSession, error)
	Send(ctx context.Context, text string) (*model.Message, error)
	Clear(ctx context.Context) error
}

var _ Sessions = (*session.Manager)(nil)

type Options struct {
	Sessions  Sessions
	Dialer    realtime.Dialer
	SocketURL string
	Labels    config.Labels
}

type Snapshot struct {
	Started   bool
	Loading   bool
	Error     string
	SessionID string
	Status    model.SessionStatus
	Agent     *model.AgentInfo
	Messages  []model.Message
	Connected bool
	Rating    rating.Snapshot
	CanSend   bool
}

type Controller struct {
	sessions  Sessions
	flow      *rating.Flow
	dialer    realtime.Dialer
	socketURL string
	labels    config.Labels
	now       func() time.Time

	mu         sync.Mutex
	gen        uint64
	started    bool
	loading    bool
	errMsg     string
	sessionID  string
	status     model.SessionStatus
	agent      *model.AgentInfo
	store      *messages.Store
	channel    *realtime.Channel
	connected  bool
	pendingSeq int
	listeners  []func(Snapshot)
}

func NewController(opts Options) *Controller {
	return &Controller{
		sessions:  opts.Sessions,
		flow:      rating.NewFlow(opts.Sessions),
		dialer:    opts.Dialer,
		socketURL: opts.SocketURL,
		labels:    opts.Labels,
		now:       time.Now,
		store:     messages.New(),
	}
}

// OnChange registers fn to receive a snapshot after every state change.
// fn runs on whichever goroutine caused the change.
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	var agent *model.AgentInfo
	if c.agent != nil {
		a := *c.agent
		agent = &a
	}
	return Snapshot{
		Started:   c.started,
		Loading:   c.loading,
		Error:     c.errMsg,
		SessionID: c.sessionID,
		Status:    c.status,
		Agent:     agent,
		Messages:  c.store.All(),
		Connected: c.connected,
		Rating:    c.flow.Snapshot(),
		CanSend:   c.canSendLocked(),
	}
}

// Start resumes a persisted session, if there is one, and loads its state.
// A resumed session whose fetch fails is cleared and the error returned.
func (c *Controller) Start(ctx context.Context) error {
	s, err := c.sessions.Resume(ctx)
	if err != nil {
		return err
	}
	if s == nil {
		c.notify()
		return nil
	}

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.started = true
	c.loading = true
	c.errMsg = ""
	c.sessionID = s.ID
	c.status = s.Status
	c.store.Clear()
	c.flow.Reset()
	c.mu.Unlock()
	c.notify()

	log.Info().Str("component", "conversation").Str("session_id", s.ID).Msg("resuming session")

	c.openChannel(ctx, gen, s)
	return c.refresh(ctx, gen, s.ID)
}

// SubmitIntake creates a session, seeds the greeting and opens the channel.
func (c *Controller) SubmitIntake(ctx context.Context, intake model.Intake) error {
	c.mu.Lock()
	if c.sessionID != "" || c.loading {
		c.mu.Unlock()
		return errors.New(errors.ErrCodeConflict, "A conversation is already in progress")
	}
	c.loading = true
	c.errMsg = ""
	gen := c.gen
	c.mu.Unlock()
	c.notify()

	res, err := c.sessions.Create(ctx, intake)

	c.mu.Lock()
	if c.gen != gen {
		// superseded while creating; the result was never adopted
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.loading = false
		c.errMsg = errors.UserMessage(err, "Failed to start chat session")
		c.mu.Unlock()
		c.notify()
		return err
	}

	current := c.sessions.Adopt(ctx, res.Session)
	c.gen++
	gen = c.gen
	now := c.now()
	c.started = true
	c.loading = false
	c.sessionID = current.ID
	c.status = current.Status
	agent := res.Agent
	c.agent = &agent
	c.flow.Reset()

	seed := []model.Message{{
		ID:        fmt.Sprintf("%s%d", model.WelcomeIDPrefix, now.UnixMilli()),
		Text:      c.welcomeText(strings.TrimSpace(intake.Name), agent.Name),
		Sender:    model.SenderAgent,
		Timestamp: now,
		Status:    model.MessageStatusDelivered,
	}}
	if first := strings.TrimSpace(intake.Message); first != "" {
		seed = append(seed, model.Message{
			ID:        fmt.Sprintf("%s%d", model.InitialIDPrefix, now.UnixMilli()),
			Text:      first,
			Sender:    model.SenderUser,
			Timestamp: now,
			Status:    model.MessageStatusSent,
		})
	}
	c.store.SetAll(seed)
	c.mu.Unlock()
	c.notify()

	c.openChannel(ctx, gen, current)
	return c.refresh(ctx, gen, current.ID)
}

// Refresh re-fetches the current session and merges its history.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	gen, id := c.gen, c.sessionID
	c.mu.Unlock()
	if id == "" {
		return errors.NoActiveSession()
	}
	return c.refresh(ctx, gen, id)
}

// Send inserts an optimistic message and confirms it with the server. A
// failed send keeps the message with status failed; see Resend.
func (c *Controller) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.MissingRequired("message")
	}

	c.mu.Lock()
	if err := c.sendableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.pendingSeq++
	tempID := fmt.Sprintf("%s%d", model.PendingIDPrefix, c.pendingSeq)
	c.store.Upsert(model.Message{
		ID:        tempID,
		Text:      text,
		Sender:    model.SenderUser,
		Timestamp: c.now(),
		Status:    model.MessageStatusSending,
	})
	gen := c.gen
	c.mu.Unlock()
	c.notify()

	return c.deliver(ctx, gen, tempID, text)
}

// Resend retries a message whose send failed.
func (c *Controller) Resend(ctx context.Context, messageID string) error {
	c.mu.Lock()
	msg, ok := c.store.Get(messageID)
	if !ok {
		c.mu.Unlock()
		return errors.NotFound("Message")
	}
	if msg.Status != model.MessageStatusFailed {
		c.mu.Unlock()
		return errors.InvalidInput("message", "only failed messages can be resent")
	}
	if err := c.sendableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	msg.Status = model.MessageStatusSending
	c.store.Upsert(msg)
	gen := c.gen
	c.mu.Unlock()
	c.notify()

	return c.deliver(ctx, gen, msg.ID, msg.Text)
}

func (c *Controller) RequestEnd() {
	c.mu.Lock()
	c.flow.RequestEnd(c.status)
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) CancelEnd() {
	c.mu.Lock()
	c.flow.Dismiss(c.status)
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) SetRatingDraft(value int, feedback string) {
	c.flow.SetDraft(value, feedback)
	c.notify()
}

func (c *Controller) SubmitRating(ctx context.Context, value int, feedback string) error {
	c.mu.Lock()
	if c.sessionID == "" {
		c.mu.Unlock()
		return errors.NoActiveSession()
	}
	gen := c.gen
	c.mu.Unlock()

	_, status, err := c.flow.Submit(ctx, value, feedback)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return nil
	}
	if err == nil && status != model.SessionStatusUnknown {
		c.status = status
	}
	c.mu.Unlock()
	c.notify()
	return err
}

// NewConversation tears everything down and clears the persisted session.
func (c *Controller) NewConversation(ctx context.Context) error {
	c.mu.Lock()
	ch := c.resetLocked("")
	err := c.sessions.Clear(ctx)
	c.mu.Unlock()
	c.finishReset(ch)
	return err
}

// Close releases the channel without clearing the persisted session, so the
// conversation can be resumed later.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.gen++
	ch := c.channel
	c.channel = nil
	c.connected = false
	c.mu.Unlock()
	if ch != nil {
		return ch.Close()
	}
	return nil
}

func (c *Controller) refresh(ctx context.Context, gen uint64, sessionID string) error {
	chat, err := c.sessions.Fetch(ctx, sessionID)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		ch := c.resetLocked(errors.UserMessage(err, errors.SessionExpired(nil).Message))
		clearErr := c.sessions.Clear(ctx)
		c.mu.Unlock()
		log.Warn().Err(err).Str("component", "conversation").Str("session_id", sessionID).Msg("session fetch failed, resetting")
		if clearErr != nil {
			log.Warn().Err(clearErr).Msg("failed to clear expired session")
		}
		c.finishReset(ch)
		return err
	}

	if chat.Status != model.SessionStatusUnknown {
		c.status = chat.Status
	}
	if chat.AssignedUser != nil && chat.AssignedUser.Name != "" {
		c.agent = &model.AgentInfo{Name: chat.AssignedUser.Name, Status: model.AgentStatusOnline}
	}
	now := c.now()
	history := make([]model.Message, 0, len(chat.Messages))
	for _, m := range chat.Messages {
		history = append(history, m.ToMessage(now))
	}
	c.store.MergeHistory(history)
	c.flow.Sync(c.status, chat.RatingSummary())
	c.loading = false
	c.errMsg = ""
	c.mu.Unlock()
	c.notify()
	return nil
}

func (c *Controller) deliver(ctx context.Context, gen uint64, tempID, text string) error {
	confirmed, err := c.sessions.Send(ctx, text)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		if msg, ok := c.store.Get(tempID); ok {
			msg.Status = model.MessageStatusFailed
			c.store.Upsert(msg)
		}
		c.mu.Unlock()
		log.Warn().Err(err).Str("component", "conversation").Str("message_id", tempID).Msg("send failed")
		c.notify()
		return err
	}
	c.store.ReplaceTemp(tempID, *confirmed)
	c.mu.Unlock()
	c.notify()
	return nil
}

func (c *Controller) openChannel(ctx context.Context, gen uint64, s *model.Session) {
	ch := realtime.NewChannel(c.socketURL, c.dialer, realtime.Callbacks{
		OnMessage: func(sessionID string, msg model.Message) {
			c.onPush(gen, sessionID, msg)
		},
		OnConnectivity: func(connected bool) {
			c.onConnectivity(gen, connected)
		},
	})

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	old := c.channel
	c.channel = ch
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	if err := ch.Open(ctx, s.ID, s.Token); err != nil {
		log.Warn().Err(err).Str("component", "conversation").Str("session_id", s.ID).Msg("realtime channel unavailable")
	}
}

func (c *Controller) onPush(gen uint64, sessionID string, msg model.Message) {
	c.mu.Lock()
	if c.gen != gen || c.sessionID != sessionID {
		c.mu.Unlock()
		return
	}
	c.store.Upsert(msg)
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) onConnectivity(gen uint64, connected bool) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.connected = connected
	c.mu.Unlock()
	c.notify()
}

// resetLocked clears in-memory state and returns the channel to close.
func (c *Controller) resetLocked(errMsg string) *realtime.Channel {
	c.gen++
	ch := c.channel
	c.channel = nil
	c.started = false
	c.loading = false
	c.errMsg = errMsg
	c.sessionID = ""
	c.status = model.SessionStatusUnknown
	c.agent = nil
	c.connected = false
	c.store.Clear()
	c.flow.Reset()
	return ch
}

func (c *Controller) finishReset(ch *realtime.Channel) {
	if ch != nil {
		ch.Close()
	}
	c.notify()
}

func (c *Controller) canSendLocked() bool {
	return c.sendableLocked() == nil
}

func (c *Controller) sendableLocked() error {
	if c.sessionID == "" {
		return errors.NoActiveSession()
	}
	if c.status != model.SessionStatusActive || !c.flow.AllowsSending() {
		return errors.SendingDisabled()
	}
	return nil
}

func (c *Controller) welcomeText(name, agent string) string {
	if c.labels.WelcomeMessage != "" {
		return c.labels.WelcomeMessage
	}
	return fmt.Sprintf("Hello %s! I'm %s. How can I help you today?", name, agent)
}

func (c *Controller) notify() {
	c.mu.Lock()
	listeners := append([]func(Snapshot){}, c.listeners...)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}
