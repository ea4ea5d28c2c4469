package main

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/htetarkarhlaing/wecare-chat-widget/internal/config"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/conversation"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/errors"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/model"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/rating"
)

const helpText = `Commands:
  /end               end the conversation and rate it
  /cancel            close the rating form and keep chatting
  /rate N [text]     submit a rating from 1 to 5 with optional feedback
  /resend ID         retry a message that failed to send
  /refresh           reload the conversation
  /new               start a new conversation
  /quit              leave; the conversation resumes next time
Anything else is sent as a message.`

// terminal renders controller snapshots as a line-oriented chat and turns
// input lines into controller calls.
type terminal struct {
	ctrl   *conversation.Controller
	out    io.Writer
	labels config.Labels
	lines  <-chan string

	mu          sync.Mutex
	seen        map[string]model.MessageStatus
	pendingText map[string]int
	status      model.SessionStatus
	ratingState rating.State
	ratingError string
	connected   *bool
	lastError   string
}

func newTerminal(ctrl *conversation.Controller, in io.Reader, out io.Writer, labels config.Labels) *terminal {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	t := &terminal{
		ctrl:        ctrl,
		out:         out,
		labels:      labels,
		lines:       lines,
		seen:        make(map[string]model.MessageStatus),
		pendingText: make(map[string]int),
		ratingState: rating.StateHidden,
	}
	ctrl.OnChange(t.render)
	return t
}

func (t *terminal) Run(ctx context.Context) error {
	if err := t.ctrl.Start(ctx); err != nil {
		t.report(err)
	}

	if !t.ctrl.Snapshot().Started {
		if err := t.intake(ctx); err != nil {
			return quietExit(err)
		}
	}
	t.printf("%s (/help for commands)\n", firstNonEmpty(t.labels.Placeholder, config.DefaultPlaceholder))

	for {
		line, err := t.readLine(ctx)
		if err != nil {
			return quietExit(err)
		}
		quit, err := t.handle(ctx, strings.TrimSpace(line))
		if err != nil {
			t.report(err)
		}
		if quit {
			return nil
		}
	}
}

func (t *terminal) intake(ctx context.Context) error {
	for {
		var intake model.Intake
		var err error
		if intake.Name, err = t.ask(ctx, "Name"); err != nil {
			return err
		}
		if intake.Email, err = t.ask(ctx, "Email"); err != nil {
			return err
		}
		if intake.Phone, err = t.ask(ctx, "Phone (optional)"); err != nil {
			return err
		}
		if intake.Message, err = t.ask(ctx, "How can we help? (optional)"); err != nil {
			return err
		}

		if err := t.ctrl.SubmitIntake(ctx, intake); err != nil {
			t.report(err)
			if t.ctrl.Snapshot().Started {
				return nil
			}
			continue
		}
		return nil
	}
}

func (t *terminal) handle(ctx context.Context, line string) (bool, error) {
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, t.ctrl.Send(ctx, line)
	}

	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "/quit":
		return true, nil
	case "/help":
		t.printf("%s\n", helpText)
	case "/refresh":
		return false, t.ctrl.Refresh(ctx)
	case "/end":
		t.ctrl.RequestEnd()
	case "/cancel":
		t.ctrl.CancelEnd()
	case "/rate":
		value, feedback, err := parseRating(rest)
		if err != nil {
			return false, err
		}
		t.ctrl.SetRatingDraft(value, feedback)
		return false, t.ctrl.SubmitRating(ctx, value, feedback)
	case "/resend":
		if rest == "" {
			return false, errors.MissingRequired("message id")
		}
		return false, t.ctrl.Resend(ctx, rest)
	case "/new":
		if err := t.ctrl.NewConversation(ctx); err != nil {
			return false, err
		}
		t.forget()
		return false, t.intake(ctx)
	default:
		t.printf("Unknown command %s. /help lists commands.\n", cmd)
	}
	return false, nil
}

func parseRating(args string) (int, string, error) {
	valueText, feedback, _ := strings.Cut(args, " ")
	value, err := strconv.Atoi(valueText)
	if err != nil {
		return 0, "", errors.InvalidInput("rating", "must be a number from 1 to 5")
	}
	return value, strings.TrimSpace(feedback), nil
}

func (t *terminal) render(snap conversation.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, msg := range snap.Messages {
		t.renderMessage(snap, msg)
	}

	if snap.Error != "" && snap.Error != t.lastError {
		fmt.Fprintf(t.out, "! %s\n", snap.Error)
	}
	t.lastError = snap.Error

	if t.status != "" && t.status != model.SessionStatusUnknown &&
		snap.Status != t.status && snap.Status != "" && snap.Status != model.SessionStatusUnknown {
		fmt.Fprintf(t.out, "* Conversation is now %s\n", strings.ToLower(string(snap.Status)))
	}
	t.status = snap.Status

	if t.connected != nil && *t.connected != snap.Connected {
		if snap.Connected {
			fmt.Fprintln(t.out, "* Connected")
		} else {
			fmt.Fprintln(t.out, "* Connection lost, reconnecting...")
		}
	}
	if snap.SessionID != "" {
		connected := snap.Connected
		t.connected = &connected
	}

	t.renderRating(snap.Rating)
}

func (t *terminal) renderMessage(snap conversation.Snapshot, msg model.Message) {
	prev, printed := t.seen[msg.ID]
	t.seen[msg.ID] = msg.Status

	if printed {
		if msg.Status == model.MessageStatusFailed && prev != model.MessageStatusFailed {
			fmt.Fprintf(t.out, "! Not delivered: %q (/resend %s)\n", msg.Text, msg.ID)
		}
		return
	}

	if msg.Sender == model.SenderUser {
		if msg.IsPending() || strings.HasPrefix(msg.ID, model.InitialIDPrefix) {
			// the user typed it; only failures are worth echoing
			t.pendingText[msg.Text]++
			if msg.Status == model.MessageStatusFailed {
				fmt.Fprintf(t.out, "! Not delivered: %q (/resend %s)\n", msg.Text, msg.ID)
			}
			return
		}
		if t.pendingText[msg.Text] > 0 {
			t.pendingText[msg.Text]--
			return
		}
		fmt.Fprintf(t.out, "[%s] You: %s\n", msg.Timestamp.Local().Format("15:04"), msg.Text)
		return
	}

	name := "Support"
	if snap.Agent != nil && snap.Agent.Name != "" {
		name = snap.Agent.Name
	}
	fmt.Fprintf(t.out, "[%s] %s: %s\n", msg.Timestamp.Local().Format("15:04"), name, msg.Text)
}

func (t *terminal) renderRating(r rating.Snapshot) {
	if r.State != t.ratingState {
		switch r.State {
		case rating.StateVisible:
			if t.ratingState != rating.StateSubmitting {
				fmt.Fprintln(t.out, "* How was your conversation? /rate N [feedback] with N from 1 to 5, or /cancel")
			}
		case rating.StateSubmitting:
			fmt.Fprintln(t.out, "* Submitting rating...")
		case rating.StateSubmitted:
			stars := 0
			if r.Summary != nil {
				stars = r.Summary.Rating
			}
			fmt.Fprintf(t.out, "* Thanks for your feedback (%s). This conversation has ended; /new starts another.\n",
				strings.Repeat("*", stars))
		}
		t.ratingState = r.State
	}

	if r.Error != "" && r.Error != t.ratingError {
		fmt.Fprintf(t.out, "! %s\n", r.Error)
	}
	t.ratingError = r.Error
}

// forget drops render state after a reset so the next conversation starts
// from a clean screen.
func (t *terminal) forget() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen = make(map[string]model.MessageStatus)
	t.pendingText = make(map[string]int)
	t.status = ""
	t.ratingState = rating.StateHidden
	t.ratingError = ""
	t.connected = nil
	t.lastError = ""
}

// report prints a command error unless the snapshot already shows it.
func (t *terminal) report(err error) {
	msg := errors.UserMessage(err, "Something went wrong. Please try again.")
	snap := t.ctrl.Snapshot()
	if msg == snap.Error || msg == snap.Rating.Error {
		return
	}
	if errors.HasCode(err, errors.ErrCodeSendFailed) {
		return
	}
	t.printf("! %s\n", msg)
}

func (t *terminal) ask(ctx context.Context, label string) (string, error) {
	t.printf("%s: ", label)
	line, err := t.readLine(ctx)
	return strings.TrimSpace(line), err
}

func (t *terminal) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-t.lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	}
}

func (t *terminal) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

func quietExit(err error) error {
	if stderrors.Is(err, io.EOF) || stderrors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
