// Package form implements the submit lifecycle shared by every form on the
// site: a draft of string fields, local validation, one in-flight backend
// call at a time, an outcome, and an optional timed revert to the idle view.
package form

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"hear/internal/adapters/backend"
)

// Sentinel errors.
var (
	ErrInFlight = errors.New("a submission is already in progress")
	ErrDisposed = errors.New("form has been disposed")
)

// ValidationError is a local rejection; the backend is never called.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Status is the tri-state submission outcome plus the idle state.
type Status int

const (
	StatusIdle Status = iota
	StatusPending
	StatusSucceeded
	StatusFailed
)

var statusNames = [...]string{"idle", "pending", "succeeded", "failed"}

// String returns the lowercase status name.
func (s Status) String() string { return statusNames[s] }

// Outcome is the result of the latest submission attempt.
type Outcome struct {
	Status Status
	Record backend.Row // set when Succeeded
	Reason string      // user-facing, set when Failed
}

// ClearPolicy says when the draft is emptied after a successful submit.
type ClearPolicy int

const (
	ClearNever ClearPolicy = iota
	ClearOnSuccess
	ClearOnRevert
)

// Draft holds the form's field values.
type Draft map[string]string

// Get returns the trimmed value of field.
func (d Draft) Get(field string) string { return strings.TrimSpace(d[field]) }

// Check inspects a draft and returns a *ValidationError, or nil.
type Check func(ctx context.Context, d Draft) error

// Spec configures one kind of form.
type Spec struct {
	Name            string
	Fields          []string
	Required        []string
	RequiredMessage string
	Checks          []Check
	Submit          func(ctx context.Context, d Draft) (backend.Row, error)
	// Describe maps a backend failure to the message shown to the visitor.
	Describe       func(err error) string
	SuccessMessage string
	// RevertAfter is how long the success view shows; zero keeps it.
	RevertAfter time.Duration
	Clear       ClearPolicy
	// OnSuccess runs after a successful submit, outside the controller's lock.
	OnSuccess func(ctx context.Context, d Draft, record backend.Row)
}

// View is a snapshot for rendering.
type View struct {
	Values      Draft
	Outcome     Outcome
	Error       string
	ShowSuccess bool
	Message     string
}

// Pending reports whether a submission is in flight.
func (v View) Pending() bool { return v.Outcome.Status == StatusPending }

// Controller runs one form instance.
// INVARIANT: at most one backend call is in flight per Controller
type Controller struct {
	spec  Spec
	clock Clock

	mu          sync.Mutex
	draft       Draft
	outcome     Outcome
	errMsg      string
	showSuccess bool
	revert      Timer
	generation  uint64
	disposed    bool
}

// NewController returns an idle controller with every field empty.
// PRE: spec.Submit and spec.Describe are non-nil
func NewController(spec Spec, clock Clock) *Controller {
	if clock == nil {
		clock = SystemClock{}
	}
	c := &Controller{spec: spec, clock: clock}
	c.draft = c.emptyDraft()
	return c
}

// Name returns the spec's name.
func (c *Controller) Name() string { return c.spec.Name }

func (c *Controller) emptyDraft() Draft {
	d := make(Draft, len(c.spec.Fields))
	for _, f := range c.spec.Fields {
		d[f] = ""
	}
	return d
}

func (c *Controller) known(field string) bool {
	for _, f := range c.spec.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// UpdateField sets one draft value. Unknown fields are ignored.
func (c *Controller) UpdateField(field, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed || !c.known(field) {
		return
	}
	c.draft[field] = value
}

// Load replaces the draft with values; fields not in values become empty.
func (c *Controller) Load(values map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	d := c.emptyDraft()
	for k, v := range values {
		if c.known(k) {
			d[k] = v
		}
	}
	c.draft = d
}

// Submit validates the draft and, if it passes, sends it to the backend.
// PRE: none
// POST: returns ErrInFlight without calling the backend while a submission is pending;
// a *ValidationError leaves the outcome Idle with the message shown;
// a backend failure leaves the draft intact and the outcome Failed
func (c *Controller) Submit(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return Outcome{}, ErrDisposed
	}
	if c.outcome.Status == StatusPending {
		c.mu.Unlock()
		return c.outcome, ErrInFlight
	}

	if verr := c.validate(ctx); verr != nil {
		c.stopRevert()
		c.outcome = Outcome{Status: StatusIdle}
		c.showSuccess = false
		c.errMsg = verr.Message
		c.mu.Unlock()
		return Outcome{Status: StatusIdle}, verr
	}

	c.stopRevert()
	c.generation++
	gen := c.generation
	c.outcome = Outcome{Status: StatusPending}
	c.errMsg = ""
	c.showSuccess = false
	snapshot := c.copyDraft()
	c.mu.Unlock()

	record, err := c.spec.Submit(ctx, snapshot)

	c.mu.Lock()
	if c.disposed || gen != c.generation {
		// disposed mid-flight: the result has nowhere to go
		c.mu.Unlock()
		return Outcome{}, ErrDisposed
	}
	if err != nil {
		reason := c.spec.Describe(err)
		c.outcome = Outcome{Status: StatusFailed, Reason: reason}
		c.errMsg = reason
		out := c.outcome
		c.mu.Unlock()
		slog.Warn("form_submit_failed", "form", c.spec.Name, "category", backend.Classify(err).String(), "error", err.Error())
		return out, err
	}

	c.outcome = Outcome{Status: StatusSucceeded, Record: record}
	c.showSuccess = true
	if c.spec.Clear == ClearOnSuccess {
		c.draft = c.emptyDraft()
	}
	if c.spec.RevertAfter > 0 {
		c.revert = c.clock.AfterFunc(c.spec.RevertAfter, func() { c.revertToIdle(gen) })
	}
	out := c.outcome
	c.mu.Unlock()

	slog.Info("form_submitted", "form", c.spec.Name)
	if c.spec.OnSuccess != nil {
		c.spec.OnSuccess(ctx, snapshot, record)
	}
	return out, nil
}

// validate runs the required check then the format checks in order.
// PRE: c.mu is held
func (c *Controller) validate(ctx context.Context) *ValidationError {
	for _, f := range c.spec.Required {
		if c.draft.Get(f) == "" {
			return &ValidationError{Field: f, Message: c.spec.RequiredMessage}
		}
	}
	d := c.copyDraft()
	for _, check := range c.spec.Checks {
		if err := check(ctx, d); err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				return verr
			}
			return &ValidationError{Message: err.Error()}
		}
	}
	return nil
}

// revertToIdle is the scheduled return to the idle view.
func (c *Controller) revertToIdle(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed || gen != c.generation || c.outcome.Status != StatusSucceeded {
		return
	}
	c.outcome = Outcome{Status: StatusIdle}
	c.showSuccess = false
	c.revert = nil
	if c.spec.Clear == ClearOnRevert {
		c.draft = c.emptyDraft()
	}
}

// PRE: c.mu is held
func (c *Controller) stopRevert() {
	if c.revert != nil {
		c.revert.Stop()
		c.revert = nil
	}
}

// PRE: c.mu is held
func (c *Controller) copyDraft() Draft {
	d := make(Draft, len(c.draft))
	for k, v := range c.draft {
		d[k] = v
	}
	return d
}

// View returns a snapshot of the form for rendering.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{
		Values:      c.copyDraft(),
		Outcome:     c.outcome,
		Error:       c.errMsg,
		ShowSuccess: c.showSuccess,
	}
	if c.showSuccess {
		v.Message = c.spec.SuccessMessage
	}
	return v
}

// Dispose cancels any scheduled revert; results of an in-flight submission
// are discarded.
// POST: no later call mutates the controller
func (c *Controller) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopRevert()
	c.disposed = true
}
