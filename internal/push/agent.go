package push

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/printstore/internal/obs"
)

// State is the lifecycle position of one notification instance.
type State int

const (
	Idle State = iota
	PushReceived
	StateDecoded
	Displayed
	Dismissed
	Activated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case PushReceived:
		return "push_received"
	case StateDecoded:
		return "decoded"
	case Displayed:
		return "displayed"
	case Dismissed:
		return "dismissed"
	case Activated:
		return "activated"
	default:
		return "unknown"
	}
}

var transitions = map[State][]State{
	Idle:         {PushReceived},
	PushReceived: {StateDecoded},
	StateDecoded: {Displayed},
	Displayed:    {Dismissed, Activated},
}

// ErrInvalidTransition is returned for a transition the lifecycle forbids.
var ErrInvalidTransition = errors.New("push: invalid transition")

// Instance is one notification's walk through the lifecycle.
type Instance struct {
	ID           string       `json:"id"`
	State        State        `json:"-"`
	History      []State      `json:"-"`
	Tier         Tier         `json:"-"`
	Notification Notification `json:"notification"`
}

func newInstance(id string, from State) *Instance {
	return &Instance{ID: id, State: from, History: []State{from}}
}

func (i *Instance) advance(to State) error {
	for _, allowed := range transitions[i.State] {
		if allowed == to {
			i.State = to
			i.History = append(i.History, to)
			obs.ObserveNotificationEvent(to.String())
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, i.State, to)
}

// PushEvent is an arriving push message.
type PushEvent struct {
	Data []byte
}

// ClickEvent is a user interaction with a displayed notification. Action is
// the affordance used, if any; it does not change the outcome.
type ClickEvent struct {
	Notification Notification
	Action       string
}

// CloseEvent is a dismissal without activation.
type CloseEvent struct {
	Notification Notification
}

// Activation reports how an activation navigated.
type Activation struct {
	NotificationID string `json:"notification_id"`
	Destination    string `json:"destination"`
	WindowID       string `json:"window_id,omitempty"`
	Focused        bool   `json:"focused"`
	Opened         bool   `json:"opened"`
	Error          string `json:"error,omitempty"`
}

// Agent is the notification delivery state machine. It keeps no state across
// invocations; displayed notifications live in the Tray.
type Agent struct {
	tray        Tray
	windows     Windows
	destination string
	log         zerolog.Logger
	now         func() time.Time
	newID       func() string
	tracer      trace.Tracer
}

// AgentConfig wires an Agent.
type AgentConfig struct {
	Tray    Tray
	Windows Windows
	// Origin is the storefront origin; activations navigate to its admin route.
	Origin string
	Logger zerolog.Logger
	Now    func() time.Time
	NewID  func() string
}

// NewAgent builds an Agent.
func NewAgent(cfg AgentConfig) (*Agent, error) {
	if cfg.Tray == nil || cfg.Windows == nil {
		return nil, errors.New("push: tray and windows are required")
	}
	origin := strings.TrimRight(strings.TrimSpace(cfg.Origin), "/")
	if origin == "" {
		return nil, errors.New("push: origin is required")
	}
	a := &Agent{
		tray:        cfg.Tray,
		windows:     cfg.Windows,
		destination: origin + ActivationRoute,
		log:         cfg.Logger.With().Str("component", "push-agent").Logger(),
		now:         cfg.Now,
		newID:       cfg.NewID,
		tracer:      otel.Tracer("push-agent"),
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.newID == nil {
		a.newID = uuid.NewString
	}
	return a, nil
}

// Destination is where every activation navigates.
func (a *Agent) Destination() string {
	return a.destination
}

// HandlePush decodes and displays a push message. Decoding never fails; the
// only error is the tray refusing the notification.
func (a *Agent) HandlePush(ctx context.Context, ev PushEvent) (*Instance, error) {
	inst := newInstance(a.newID(), Idle)
	ctx, span := a.tracer.Start(ctx, "push.handle_push", trace.WithAttributes(attribute.String("notification.id", inst.ID)))
	defer span.End()

	if err := inst.advance(PushReceived); err != nil {
		return inst, err
	}
	decoded := Decode(ev.Data)
	inst.Tier = decoded.Tier
	obs.ObservePushDecoded(decoded.Tier.String())
	if err := inst.advance(StateDecoded); err != nil {
		return inst, err
	}
	span.SetAttributes(attribute.String("push.tier", decoded.Tier.String()))

	n := Materialize(decoded, inst.ID, a.now())
	if err := a.tray.Show(ctx, n); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.log.Error().Err(err).Str("notification_id", inst.ID).Msg("show notification failed")
		return inst, fmt.Errorf("push: show notification: %w", err)
	}
	inst.Notification = n
	if err := inst.advance(Displayed); err != nil {
		return inst, err
	}
	a.log.Info().
		Str("notification_id", n.ID).
		Str("tier", n.Tier).
		Str("title", n.Title).
		Str("job_id", n.Data.JobID).
		Msg("notification displayed")
	return inst, nil
}

// HandleClick closes the notification and navigates to the admin route,
// ignoring the URL in the notification's data. An existing window already at
// the destination is focused; otherwise a new one is opened. A failure to
// open is logged and reported in the Activation, never returned.
func (a *Agent) HandleClick(ctx context.Context, ev ClickEvent) (Activation, error) {
	n := ev.Notification
	inst := newInstance(n.ID, Displayed)
	inst.Notification = n
	ctx, span := a.tracer.Start(ctx, "push.handle_click", trace.WithAttributes(
		attribute.String("notification.id", n.ID),
		attribute.String("notification.action", ev.Action),
	))
	defer span.End()

	act := Activation{NotificationID: n.ID, Destination: a.destination}
	if err := a.tray.Close(ctx, n.ID); err != nil {
		a.log.Warn().Err(err).Str("notification_id", n.ID).Msg("close notification failed")
	}
	if err := inst.advance(Activated); err != nil {
		return act, err
	}

	if w, ok := a.existingWindow(ctx); ok {
		focused, err := a.windows.Focus(ctx, w.ID)
		if err == nil {
			act.WindowID = focused.ID
			act.Focused = true
			a.log.Info().Str("notification_id", n.ID).Str("window_id", focused.ID).Msg("focused admin window")
			return act, nil
		}
		a.log.Warn().Err(err).Str("window_id", w.ID).Msg("focus window failed, opening a new one")
	}

	opened, err := a.windows.Open(ctx, a.destination)
	if err != nil {
		span.RecordError(err)
		a.log.Error().Err(err).Str("notification_id", n.ID).Str("url", a.destination).Msg("failed to open window")
		act.Error = err.Error()
		return act, nil
	}
	act.WindowID = opened.ID
	act.Focused = opened.Focused
	act.Opened = true
	a.log.Info().Str("notification_id", n.ID).Str("window_id", opened.ID).Msg("opened admin window")
	return act, nil
}

// HandleClose records a dismissal. Nothing else happens.
func (a *Agent) HandleClose(ctx context.Context, ev CloseEvent) error {
	n := ev.Notification
	inst := newInstance(n.ID, Displayed)
	if err := a.tray.Close(ctx, n.ID); err != nil {
		a.log.Warn().Err(err).Str("notification_id", n.ID).Msg("close notification failed")
	}
	if err := inst.advance(Dismissed); err != nil {
		return err
	}
	a.log.Info().Str("notification_id", n.ID).Msg("notification dismissed")
	return nil
}

func (a *Agent) existingWindow(ctx context.Context) (Window, bool) {
	windows, err := a.windows.List(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("list windows failed")
		return Window{}, false
	}
	for _, w := range windows {
		if w.URL == a.destination {
			return w, true
		}
	}
	return Window{}, false
}
