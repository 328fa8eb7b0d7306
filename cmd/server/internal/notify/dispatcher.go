package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/puzzlehunt/huntserver/cmd/server/internal/taskrunner"
	"github.com/puzzlehunt/huntserver/internal/logger"
)

const name = "github.com/puzzlehunt/huntserver/cmd/server/internal/notify"

var (
	tracer = otel.Tracer(name)
	meter  = otel.Meter(name)
)

const (
	taskNotify = "notify"
	taskMail   = "mail"
	taskAlert  = "alert"
	taskStaff  = "staff"
)

// Staff pages get one of these whenever an open hint changes or leaves NO_RESPONSE.
type HintUpdate struct {
	HintID     uuid.UUID `json:"hint_id"`
	Cleared    bool      `json:"cleared"`
	TeamName   string    `json:"team_name,omitempty"`
	PuzzleName string    `json:"puzzle_name,omitempty"`
	Status     string    `json:"status,omitempty"`
	Claimer    string    `json:"claimer,omitempty"`
	Message    string    `json:"message,omitempty"`
}

// Dispatcher runs every delivery on the task runner so callers never wait on or see transport errors.
type Dispatcher struct {
	runner    *taskrunner.Client
	publisher Publisher
	mailer    Mailer
	alerter   Alerter
	failures  metric.Int64Counter
	sent      metric.Int64Counter
}

var _ Sink = (*Dispatcher)(nil)

func NewDispatcher(
	runner *taskrunner.Client,
	publisher Publisher,
	mailer Mailer,
	alerter Alerter,
) *Dispatcher {
	failures, err := meter.Int64Counter(
		"huntserver.notify.failures",
		metric.WithDescription("notification deliveries that failed"),
	)
	if err != nil {
		logger.Logger.Error("failed to create notify failure counter", "error", err)
	}
	sent, err := meter.Int64Counter(
		"huntserver.notify.sent",
		metric.WithDescription("notification deliveries attempted"),
	)
	if err != nil {
		logger.Logger.Error("failed to create notify sent counter", "error", err)
	}

	d := &Dispatcher{
		runner:    runner,
		publisher: publisher,
		mailer:    mailer,
		alerter:   alerter,
		failures:  failures,
		sent:      sent,
	}
	runner.OnError(d.reportFailure)
	return d
}

func (d *Dispatcher) count(ctx context.Context, c metric.Int64Counter, task string) {
	if c == nil {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(attribute.String("task", task)))
}

func (d *Dispatcher) reportFailure(ctx context.Context, task string, err error) {
	logger.Logger.ErrorContext(ctx, "notification delivery failed", "task", task, "error", err)
	d.count(ctx, d.failures, task)

	// a failing alert webhook would only report itself
	if task == taskAlert {
		return
	}
	if aerr := d.alerter.Alert(ctx, ChannelGeneral, fmt.Sprintf("Notification failure (%s): %s", task, err)); aerr != nil {
		logger.Logger.ErrorContext(ctx, "failed to alert on notification failure", "error", aerr)
	}
}

func (d *Dispatcher) publish(ctx context.Context, task string, group string, payload any) {
	d.count(ctx, d.sent, task)
	d.runner.Run(ctx, task, func(ctx context.Context) error {
		_, span := tracer.Start(ctx, "Dispatcher.publish")
		defer span.End()

		data, err := json.Marshal(payload)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to marshal payload")
			return fmt.Errorf("failed to marshal %s payload: %w", task, err)
		}
		d.publisher.Publish(group, data)

		span.SetStatus(codes.Ok, "published")
		return nil
	})
}

func (d *Dispatcher) Notify(ctx context.Context, ev Event) {
	d.publish(ctx, taskNotify, TeamGroup(ev.TeamID), ev)
}

// StaffHint pushes a hint change to every staff connection.
func (d *Dispatcher) StaffHint(ctx context.Context, update HintUpdate) {
	d.publish(ctx, taskStaff, StaffGroup, update)
}

// Mail is a no-op for an empty recipient list.
func (d *Dispatcher) Mail(ctx context.Context, m Mail) {
	if len(m.Recipients) == 0 {
		return
	}
	d.count(ctx, d.sent, taskMail)
	d.runner.Run(ctx, taskMail, func(ctx context.Context) error {
		ctx, span := tracer.Start(ctx, "Dispatcher.Mail")
		defer span.End()

		span.SetAttributes(
			attribute.String("mail.template", m.TemplateID),
			attribute.Int("mail.recipients", len(m.Recipients)),
		)

		if err := d.mailer.Send(ctx, m); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to send mail")
			return fmt.Errorf("failed to send %q mail: %w", m.TemplateID, err)
		}

		span.SetStatus(codes.Ok, "sent mail")
		return nil
	})
}

func (d *Dispatcher) Alert(ctx context.Context, channel Channel, message string) {
	d.count(ctx, d.sent, taskAlert)
	d.runner.Run(ctx, taskAlert, func(ctx context.Context) error {
		ctx, span := tracer.Start(ctx, "Dispatcher.Alert")
		defer span.End()

		span.SetAttributes(attribute.String("alert.channel", string(channel)))

		if err := d.alerter.Alert(ctx, channel, message); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to alert")
			return fmt.Errorf("failed to alert %s: %w", channel, err)
		}

		span.SetStatus(codes.Ok, "alerted")
		return nil
	})
}
