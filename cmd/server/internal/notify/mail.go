package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/puzzlehunt/huntserver/internal/config"
	"github.com/puzzlehunt/huntserver/internal/logger"
)

const TemplateHintAnswered = "hint_answered"

//go:embed templates/*
var templateFS embed.FS

var (
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/*.txt"))
	htmlTemplates = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html"))
)

// Render returns the text and html bodies of a mail template.
func Render(templateID string, data map[string]any) (string, string, error) {
	var text, html bytes.Buffer
	if err := textTemplates.ExecuteTemplate(&text, templateID+".txt", data); err != nil {
		return "", "", fmt.Errorf("failed to render text template %s: %w", templateID, err)
	}
	if err := htmlTemplates.ExecuteTemplate(&html, templateID+".html", data); err != nil {
		return "", "", fmt.Errorf("failed to render html template %s: %w", templateID, err)
	}
	return text.String(), html.String(), nil
}

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type SESMailer struct {
	client        sesAPI
	from          string
	replyTo       string
	subjectPrefix string
	backoff       func() retry.Backoff
}

var _ Mailer = (*SESMailer)(nil)

func NewSESMailer(ctx context.Context, cfg *config.MailConfig) (*SESMailer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return newSESMailer(sesv2.NewFromConfig(awsCfg), cfg), nil
}

func newSESMailer(client sesAPI, cfg *config.MailConfig) *SESMailer {
	from := cfg.FromEmail
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromEmail)
	}
	return &SESMailer{
		client:        client,
		from:          from,
		replyTo:       cfg.ReplyTo,
		subjectPrefix: cfg.SubjectPrefix,
		backoff: func() retry.Backoff {
			b := retry.NewExponential(500 * time.Millisecond)
			b = retry.WithMaxRetries(4, b)
			return b
		},
	}
}

func (m *SESMailer) input(mail Mail, text string, html string) *sesv2.SendEmailInput {
	in := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(m.from),
		Destination: &sestypes.Destination{
			// recipients of one team should not see each other's addresses
			BccAddresses: mail.Recipients,
		},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{
					Data:    aws.String(m.subjectPrefix + mail.Subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &sestypes.Body{
					Text: &sestypes.Content{Data: aws.String(text), Charset: aws.String("UTF-8")},
					Html: &sestypes.Content{Data: aws.String(html), Charset: aws.String("UTF-8")},
				},
			},
		},
	}
	if m.replyTo != "" {
		in.ReplyToAddresses = []string{m.replyTo}
	}
	return in
}

func (m *SESMailer) Send(ctx context.Context, mail Mail) error {
	ctx, span := tracer.Start(ctx, "SESMailer.Send")
	defer span.End()

	span.SetAttributes(
		attribute.String("mail.template", mail.TemplateID),
		attribute.Int("mail.recipients", len(mail.Recipients)),
	)

	if len(mail.Recipients) == 0 {
		span.AddEvent("no_recipients")
		span.SetStatus(codes.Ok, "nothing to send")
		return nil
	}

	text, html, err := Render(mail.TemplateID, mail.Data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to render mail")
		return err
	}
	in := m.input(mail, text, html)

	err = retry.Do(ctx, m.backoff(), func(ctx context.Context) error {
		//nolint:govet // shadow: intentionally shadow ctx and span to avoid using the incorrect one.
		ctx, span := tracer.Start(ctx, "SESMailer.Send.Retry")
		defer span.End()

		if _, err := m.client.SendEmail(ctx, in); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to send email")
			return retry.RetryableError(err)
		}

		span.RecordError(nil)
		span.SetStatus(codes.Ok, "successfully retried")
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return fmt.Errorf("failed to send email: %w", err)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "sent email")
	return nil
}

// LogMailer stands in for SES when mail is disabled.
type LogMailer struct{}

var _ Mailer = LogMailer{}

func (LogMailer) Send(ctx context.Context, mail Mail) error {
	text, _, err := Render(mail.TemplateID, mail.Data)
	if err != nil {
		return err
	}
	logger.Logger.InfoContext(ctx, "mail disabled, not sending",
		"subject", mail.Subject,
		"recipients", strings.Join(mail.Recipients, ","),
		"body", text,
	)
	return nil
}

// NewMailer picks SES or the log mailer from config.
func NewMailer(ctx context.Context, cfg *config.MailConfig) (Mailer, error) {
	if !cfg.Enabled || cfg.FromEmail == "" {
		logger.Logger.Info("mail disabled")
		return LogMailer{}, nil
	}
	return NewSESMailer(ctx, cfg)
}
