package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puzzlehunt/huntserver/internal/config"
)

type fakeSES struct {
	fails  int
	calls  int
	inputs []*sesv2.SendEmailInput
}

func (f *fakeSES) SendEmail(
	_ context.Context,
	in *sesv2.SendEmailInput,
	_ ...func(*sesv2.Options),
) (*sesv2.SendEmailOutput, error) {
	f.calls++
	f.inputs = append(f.inputs, in)
	if f.calls <= f.fails {
		return nil, errors.New("throttled")
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("id")}, nil
}

func testMailer(ses *fakeSES) *SESMailer {
	m := newSESMailer(ses, &config.MailConfig{
		FromEmail:     "hunt@example.com",
		FromName:      "Puzzle Hunt",
		ReplyTo:       "hq@example.com",
		SubjectPrefix: "[Hunt] ",
	})
	m.backoff = func() retry.Backoff {
		return retry.WithMaxRetries(2, retry.NewConstant(1))
	}
	return m
}

func hintMail() Mail {
	return Mail{
		Subject:    "Hint answered for Spooky",
		TemplateID: TemplateHintAnswered,
		Data: map[string]any{
			"TeamName":   "Alpha",
			"PuzzleName": "Spooky",
			"Question":   "what <now>?",
			"Response":   "look closer",
			"Link":       "https://hunt.example.com/puzzle/spooky/hints",
			"HuntTitle":  "Puzzle Hunt",
		},
		Recipients: []string{"a@example.com", "b@example.com"},
	}
}

func TestRender(t *testing.T) {
	text, html, err := Render(TemplateHintAnswered, hintMail().Data)
	require.NoError(t, err)

	assert.Contains(t, text, "what <now>?")
	assert.Contains(t, text, "look closer")
	assert.Contains(t, html, "what &lt;now&gt;?")

	_, _, err = Render("missing", nil)
	assert.Error(t, err)
}

func TestSESMailerSend(t *testing.T) {
	t.Run("BuildsInput", func(t *testing.T) {
		ses := &fakeSES{}
		require.NoError(t, testMailer(ses).Send(context.Background(), hintMail()))

		require.Len(t, ses.inputs, 1)
		in := ses.inputs[0]
		assert.Equal(t, "Puzzle Hunt <hunt@example.com>", aws.ToString(in.FromEmailAddress))
		assert.Equal(t, []string{"hq@example.com"}, in.ReplyToAddresses)
		assert.Equal(t, []string{"a@example.com", "b@example.com"}, in.Destination.BccAddresses)
		assert.Equal(t, "[Hunt] Hint answered for Spooky", aws.ToString(in.Content.Simple.Subject.Data))
		assert.Contains(t, aws.ToString(in.Content.Simple.Body.Text.Data), "look closer")
	})

	t.Run("NoRecipients", func(t *testing.T) {
		ses := &fakeSES{}
		mail := hintMail()
		mail.Recipients = nil

		require.NoError(t, testMailer(ses).Send(context.Background(), mail))
		assert.Zero(t, ses.calls)
	})

	t.Run("RetriesThenSucceeds", func(t *testing.T) {
		ses := &fakeSES{fails: 2}

		require.NoError(t, testMailer(ses).Send(context.Background(), hintMail()))
		assert.Equal(t, 3, ses.calls)
	})

	t.Run("GivesUp", func(t *testing.T) {
		ses := &fakeSES{fails: 10}

		err := testMailer(ses).Send(context.Background(), hintMail())
		require.Error(t, err)
		assert.Equal(t, 3, ses.calls)
	})
}

func TestLogMailer(t *testing.T) {
	assert.NoError(t, LogMailer{}.Send(context.Background(), hintMail()))
	assert.Error(t, LogMailer{}.Send(context.Background(), Mail{TemplateID: "missing"}))
}
