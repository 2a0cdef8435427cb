package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	auth "github.com/goliatone/go-auth-invite"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type recordingSender struct {
	calls []SendEmailPayload
	err   error
}

func (s *recordingSender) Send(_ context.Context, to, subject, body string) error {
	s.calls = append(s.calls, SendEmailPayload{To: to, Subject: subject, Body: body})
	return s.err
}

func TestQueue_SendEnqueuesTask(t *testing.T) {
	mr := miniredis.RunT(t)

	client := asynq.NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	defer client.Close()

	q := NewQueue(client, WithQueueName("mail"))
	err := q.Send(context.Background(), "invitee@example.com", "Hi", "<p>hello</p>")
	require.NoError(t, err)

	pending, err := mr.List("asynq:{mail}:pending")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestQueue_SendWithoutClient(t *testing.T) {
	q := NewQueue(nil)
	err := q.Send(context.Background(), "invitee@example.com", "Hi", "body")
	require.Error(t, err)
	assert.True(t, auth.IsNotifierUnavailable(err))
}

func TestQueue_SendRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	client := asynq.NewClient(asynq.RedisClientOpt{Addr: addr})
	defer client.Close()

	err := NewQueue(client).Send(context.Background(), "invitee@example.com", "Hi", "body")
	require.Error(t, err)
}

func TestWorker_HandleSendEmailTask(t *testing.T) {
	sender := &recordingSender{}
	w, err := NewWorker(WorkerConfig{Sender: sender})
	require.NoError(t, err)

	task, err := NewSendEmailTask(SendEmailPayload{To: "a@example.com", Subject: "s", Body: "b"})
	require.NoError(t, err)

	require.NoError(t, w.HandleSendEmailTask(context.Background(), task))
	require.Len(t, sender.calls, 1)
	assert.Equal(t, "a@example.com", sender.calls[0].To)
}

func TestWorker_HandleSendEmailTask_BadPayload(t *testing.T) {
	sender := &recordingSender{}
	w, err := NewWorker(WorkerConfig{Sender: sender})
	require.NoError(t, err)

	err = w.HandleSendEmailTask(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	data, _ := json.Marshal(SendEmailPayload{Subject: "no recipient"})
	err = w.HandleSendEmailTask(context.Background(), asynq.NewTask(TaskTypeSendEmail, data))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, sender.calls)
}

func TestWorker_HandleSendEmailTask_SenderFailureIsRetried(t *testing.T) {
	sender := &recordingSender{err: errors.New("smtp down")}
	w, err := NewWorker(WorkerConfig{Sender: sender})
	require.NoError(t, err)

	task, _ := NewSendEmailTask(SendEmailPayload{To: "a@example.com"})
	err = w.HandleSendEmailTask(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestNewWorker_RequiresSender(t *testing.T) {
	_, err := NewWorker(WorkerConfig{})
	assert.Error(t, err)
}

func TestSMTPSender_Send(t *testing.T) {
	var sent *gomail.Message
	s := NewSMTPSender("smtp.example.com", 587, "user", "pass", "noreply@example.com")
	s.dial = func(m *gomail.Message) error {
		sent = m
		return nil
	}

	require.NoError(t, s.Send(context.Background(), "to@example.com", "Subject", "<p>html</p>"))
	require.NotNil(t, sent)
	assert.Equal(t, []string{"to@example.com"}, sent.GetHeader("To"))
	assert.Equal(t, []string{"noreply@example.com"}, sent.GetHeader("From"))
	assert.Equal(t, []string{"Subject"}, sent.GetHeader("Subject"))
}

func TestSMTPSender_SendErrors(t *testing.T) {
	s := NewSMTPSender("", 587, "", "", "")
	err := s.Send(context.Background(), "to@example.com", "s", "b")
	assert.True(t, auth.IsNotifierUnavailable(err))

	s = NewSMTPSender("smtp.example.com", 587, "", "", "noreply@example.com")
	s.dial = func(*gomail.Message) error { return errors.New("connection refused") }
	err = s.Send(context.Background(), "to@example.com", "s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to send email")
}

func TestTemplates_RenderInvite(t *testing.T) {
	tpl, err := NewTemplates("Acme")
	require.NoError(t, err)
	tpl.Expires = "7 days"

	subject, body, err := tpl.RenderInvite(context.Background(), "invitee@example.com", "https://acme.test/api/signup/abc")
	require.NoError(t, err)

	assert.Equal(t, "You have been invited", subject)
	assert.Contains(t, body, "invitee@example.com")
	assert.Contains(t, body, `href="https://acme.test/api/signup/abc"`)
	assert.Contains(t, body, "Acme")
	assert.Contains(t, body, "7 days")
}
