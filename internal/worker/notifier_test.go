package worker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lalithlochan/templar/internal/apperr"
	"github.com/lalithlochan/templar/internal/jobs"
	"github.com/lalithlochan/templar/internal/sns"
)

type fakePublisher struct {
	events []sns.TemplateEvent
	err    error
}

func (f *fakePublisher) PublishTemplateEvent(_ context.Context, ev sns.TemplateEvent) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.events = append(f.events, ev)
	return "msg-1", nil
}

type fakeSES struct {
	inputs []*ses.SendEmailInput
}

func (f *fakeSES) SendEmail(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.inputs = append(f.inputs, in)
	return &ses.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

type stubNotifier struct {
	wants bool
	err   error
	calls int
}

func (s *stubNotifier) Notify(context.Context, *Outcome) error {
	s.calls++
	return s.err
}

func (s *stubNotifier) Wants(*Outcome) bool { return s.wants }

func submitOutcome(state jobs.State, err *apperr.Error) *Outcome {
	return &Outcome{
		Job:            jobs.NewTemplateJob(jobs.KindSubmit, uuid.New(), "app-1", "org-1"),
		State:          state,
		TemplateStatus: "pending",
		Result:         map[string]any{"provider_template_id": "abc123"},
		Err:            err,
	}
}

func TestSNSNotifier_EventPerKind(t *testing.T) {
	tests := []struct {
		kind  jobs.Kind
		state jobs.State
		want  sns.EventType
	}{
		{jobs.KindSubmit, jobs.StateSuccess, sns.EventSubmitted},
		{jobs.KindUpdate, jobs.StateSuccess, sns.EventUpdated},
		{jobs.KindDelete, jobs.StateSuccess, sns.EventDeleted},
		{jobs.KindSync, jobs.StateSuccess, sns.EventSynced},
		{jobs.KindWebhook, jobs.StateSuccess, sns.EventStatusChanged},
		{jobs.KindSubmit, jobs.StateFailure, sns.EventFailed},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind)+"/"+string(tt.state), func(t *testing.T) {
			o := &Outcome{Job: &jobs.Job{ID: uuid.New(), Kind: tt.kind}, State: tt.state}
			assert.Equal(t, tt.want, eventFor(o))
		})
	}
}

func TestSNSNotifier_Notify(t *testing.T) {
	pub := &fakePublisher{}
	n := NewSNSNotifier(pub, zap.NewNop())
	o := submitOutcome(jobs.StateSuccess, nil)

	require.True(t, n.Wants(o))
	require.NoError(t, n.Notify(context.Background(), o))

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, sns.EventSubmitted, ev.Event)
	assert.Equal(t, o.Job.TemplateID.String(), ev.TemplateID)
	assert.Equal(t, "org-1", ev.OrgID)
	assert.Equal(t, "pending", ev.Status)
	assert.Equal(t, "abc123", ev.Detail["provider_template_id"])
}

func TestSNSNotifier_FailureCarriesError(t *testing.T) {
	pub := &fakePublisher{}
	n := NewSNSNotifier(pub, zap.NewNop())

	require.NoError(t, n.Notify(context.Background(), submitOutcome(jobs.StateFailure, apperr.Rejected(400, "Template Already exists"))))

	require.Len(t, pub.events, 1)
	assert.Equal(t, sns.EventFailed, pub.events[0].Event)
	assert.Equal(t, "Template Already exists", pub.events[0].Detail["message"])
}

func TestSNSNotifier_SkipsUnappliedWebhooks(t *testing.T) {
	n := NewSNSNotifier(&fakePublisher{}, zap.NewNop())
	o := &Outcome{
		Job:    &jobs.Job{ID: uuid.New(), Kind: jobs.KindWebhook},
		State:  jobs.StateSuccess,
		Result: map[string]any{"applied": false},
	}
	assert.False(t, n.Wants(o))

	o.Result["applied"] = true
	assert.True(t, n.Wants(o))
}

func TestSNSNotifier_PublishError(t *testing.T) {
	n := NewSNSNotifier(&fakePublisher{err: errors.New("throttled")}, zap.NewNop())

	err := n.Notify(context.Background(), submitOutcome(jobs.StateSuccess, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "template.submitted")
}

func TestSESNotifier_Wants(t *testing.T) {
	n := NewSESNotifierWithClient(&fakeSES{}, SESConfig{FromEmail: "a@x", ToEmail: "b@x"}, zap.NewNop())

	assert.False(t, n.Wants(submitOutcome(jobs.StateSuccess, nil)))
	assert.False(t, n.Wants(submitOutcome(jobs.StateFailure, apperr.Rejected(400, "nope"))))
	assert.False(t, n.Wants(submitOutcome(jobs.StateFailure, apperr.Lookup("template", nil))))
	assert.True(t, n.Wants(submitOutcome(jobs.StateFailure, apperr.Transport(503, "unavailable"))))
	assert.True(t, n.Wants(submitOutcome(jobs.StateFailure, apperr.Internal(errors.New("boom")))))
}

func TestSESNotifier_Notify(t *testing.T) {
	client := &fakeSES{}
	n := NewSESNotifierWithClient(client, SESConfig{FromEmail: "alerts@templar.dev", ToEmail: "oncall@templar.dev"}, zap.NewNop())
	o := submitOutcome(jobs.StateFailure, apperr.Exhausted(apperr.Transport(503, "service unavailable"), 4))

	require.NoError(t, n.Notify(context.Background(), o))

	require.Len(t, client.inputs, 1)
	in := client.inputs[0]
	assert.Equal(t, "alerts@templar.dev", aws.ToString(in.Source))
	assert.Equal(t, []string{"oncall@templar.dev"}, in.Destination.ToAddresses)
	assert.Equal(t, "[templar] submit job failed: TRANSPORT_FAULT", aws.ToString(in.Message.Subject.Data))

	body := aws.ToString(in.Message.Body.Text.Data)
	assert.True(t, strings.Contains(body, o.Job.ID.String()))
	assert.Contains(t, body, "gave up after 4 attempts")
}

func TestMultiNotifier(t *testing.T) {
	interested := &stubNotifier{wants: true}
	failing := &stubNotifier{wants: true, err: errors.New("down")}
	bored := &stubNotifier{wants: false}
	m := NewMultiNotifier(zap.NewNop(), interested, nil, failing, bored)

	o := submitOutcome(jobs.StateSuccess, nil)
	assert.True(t, m.Wants(o))

	err := m.Notify(context.Background(), o)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
	assert.Equal(t, 1, interested.calls)
	assert.Equal(t, 1, failing.calls)
	assert.Zero(t, bored.calls)
}

func TestMultiNotifier_NobodyInterested(t *testing.T) {
	m := NewMultiNotifier(zap.NewNop(), &stubNotifier{})
	assert.False(t, m.Wants(submitOutcome(jobs.StateSuccess, nil)))
}
