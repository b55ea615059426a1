package observ

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lalithlochan/templar/internal/jobs"
)

func TestNewLogger_Level(t *testing.T) {
	logger, err := NewLogger("development", "warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	logger, err = NewLogger("production", "bogus")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
}

func TestJobLogger_Fields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	job := jobs.NewTemplateJob(jobs.KindSubmit, uuid.New(), "app-1", "org-1")
	JobLogger(base, job).Info("started")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, job.ID.String(), fields["job_id"])
	assert.Equal(t, "submit", fields["kind"])
	assert.Equal(t, "org-1", fields["org_id"])
	assert.Equal(t, job.TemplateID.String(), fields["template_id"])

	logs.TakeAll()
	JobLogger(base, jobs.NewWebhookJob([]byte(`{}`))).Info("started")
	fields = logs.All()[0].ContextMap()
	assert.NotContains(t, fields, "template_id")
	assert.NotContains(t, fields, "org_id")
}
