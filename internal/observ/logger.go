// Package observ builds the service's zap loggers.
package observ

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lalithlochan/templar/internal/jobs"
)

// NewLogger creates a structured logger based on environment
func NewLogger(env, level string) (*zap.Logger, error) {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		zapLevel = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	return config.Build()
}

// JobLogger tags every line with the job's identifiers.
func JobLogger(base *zap.Logger, j *jobs.Job) *zap.Logger {
	fields := []zap.Field{
		zap.String("job_id", j.ID.String()),
		zap.String("kind", string(j.Kind)),
	}
	if j.OrgID != "" {
		fields = append(fields, zap.String("org_id", j.OrgID))
	}
	if j.AppID != "" {
		fields = append(fields, zap.String("app_id", j.AppID))
	}
	if j.Kind.TargetsTemplate() {
		fields = append(fields, zap.String("template_id", j.TemplateID.String()))
	}
	return base.With(fields...)
}
