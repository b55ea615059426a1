package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"

	"github.com/lalithlochan/templar/internal/apperr"
	"github.com/lalithlochan/templar/internal/jobs"
)

// SESAPI is the subset of the SES client the alerter uses.
type SESAPI interface {
	SendEmail(ctx context.Context, in *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SESConfig struct {
	Region    string
	FromEmail string
	ToEmail   string
}

// SESNotifier emails operators when a job fails for operational reasons:
// exhausted transport retries or internal faults. Provider rejections and
// lookup faults belong to the tenant and are only recorded on the template.
type SESNotifier struct {
	client SESAPI
	from   string
	to     string
	logger *zap.Logger
}

func NewSESNotifier(ctx context.Context, cfg SESConfig, logger *zap.Logger) (*SESNotifier, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config: %w", err)
	}
	return NewSESNotifierWithClient(ses.NewFromConfig(awsCfg), cfg, logger), nil
}

func NewSESNotifierWithClient(client SESAPI, cfg SESConfig, logger *zap.Logger) *SESNotifier {
	return &SESNotifier{
		client: client,
		from:   cfg.FromEmail,
		to:     cfg.ToEmail,
		logger: logger,
	}
}

func (n *SESNotifier) Wants(o *Outcome) bool {
	if o.State != jobs.StateFailure || o.Err == nil {
		return false
	}
	return o.Err.Code == apperr.CodeTransport || o.Err.Code == apperr.CodeInternal
}

func (n *SESNotifier) Notify(ctx context.Context, o *Outcome) error {
	subject := fmt.Sprintf("[templar] %s job failed: %s", o.Job.Kind, o.Err.Code)

	var body strings.Builder
	fmt.Fprintf(&body, "Job:      %s\n", o.Job.ID)
	fmt.Fprintf(&body, "Kind:     %s\n", o.Job.Kind)
	fmt.Fprintf(&body, "Org:      %s\n", o.Job.OrgID)
	fmt.Fprintf(&body, "App:      %s\n", o.Job.AppID)
	if o.Job.Kind.TargetsTemplate() {
		fmt.Fprintf(&body, "Template: %s\n", o.Job.TemplateID)
	}
	fmt.Fprintf(&body, "\n%s\n", o.Err.Message)
	if o.Err.Details != "" {
		fmt.Fprintf(&body, "%s\n", o.Err.Details)
	}

	input := &ses.SendEmailInput{
		Source: aws.String(n.from),
		Destination: &types.Destination{
			ToAddresses: []string{n.to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(body.String()),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := n.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}

	n.logger.Info("failure alert sent via SES",
		zap.String("job_id", o.Job.ID.String()),
		zap.String("to", n.to),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)
	return nil
}
