package service

import (
	"context"
	"fmt"

	"wadispatch/internal/metrics"
	"wadispatch/internal/models"
	"wadispatch/internal/privacy"
	"wadispatch/internal/tracing"
	"wadispatch/pkg/circuitbreaker"
	"wadispatch/pkg/whatsapp"
	"wadispatch/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// MessageSender performs exactly one send attempt for one recipient.
// Retry and rate limiting live with the callers; the returned error
// carries the transient/permanent/channel-fatal classification.
type MessageSender interface {
	Send(ctx context.Context, job *models.DispatchJob, recipient *models.RecipientState) (string, error)
}

type providerSender struct {
	client   whatsapp.Client
	breakers *circuitbreaker.Group
	logger   *logrus.Logger
}

// NewProviderSender wraps the provider client with per-channel circuit
// breaking and tracing.
func NewProviderSender(client whatsapp.Client, breakers *circuitbreaker.Group, logger *logrus.Logger) MessageSender {
	return &providerSender{
		client:   client,
		breakers: breakers,
		logger:   logger,
	}
}

func (s *providerSender) Send(ctx context.Context, job *models.DispatchJob, recipient *models.RecipientState) (string, error) {
	spanCtx, span := tracing.StartSpan(ctx, "dispatch.send",
		attribute.String("job_id", job.ID),
		attribute.String("channel_id", job.ChannelID),
	)
	defer span.End()

	var resp *types.SendMessageResponse
	err := s.breakers.Get(job.ChannelID).Execute(spanCtx, func(ctx context.Context) error {
		var sendErr error
		if job.TemplateRef != "" {
			resp, sendErr = s.client.SendTemplate(ctx, job.ChannelID, recipient.PhoneNumber, &types.SendTemplateRequest{
				Template: job.TemplateRef,
			})
		} else {
			resp, sendErr = s.client.SendText(ctx, job.ChannelID, recipient.PhoneNumber, job.Payload)
		}
		return sendErr
	})

	if err != nil {
		// An open breaker is a local back-pressure signal, not a
		// provider verdict: surface it as transient.
		if circuitbreaker.IsOpenError(err) {
			err = types.NewTransportError(err)
		}
		tracing.RecordError(spanCtx, err)
		metrics.GetRegistry().IncrementCounter(metrics.MetricSendFailures, map[string]string{
			"channel_id": job.ChannelID,
			"kind":       classifyKind(err),
		})
		return "", err
	}

	if resp == nil || resp.MessageID == "" {
		err := fmt.Errorf("provider returned no message id")
		tracing.RecordError(spanCtx, err)
		return "", types.NewTransportError(err)
	}

	metrics.GetRegistry().IncrementCounter(metrics.MetricMessagesSent, map[string]string{
		"channel_id": job.ChannelID,
	})
	s.logger.WithFields(logrus.Fields{
		"job_id":     job.ID,
		"recipient":  privacy.MaskPhoneNumber(recipient.PhoneNumber),
		"message_id": privacy.MaskMessageID(resp.MessageID),
	}).Debug("Message accepted by provider")
	return resp.MessageID, nil
}

func classifyKind(err error) string {
	switch {
	case types.IsChannelFatal(err):
		return "channel_fatal"
	case types.IsPermanent(err):
		return "permanent"
	default:
		return "transient"
	}
}
