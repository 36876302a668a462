package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// AlertNotifier tells an operator that an identity was blocked
type AlertNotifier interface {
	NotifyBlocked(ctx context.Context, block *models.BlockedIdentityRecord) error
}

// NoopAlertNotifier drops every alert
type NoopAlertNotifier struct{}

func (NoopAlertNotifier) NotifyBlocked(ctx context.Context, block *models.BlockedIdentityRecord) error {
	return nil
}

// SESEmailSender is the part of the SES client the notifier uses
type SESEmailSender interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESAlertNotifier emails block alerts through AWS SES
type SESAlertNotifier struct {
	client      SESEmailSender
	fromAddress string
	toAddress   string
	logger      *slog.Logger
}

// NewSESAlertNotifier loads the default AWS config for region
func NewSESAlertNotifier(ctx context.Context, region, fromAddress, toAddress string, logger *slog.Logger) (*SESAlertNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSESAlertNotifierWithClient(ses.NewFromConfig(cfg), fromAddress, toAddress, logger), nil
}

// NewSESAlertNotifierWithClient wires an existing SES client
func NewSESAlertNotifierWithClient(client SESEmailSender, fromAddress, toAddress string, logger *slog.Logger) *SESAlertNotifier {
	return &SESAlertNotifier{
		client:      client,
		fromAddress: fromAddress,
		toAddress:   toAddress,
		logger:      logger,
	}
}

// NotifyBlocked sends one plain-text alert
func (n *SESAlertNotifier) NotifyBlocked(ctx context.Context, block *models.BlockedIdentityRecord) error {
	until := "permanently"
	if block.BlockedUntil != nil {
		until = "until " + block.BlockedUntil.UTC().Format(time.RFC3339)
	}

	subject := fmt.Sprintf("Gatekeeper: %s blocked", block.Identity)
	body := fmt.Sprintf(`An identity has been blocked.

Identity: %s
Reason:   %s
Blocked:  %s
At:       %s

Review the security log on the admin dashboard.
This is an automated message.
`, block.Identity, block.Reason, until, block.CreatedAt.UTC().Format(time.RFC3339))

	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{n.toAddress},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(body),
				},
			},
		},
	}

	result, err := n.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send block alert: %w", err)
	}

	messageID := ""
	if result != nil && result.MessageId != nil {
		messageID = *result.MessageId
	}
	n.logger.Info("block alert sent",
		slog.String("identity", block.Identity.String()),
		slog.String("message_id", messageID))

	return nil
}
