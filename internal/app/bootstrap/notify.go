package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/havana-support/internal/config"
	"github.com/wolfman30/havana-support/internal/notify"
	"github.com/wolfman30/havana-support/pkg/logging"
)

// BuildEmailSender selects the escalation email transport. Misconfigured
// providers degrade to the log-only stub.
func BuildEmailSender(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewStubEmailSender(logger)
	}

	switch cfg.EmailProvider {
	case "sendgrid":
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger)
		if sender != nil {
			logger.Info("email notifications via sendgrid")
			return sender
		}
		logger.Warn("EMAIL_PROVIDER=sendgrid without SENDGRID_API_KEY; emails will only be logged")
	case "ses":
		logger.Info("email notifications via ses", "region", awsCfg.Region)
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger)
	}
	return notify.NewStubEmailSender(logger)
}
