package bootstrap

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"

	appconfig "github.com/wolfman30/havana-support/internal/config"
	"github.com/wolfman30/havana-support/internal/notify"
	"github.com/wolfman30/havana-support/pkg/logging"
)

func TestBuildEmailSender(t *testing.T) {
	logger := logging.New("error")

	cases := []struct {
		name string
		cfg  *appconfig.Config
		want string
	}{
		{name: "nil config", cfg: nil, want: "stub"},
		{name: "default", cfg: &appconfig.Config{EmailProvider: "stub"}, want: "stub"},
		{name: "sendgrid without key", cfg: &appconfig.Config{EmailProvider: "sendgrid"}, want: "stub"},
		{name: "sendgrid", cfg: &appconfig.Config{EmailProvider: "sendgrid", SendGridAPIKey: "SG.test", EmailFrom: "noreply@havana.example"}, want: "sendgrid"},
		{name: "ses", cfg: &appconfig.Config{EmailProvider: "ses", EmailFrom: "noreply@havana.example"}, want: "ses"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sender := BuildEmailSender(tc.cfg, aws.Config{Region: "us-east-1"}, logger)
			var got string
			switch sender.(type) {
			case *notify.StubEmailSender:
				got = "stub"
			case *notify.SendGridSender:
				got = "sendgrid"
			case *notify.SESSender:
				got = "ses"
			default:
				t.Fatalf("unexpected sender %T", sender)
			}
			if got != tc.want {
				t.Fatalf("expected %s sender, got %s", tc.want, got)
			}
		})
	}
}
