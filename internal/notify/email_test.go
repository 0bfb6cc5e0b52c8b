package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

func TestNewSendGridSender_NilWithoutAPIKey(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "",
		FromEmail: "support@havana.example",
	}, nil)

	if sender != nil {
		t.Error("expected nil sender when API key is empty")
	}
}

func TestNewSendGridSender_DefaultFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "test-key",
		FromEmail: "support@havana.example",
	}, nil)

	if sender == nil {
		t.Fatal("expected non-nil sender")
	}
	if sender.fromName != "Havana Support" {
		t.Errorf("expected default from name 'Havana Support', got %q", sender.fromName)
	}
}

type fakeSendGrid struct {
	got    *mail.SGMailV3
	status int
	err    error
}

func (f *fakeSendGrid) SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	f.got = email
	if f.err != nil {
		return nil, f.err
	}
	return &rest.Response{StatusCode: f.status}, nil
}

func TestSendGridSender_Send(t *testing.T) {
	fake := &fakeSendGrid{status: 202}
	sender := newSendGridSender(fake, SendGridConfig{FromEmail: "support@havana.example", FromName: "Admissions"}, nil)

	err := sender.Send(context.Background(), EmailMessage{
		To:      "admin@havana.example",
		Subject: "Visitor waiting",
		Body:    "Session abc",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.got == nil || fake.got.Subject != "Visitor waiting" {
		t.Fatalf("unexpected mail: %+v", fake.got)
	}
	if fake.got.From.Name != "Admissions" {
		t.Errorf("expected from name Admissions, got %q", fake.got.From.Name)
	}
}

func TestSendGridSender_SendErrors(t *testing.T) {
	sender := newSendGridSender(&fakeSendGrid{status: 401}, SendGridConfig{}, nil)
	if err := sender.Send(context.Background(), EmailMessage{To: "a@b.c"}); err == nil {
		t.Error("expected error for 401 status")
	}

	sender = newSendGridSender(&fakeSendGrid{err: errors.New("dial tcp")}, SendGridConfig{}, nil)
	if err := sender.Send(context.Background(), EmailMessage{To: "a@b.c"}); err == nil {
		t.Error("expected transport error")
	}
}

func TestSendGridSender_Send_NilClient(t *testing.T) {
	sender := &SendGridSender{}

	err := sender.Send(context.Background(), EmailMessage{
		To:      "recipient@example.com",
		Subject: "Test",
		Body:    "Test body",
	})

	if err == nil {
		t.Error("expected error when client is nil")
	}
}

type fakeSES struct {
	got *sesv2.SendEmailInput
	err error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.got = params
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESSender_Send(t *testing.T) {
	fake := &fakeSES{}
	sender := NewSESSender(fake, SESConfig{FromEmail: "support@havana.example"}, nil)

	err := sender.Send(context.Background(), EmailMessage{
		To:      "admin@havana.example",
		Subject: "Callback booked",
		Body:    "Phone: 91234567",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := aws.ToString(fake.got.FromEmailAddress); got != "Havana Support <support@havana.example>" {
		t.Errorf("unexpected from address %q", got)
	}
	if fake.got.Content.Simple.Body.Html != nil {
		t.Error("expected no html body")
	}
	if got := aws.ToString(fake.got.Content.Simple.Body.Text.Data); got != "Phone: 91234567" {
		t.Errorf("unexpected text body %q", got)
	}
}

func TestSESSender_SendError(t *testing.T) {
	sender := NewSESSender(&fakeSES{err: errors.New("throttled")}, SESConfig{}, nil)
	if err := sender.Send(context.Background(), EmailMessage{To: "a@b.c", Body: "x"}); err == nil {
		t.Error("expected error")
	}
}

func TestNewSESSender_NilClient(t *testing.T) {
	if NewSESSender(nil, SESConfig{}, nil) != nil {
		t.Error("expected nil sender without client")
	}
}

func TestStubEmailSender_Send(t *testing.T) {
	sender := NewStubEmailSender(nil)

	err := sender.Send(context.Background(), EmailMessage{
		To:      "recipient@example.com",
		Subject: "Test Subject",
		Body:    "Test body",
	})

	if err != nil {
		t.Errorf("stub sender should not return error, got: %v", err)
	}
}
