package service

import (
	"context"
	"fmt"
	"strings"

	"coldchain-rental-core/internal/domain"
	"coldchain-rental-core/internal/logger"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const sendgridService = "sendgrid"

type sendgridNotifier struct {
	apiKey    string
	fromEmail string
	fromName  string
	opsEmail  string
}

// NewSendGridNotifier mails operational notices to the site operations inbox.
func NewSendGridNotifier(apiKey, fromEmail, fromName, opsEmail string) Notifier {
	return &sendgridNotifier{
		apiKey:    apiKey,
		fromEmail: fromEmail,
		fromName:  fromName,
		opsEmail:  opsEmail,
	}
}

func (n *sendgridNotifier) RentalRequested(ctx context.Context, r *domain.Rental) error {
	subject := fmt.Sprintf("New %s rental request", r.AssetType)
	body := fmt.Sprintf("Client %s requested %s %s from %s to %s.\nEstimated fee: %s",
		r.ClientID, r.AssetType, r.AssetID,
		r.RentalStartDate.Format("2006-01-02"), r.RentalEndDate.Format("2006-01-02"),
		r.EstimatedFee.StringFixed(2))
	if kg := r.ReservedKg(); kg.IsPositive() {
		body += fmt.Sprintf("\nCapacity reserved: %s kg", kg.String())
	}
	return n.send(ctx, "RentalRequested", subject, body)
}

func (n *sendgridNotifier) PaymentFailed(ctx context.Context, p *domain.Payment) error {
	outcome := strings.ToLower(string(p.Status))
	subject := fmt.Sprintf("Payment %s %s", p.ProviderReference, outcome)
	body := fmt.Sprintf("Payment of %s for invoice %s from %s %s.\nReason: %s",
		p.Amount.StringFixed(2), p.InvoiceID, p.PhoneNumber, outcome, p.FailureReason)
	return n.send(ctx, "PaymentFailed", subject, body)
}

func (n *sendgridNotifier) send(ctx context.Context, op, subject, plainText string) error {
	logger.ExternalServiceCall(sendgridService, op, "to", n.opsEmail)
	from := mail.NewEmail(n.fromName, n.fromEmail)
	to := mail.NewEmail("Site operations", n.opsEmail)
	message := mail.NewSingleEmail(from, subject, to, plainText, "")

	client := sendgrid.NewSendClient(n.apiKey)
	response, err := client.SendWithContext(ctx, message)
	if err == nil && response.StatusCode >= 400 {
		err = fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	logger.ExternalServiceResult(sendgridService, op, err)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

type logNotifier struct{}

// NewLogNotifier writes notices to the log instead of mailing them.
func NewLogNotifier() Notifier {
	return logNotifier{}
}

func (logNotifier) RentalRequested(ctx context.Context, r *domain.Rental) error {
	logger.InfoContext(ctx, "Rental requested", "rentalID", r.ID, "assetType", r.AssetType, "assetID", r.AssetID, "clientID", r.ClientID)
	return nil
}

func (logNotifier) PaymentFailed(ctx context.Context, p *domain.Payment) error {
	logger.WarnContext(ctx, "Payment not completed", "paymentID", p.ID, "reference", p.ProviderReference, "status", p.Status, "reason", p.FailureReason)
	return nil
}
