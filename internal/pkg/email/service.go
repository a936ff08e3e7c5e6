// internal/pkg/email/service.go
package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/pkg/pdf"
)

// Service sends transactional mail over SMTP. All sends are best
// effort; callers treat failures as log-and-continue.
type Service struct {
	config   *config.Config
	invoices *pdf.Service
	logger   *logrus.Logger
}

// NewService creates a new email service. invoices may be nil to skip
// PDF attachments.
func NewService(cfg *config.Config, invoices *pdf.Service, logger *logrus.Logger) *Service {
	return &Service{
		config:   cfg,
		invoices: invoices,
		logger:   logger,
	}
}

// Enabled reports whether SMTP is configured
func (s *Service) Enabled() bool {
	return s.config.External.Email.SMTPHost != ""
}

// SendOrderConfirmation sends the order confirmation with the invoice
// PDF attached when a generator is configured.
func (s *Service) SendOrderConfirmation(ctx context.Context, o *order.Order) error {
	if o.Email == "" {
		return nil
	}

	body, err := render(orderConfirmationTemplate, map[string]interface{}{
		"Order":    o,
		"SiteName": s.config.App.Name,
	})
	if err != nil {
		return err
	}

	var attachment []byte
	var attachmentName string
	if s.invoices != nil {
		buf, err := s.invoices.GenerateInvoice(o)
		if err != nil {
			s.logger.WithField("order_id", o.ID).WithError(err).Warn("Failed to render invoice, sending without attachment")
		} else {
			attachment = buf.Bytes()
			attachmentName = fmt.Sprintf("invoice-%s.pdf", o.OrderNumber)
		}
	}

	subject := fmt.Sprintf("Order confirmation %s", o.OrderNumber)
	return s.send(o.Email, subject, body, attachmentName, attachment)
}

// SendAbandonmentReminder nudges the customer back to a cart the reaper
// just marked abandoned.
func (s *Service) SendAbandonmentReminder(ctx context.Context, c *cart.Cart) error {
	if c.Email == "" {
		return nil
	}

	body, err := render(abandonmentTemplate, map[string]interface{}{
		"Cart":     c,
		"SiteName": s.config.App.Name,
	})
	if err != nil {
		return err
	}

	return s.send(c.Email, "You left something in your cart", body, "", nil)
}

func (s *Service) send(to, subject, htmlBody, attachmentName string, attachment []byte) error {
	emailCfg := s.config.External.Email
	if emailCfg.SMTPHost == "" {
		return fmt.Errorf("SMTP is not configured")
	}

	from := emailCfg.FromEmail
	if emailCfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", emailCfg.FromName, emailCfg.FromEmail)
	}

	msg, err := buildMessage(from, to, subject, htmlBody, attachmentName, attachment)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", emailCfg.SMTPHost, emailCfg.SMTPPort)
	var auth smtp.Auth
	if emailCfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", emailCfg.SMTPUser, emailCfg.SMTPPass, emailCfg.SMTPHost)
	}
	if err := smtp.SendMail(addr, auth, emailCfg.FromEmail, []string{to}, msg); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}

// buildMessage assembles the MIME message, multipart when an attachment
// is present.
func buildMessage(from, to, subject, htmlBody, attachmentName string, attachment []byte) ([]byte, error) {
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")

	if attachment == nil {
		msg.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n\r\n")
		msg.WriteString(htmlBody)
		return msg.Bytes(), nil
	}

	writer := multipart.NewWriter(&msg)
	fmt.Fprintf(&msg, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", writer.Boundary())

	htmlPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/html; charset=\"utf-8\""},
	})
	if err != nil {
		return nil, err
	}
	if _, err := htmlPart.Write([]byte(htmlBody)); err != nil {
		return nil, err
	}

	pdfPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"application/pdf"},
		"Content-Transfer-Encoding": {"base64"},
		"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", attachmentName)},
	})
	if err != nil {
		return nil, err
	}
	encoded := base64.StdEncoding.EncodeToString(attachment)
	if _, err := pdfPart.Write([]byte(encoded)); err != nil {
		return nil, err
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}
	return msg.Bytes(), nil
}

func render(tmplText string, data interface{}) (string, error) {
	tmpl := template.Must(template.New("email").
		Funcs(template.FuncMap{
			"money": func(amount int64) string {
				return fmt.Sprintf("%.2f", float64(amount)/100)
			},
			"upper": strings.ToUpper,
		}).
		Parse(tmplText))

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render email template: %w", err)
	}
	return buf.String(), nil
}

const orderConfirmationTemplate = `
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Thanks for your order, it's confirmed!</h2>
  <p>Order <strong>{{.Order.OrderNumber}}</strong> has been paid and is being prepared.</p>
  <table style="border-collapse: collapse; width: 100%;">
    <tr style="background: #f8f9fa;">
      <th style="text-align: left; padding: 8px;">Item</th>
      <th style="text-align: right; padding: 8px;">Qty</th>
      <th style="text-align: right; padding: 8px;">Price</th>
    </tr>
    {{range .Order.Items}}
    <tr>
      <td style="padding: 8px;">{{.Name}}</td>
      <td style="text-align: right; padding: 8px;">{{.Quantity}}</td>
      <td style="text-align: right; padding: 8px;">{{money .Subtotal}} {{upper $.Order.Currency}}</td>
    </tr>
    {{end}}
  </table>
  <p>
    Subtotal: {{money .Order.SubtotalAmount}}<br>
    {{if gt .Order.DiscountAmount 0}}Discount: -{{money .Order.DiscountAmount}}<br>{{end}}
    Shipping: {{money .Order.ShippingAmount}}<br>
    Tax: {{money .Order.TaxAmount}}<br>
    <strong>Total: {{money .Order.TotalAmount}} {{upper .Order.Currency}}</strong>
  </p>
  <p>{{.SiteName}}</p>
</body>
</html>
`

const abandonmentTemplate = `
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Your cart is waiting</h2>
  <p>You left {{.Cart.Totals.TotalQuantity}} item(s) in your cart:</p>
  <ul>
    {{range .Cart.Items}}
    <li>{{.Name}} &times; {{.Quantity}}</li>
    {{end}}
  </ul>
  <p>Come back and finish checking out whenever you're ready.</p>
  <p>{{.SiteName}}</p>
</body>
</html>
`
