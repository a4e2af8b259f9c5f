package email

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/example/ec-checkout/internal/money"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service handles email sending via SMTP
type Service struct {
	host     string
	port     string
	from     string
	sendMail sendFunc
}

// NewService creates a new email service
func NewService(host, port, from string) *Service {
	return &Service{
		host:     host,
		port:     port,
		from:     from,
		sendMail: smtp.SendMail,
	}
}

// SendPaymentConfirmation tells the shopper their payment went through
func (s *Service) SendPaymentConfirmation(to string, receipt Receipt) error {
	subject := fmt.Sprintf("Payment received for order %s", shortID(receipt.OrderID))
	body, err := BuildPaymentConfirmationBody(receipt)
	if err != nil {
		return err
	}
	return s.send(to, subject, body)
}

func (s *Service) send(to, subject, body string) error {
	if strings.ContainsAny(to, "\r\n") {
		return fmt.Errorf("invalid recipient %q", to)
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	return s.sendMail(addr, nil, s.from, []string{to}, []byte(msg))
}

func shortID(orderID string) string {
	if len(orderID) > 8 {
		return orderID[:8]
	}
	return orderID
}

// formatAmount renders an amount with its ISO currency code, e.g. "USD 15.00"
func formatAmount(a money.Amount, currency string) string {
	if currency == "" {
		return a.String()
	}
	return strings.ToUpper(currency) + " " + a.String()
}
