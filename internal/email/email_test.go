package email

import (
	"errors"
	"net/smtp"
	"testing"

	"github.com/example/ec-checkout/internal/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	addr string
	from string
	to   []string
	msg  string
}

func newTestService(sent *[]sentMail, err error) *Service {
	s := NewService("smtp.example.test", "1025", "shop@example.com")
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		*sent = append(*sent, sentMail{addr: addr, from: from, to: to, msg: string(msg)})
		return err
	}
	return s
}

func scenarioReceipt() Receipt {
	return Receipt{
		OrderID:    "7d1e9a3c-0b5f-4c1e-9a77-2f4d8e6b1c22",
		FirstName:  "Ana",
		Currency:   "usd",
		Total:      money.MustParse("15.00"),
		PaymentRef: "pi_123",
		Items: []Item{
			{ProductID: "prod-empanada", Name: "Empanada", Quantity: 2, UnitPrice: money.MustParse("4.00")},
			{ProductID: "prod-churro", Name: "Churro 5pc", Quantity: 1, UnitPrice: money.MustParse("7.00")},
		},
	}
}

func TestBuildPaymentConfirmationBody(t *testing.T) {
	body, err := BuildPaymentConfirmationBody(scenarioReceipt())

	require.NoError(t, err)
	assert.Contains(t, body, "Hi Ana")
	assert.Contains(t, body, "7d1e9a3c-0b5f-4c1e-9a77-2f4d8e6b1c22")
	assert.Contains(t, body, "Empanada")
	assert.Contains(t, body, "USD 8.00")
	assert.Contains(t, body, "USD 15.00")
	assert.Contains(t, body, "pi_123")
}

func TestBuildPaymentConfirmationBody_EscapesItemNames(t *testing.T) {
	r := scenarioReceipt()
	r.Items = []Item{{ProductID: "p", Name: `<script>alert("x")</script>`, Quantity: 1, UnitPrice: money.MustParse("1.00")}}

	body, err := BuildPaymentConfirmationBody(r)

	require.NoError(t, err)
	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "&lt;script&gt;")
}

func TestBuildPaymentConfirmationBody_FallsBackToProductID(t *testing.T) {
	r := scenarioReceipt()
	r.FirstName = ""
	r.Items = []Item{{ProductID: "prod-mystery", Quantity: 1, UnitPrice: money.MustParse("1.00")}}

	body, err := BuildPaymentConfirmationBody(r)

	require.NoError(t, err)
	assert.Contains(t, body, "prod-mystery")
	assert.Contains(t, body, "We have received your payment")
}

func TestService_SendPaymentConfirmation(t *testing.T) {
	var sent []sentMail
	s := newTestService(&sent, nil)

	err := s.SendPaymentConfirmation("ana@example.com", scenarioReceipt())

	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, "smtp.example.test:1025", sent[0].addr)
	assert.Equal(t, "shop@example.com", sent[0].from)
	assert.Equal(t, []string{"ana@example.com"}, sent[0].to)
	assert.Contains(t, sent[0].msg, "Subject: Payment received for order 7d1e9a3c\r\n")
	assert.Contains(t, sent[0].msg, "Content-Type: text/html; charset=UTF-8")
}

func TestService_SendError(t *testing.T) {
	var sent []sentMail
	cause := errors.New("connection refused")
	s := newTestService(&sent, cause)

	err := s.SendPaymentConfirmation("ana@example.com", scenarioReceipt())

	assert.ErrorIs(t, err, cause)
}

func TestService_RejectsHeaderInjection(t *testing.T) {
	var sent []sentMail
	s := newTestService(&sent, nil)

	err := s.SendPaymentConfirmation("ana@example.com\r\nBcc: all@example.com", scenarioReceipt())

	assert.Error(t, err)
	assert.Empty(t, sent)
}
