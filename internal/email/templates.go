package email

import (
	"html/template"
	"strings"

	"github.com/example/ec-checkout/internal/money"
)

// Item is one order line as shown in an email
type Item struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice money.Amount
}

// Receipt is the data rendered into a payment confirmation
type Receipt struct {
	OrderID    string
	FirstName  string
	Currency   string
	Total      money.Amount
	PaymentRef string
	Items      []Item
}

type receiptRow struct {
	Name     string
	Quantity int
	Price    string
	Subtotal string
}

var paymentConfirmationTmpl = template.Must(template.New("payment_confirmation").Parse(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); padding: 30px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 24px;">Thank you for your order</h1>
	</div>

	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		<p style="margin-top: 0;">{{if .FirstName}}Hi {{.FirstName}}, we{{else}}We{{end}} have received your payment and are preparing your order.</p>

		<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
			<p style="margin: 0; font-size: 14px; color: #666;">Order number</p>
			<p style="margin: 5px 0 0 0; font-size: 18px; font-weight: bold; font-family: monospace;">{{.OrderID}}</p>
		</div>

		<h2 style="font-size: 18px; border-bottom: 2px solid #667eea; padding-bottom: 10px;">Order summary</h2>

		<table style="width: 100%; border-collapse: collapse; margin: 20px 0;">
			<thead>
				<tr style="background: #f8f9fa;">
					<th style="padding: 12px; text-align: left; font-weight: 600;">Item</th>
					<th style="padding: 12px; text-align: center; font-weight: 600;">Qty</th>
					<th style="padding: 12px; text-align: right; font-weight: 600;">Price</th>
					<th style="padding: 12px; text-align: right; font-weight: 600;">Subtotal</th>
				</tr>
			</thead>
			<tbody>
			{{- range .Rows}}
				<tr>
					<td style="padding: 12px; border-bottom: 1px solid #eee;">{{.Name}}</td>
					<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: center;">{{.Quantity}}</td>
					<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">{{.Price}}</td>
					<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">{{.Subtotal}}</td>
				</tr>
			{{- end}}
			</tbody>
		</table>

		<div style="text-align: right; padding: 20px; background: #f8f9fa; border-radius: 5px;">
			<span style="font-size: 14px; color: #666;">Total paid</span>
			<span style="font-size: 24px; font-weight: bold; color: #667eea; margin-left: 10px;">{{.Total}}</span>
		</div>
		{{- if .PaymentRef}}
		<p style="font-size: 12px; color: #999;">Payment reference: {{.PaymentRef}}</p>
		{{- end}}

		<hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">

		<p style="font-size: 12px; color: #999; margin-bottom: 0;">
			This is an automated message. If you have any questions, please contact support.
		</p>
	</div>
</body>
</html>`))

// BuildPaymentConfirmationBody renders the HTML body of a payment confirmation.
// Item names come from the shopper's cart and are escaped.
func BuildPaymentConfirmationBody(r Receipt) (string, error) {
	rows := make([]receiptRow, len(r.Items))
	for i, item := range r.Items {
		name := item.Name
		if name == "" {
			name = item.ProductID
		}
		rows[i] = receiptRow{
			Name:     name,
			Quantity: item.Quantity,
			Price:    formatAmount(item.UnitPrice, r.Currency),
			Subtotal: formatAmount(item.UnitPrice.Times(item.Quantity), r.Currency),
		}
	}

	var b strings.Builder
	err := paymentConfirmationTmpl.Execute(&b, struct {
		OrderID    string
		FirstName  string
		PaymentRef string
		Total      string
		Rows       []receiptRow
	}{
		OrderID:    r.OrderID,
		FirstName:  r.FirstName,
		PaymentRef: r.PaymentRef,
		Total:      formatAmount(r.Total, r.Currency),
		Rows:       rows,
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}
