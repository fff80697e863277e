// Package receipt renders plain-text order receipts into a directory served
// by the gateway and hands back the document prompt that links to them.
package receipt

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/soyeahso/orderbot/internal/config"
	"github.com/soyeahso/orderbot/internal/domain"
	"github.com/soyeahso/orderbot/internal/logging"
)

// URLPath is where the gateway serves the receipts directory.
const URLPath = "/receipts/"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

var receiptTmpl = template.Must(template.New("receipt").Funcs(template.FuncMap{
	"money": domain.FormatMoney,
	"upper": strings.ToUpper,
	"date":  func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04") },
	"day":   func(t time.Time) string { return t.UTC().Format("2006-01-02") },
	"pad":   func(n int, s string) string { return fmt.Sprintf("%-*s", n, s) },
}).Parse(`{{.Business.Name}}
{{- with .Business.Address}}
{{.}}{{end}}
{{- if or .Business.Phone .Business.Email}}
Phone: {{.Business.Phone}} | Email: {{.Business.Email}}{{end}}

ORDER RECEIPT
========================================
Order Number: {{.Order.OrderNumber}}
Customer:     {{.Order.CustomerName}}
Phone:        {{.Order.CustomerPhone}}
Order Date:   {{date .Order.CreatedAt}}
Status:       {{upper (print .Order.Status)}}
----------------------------------------
{{range .Order.Lines}}{{pad 20 .Name}} {{printf "%3d" .Quantity}} x {{money .UnitPrice}} = {{money .LineTotal}}
{{end}}----------------------------------------
TOTAL AMOUNT: {{money .Order.TotalAmount}}

Payment: {{.Order.PaymentMethod.Label}}
{{- if not .DueDate.IsZero}}
Payment Due Date: {{day .DueDate}}{{end}}

Thank you for your business!
Generated on {{date .Issued}}
`))

// Issuer writes receipts to Dir and links them under PublicURL.
type Issuer struct {
	dir       string
	publicURL string
	business  config.BusinessConfig
	log       *logging.Logger
	now       func() time.Time
}

// New creates an Issuer. An empty publicURL yields relative links.
func New(dir, publicURL string, business config.BusinessConfig, log *logging.Logger) *Issuer {
	return &Issuer{
		dir:       dir,
		publicURL: strings.TrimRight(publicURL, "/"),
		business:  business,
		log:       log.Sub("receipt"),
		now:       time.Now,
	}
}

// Dir returns the directory receipts are written to.
func (i *Issuer) Dir() string { return i.dir }

// Filename returns the receipt file name for an order number.
func Filename(orderNumber string) string {
	return "receipt_" + unsafeChars.ReplaceAllString(orderNumber, "_") + ".txt"
}

// Render produces the receipt text for o.
func (i *Issuer) Render(o *domain.Order) ([]byte, error) {
	data := struct {
		Business config.BusinessConfig
		Order    *domain.Order
		DueDate  time.Time
		Issued   time.Time
	}{Business: i.business, Order: o, Issued: i.now()}
	if o.PaymentMethod == domain.PaymentNet30 {
		data.DueDate = o.CreatedAt.AddDate(0, 0, 30)
	}

	var buf bytes.Buffer
	if err := receiptTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering receipt: %w", err)
	}
	return buf.Bytes(), nil
}

// Issue writes the receipt for o and returns a document prompt linking to it.
func (i *Issuer) Issue(_ context.Context, o *domain.Order) (domain.Prompt, error) {
	body, err := i.Render(o)
	if err != nil {
		return domain.Prompt{}, err
	}
	if err := os.MkdirAll(i.dir, 0o755); err != nil {
		return domain.Prompt{}, fmt.Errorf("creating receipts dir: %w", err)
	}

	name := Filename(o.OrderNumber)
	tmp, err := os.CreateTemp(i.dir, ".receipt-*")
	if err != nil {
		return domain.Prompt{}, fmt.Errorf("creating receipt: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return domain.Prompt{}, fmt.Errorf("writing receipt: %w", err)
	}
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return domain.Prompt{}, fmt.Errorf("writing receipt: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return domain.Prompt{}, fmt.Errorf("writing receipt: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(i.dir, name)); err != nil {
		return domain.Prompt{}, fmt.Errorf("saving receipt: %w", err)
	}

	i.log.Info().Str("order", o.OrderNumber).Str("file", name).Msg("receipt issued")
	url := i.publicURL + URLPath + name
	return domain.DocumentPrompt(url, name, "🧾 Receipt for order "+o.OrderNumber), nil
}
