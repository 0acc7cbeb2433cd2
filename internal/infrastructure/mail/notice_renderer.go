package mail

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	appinvoicing "github.com/erp/invoicing/internal/application/invoicing"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const defaultSubjectTemplate = `Payment overdue: invoice {{.Reference}}`

const defaultBodyTemplate = `Dear customer,

The installment of {{money .AmountDue}} on invoice {{.Reference}} was due on {{date .DueDate}} and is {{.DaysOverdue}} {{if eq .DaysOverdue 1}}day{{else}}days{{end}} overdue.

Amount paid so far: {{money .AmountPaid}}
Outstanding:        {{money .Remaining}}

Please arrange payment at your earliest convenience. If you have already paid, you can ignore this message.
`

// TemplateNoticeRenderer renders overdue notices from text templates,
// formatting amounts for the configured locale.
type TemplateNoticeRenderer struct {
	tag     language.Tag
	subject *template.Template
	body    *template.Template
}

var _ appinvoicing.NoticeRenderer = (*TemplateNoticeRenderer)(nil)

// RendererOption configures the renderer
type RendererOption func(*rendererOptions)

type rendererOptions struct {
	subject string
	body    string
}

// WithSubjectTemplate replaces the default subject template
func WithSubjectTemplate(tmpl string) RendererOption {
	return func(o *rendererOptions) { o.subject = tmpl }
}

// WithBodyTemplate replaces the default body template
func WithBodyTemplate(tmpl string) RendererOption {
	return func(o *rendererOptions) { o.body = tmpl }
}

// NewTemplateNoticeRenderer parses the templates once. locale is a BCP 47
// tag such as "en" or "de-DE"; an empty locale means English.
func NewTemplateNoticeRenderer(locale string, opts ...RendererOption) (*TemplateNoticeRenderer, error) {
	o := rendererOptions{subject: defaultSubjectTemplate, body: defaultBodyTemplate}
	for _, opt := range opts {
		opt(&o)
	}

	tag := language.English
	if strings.TrimSpace(locale) != "" {
		parsed, err := language.Parse(locale)
		if err != nil {
			return nil, fmt.Errorf("invalid notice locale %q: %w", locale, err)
		}
		tag = parsed
	}

	// placeholder funcs so Parse accepts the names; Render binds real ones
	placeholders := noticeFuncs(message.NewPrinter(tag), "", tag)
	subject, err := template.New("subject").Funcs(placeholders).Parse(o.subject)
	if err != nil {
		return nil, fmt.Errorf("parse subject template: %w", err)
	}
	body, err := template.New("body").Funcs(placeholders).Parse(o.body)
	if err != nil {
		return nil, fmt.Errorf("parse body template: %w", err)
	}
	return &TemplateNoticeRenderer{tag: tag, subject: subject, body: body}, nil
}

// Render implements NoticeRenderer
func (r *TemplateNoticeRenderer) Render(n appinvoicing.OverdueNotice) (string, string, error) {
	if _, err := currency.ParseISO(n.Currency); err != nil {
		return "", "", fmt.Errorf("unknown currency %q: %w", n.Currency, err)
	}
	funcs := noticeFuncs(message.NewPrinter(r.tag), n.Currency, r.tag)

	subject, err := execute(r.subject, funcs, n)
	if err != nil {
		return "", "", err
	}
	body, err := execute(r.body, funcs, n)
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(subject), body, nil
}

func execute(tmpl *template.Template, funcs template.FuncMap, n appinvoicing.OverdueNotice) (string, error) {
	clone, err := tmpl.Clone()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := clone.Funcs(funcs).Execute(&buf, n); err != nil {
		return "", fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

func noticeFuncs(p *message.Printer, currencyCode string, tag language.Tag) template.FuncMap {
	return template.FuncMap{
		"money": func(amount string) string {
			return formatMoney(p, currencyCode, amount)
		},
		"date": func(t time.Time) string {
			return formatDate(tag, t)
		},
	}
}

// formatMoney prints "EUR 1,234.50" with locale separators
func formatMoney(p *message.Printer, currencyCode, amount string) string {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return strings.TrimSpace(currencyCode + " " + amount)
	}
	return strings.TrimSpace(currencyCode + " " + formatDecimal(p, d))
}

// formatDecimal groups the integer part per locale and appends two fraction
// digits, never passing through float64
func formatDecimal(p *message.Printer, d decimal.Decimal) string {
	d = d.Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	whole := d.Truncate(0)
	cents := d.Sub(whole).Shift(2).IntPart()

	var digits string
	if whole.BigInt().IsInt64() {
		digits = p.Sprint(number.Decimal(whole.IntPart()))
	} else {
		digits = whole.String()
	}
	return fmt.Sprintf("%s%s%s%02d", sign, digits, decimalSeparator(p), cents)
}

func decimalSeparator(p *message.Printer) string {
	s := []rune(p.Sprint(number.Decimal(1.5, number.Scale(1))))
	if len(s) == 3 {
		return string(s[1])
	}
	return "."
}

func formatDate(tag language.Tag, t time.Time) string {
	base, _ := tag.Base()
	if base.String() == "de" {
		return t.Format("02.01.2006")
	}
	return t.Format("2006-01-02")
}
