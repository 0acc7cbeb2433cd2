package mail

import (
	"testing"
	"time"

	appinvoicing "github.com/erp/invoicing/internal/application/invoicing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func sampleNotice() appinvoicing.OverdueNotice {
	return appinvoicing.OverdueNotice{
		Reference:   "INV-2026-001",
		Currency:    "EUR",
		AmountDue:   "1234.50",
		AmountPaid:  "234.50",
		Remaining:   "1000.00",
		DueDate:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		DaysOverdue: 3,
	}
}

func TestTemplateNoticeRenderer_Default(t *testing.T) {
	r, err := NewTemplateNoticeRenderer("")
	require.NoError(t, err)

	subject, body, err := r.Render(sampleNotice())
	require.NoError(t, err)

	assert.Equal(t, "Payment overdue: invoice INV-2026-001", subject)
	assert.Contains(t, body, "EUR 1,234.50")
	assert.Contains(t, body, "2026-03-01")
	assert.Contains(t, body, "3 days overdue")
}

func TestTemplateNoticeRenderer_SingleDay(t *testing.T) {
	r, err := NewTemplateNoticeRenderer("en")
	require.NoError(t, err)

	n := sampleNotice()
	n.DaysOverdue = 1
	_, body, err := r.Render(n)
	require.NoError(t, err)
	assert.Contains(t, body, "1 day overdue")
}

func TestTemplateNoticeRenderer_Locale(t *testing.T) {
	en, err := NewTemplateNoticeRenderer("en")
	require.NoError(t, err)
	de, err := NewTemplateNoticeRenderer("de-DE")
	require.NoError(t, err)

	_, enBody, err := en.Render(sampleNotice())
	require.NoError(t, err)
	_, deBody, err := de.Render(sampleNotice())
	require.NoError(t, err)

	assert.NotEqual(t, enBody, deBody)
	assert.Contains(t, deBody, "01.03.2026")
}

func TestFormatMoney_LargeAmountsKeepCents(t *testing.T) {
	en := message.NewPrinter(language.English)
	de := message.NewPrinter(language.German)

	tests := []struct {
		name   string
		p      *message.Printer
		amount string
		want   string
	}{
		{"schema maximum", en, "9999999999999999.99", "EUR 9,999,999,999,999,999.99"},
		{"small", en, "0.05", "EUR 0.05"},
		{"rounds half up", en, "12.345", "EUR 12.35"},
		{"german separators", de, "1234567.89", "EUR 1.234.567,89"},
		{"not a number", en, "abc", "EUR abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatMoney(tt.p, "EUR", tt.amount))
		})
	}
}

func TestTemplateNoticeRenderer_CustomTemplates(t *testing.T) {
	r, err := NewTemplateNoticeRenderer("en",
		WithSubjectTemplate(`[{{.Currency}}] {{.Reference}}`),
		WithBodyTemplate(`remaining={{.Remaining}}`),
	)
	require.NoError(t, err)

	subject, body, err := r.Render(sampleNotice())
	require.NoError(t, err)
	assert.Equal(t, "[EUR] INV-2026-001", subject)
	assert.Equal(t, "remaining=1000.00", body)
}

func TestTemplateNoticeRenderer_Errors(t *testing.T) {
	_, err := NewTemplateNoticeRenderer("not a locale!!")
	assert.Error(t, err)

	_, err = NewTemplateNoticeRenderer("en", WithBodyTemplate(`{{.Broken`))
	assert.Error(t, err)

	r, err := NewTemplateNoticeRenderer("en")
	require.NoError(t, err)
	n := sampleNotice()
	n.Currency = "ZZZ"
	_, _, err = r.Render(n)
	assert.Error(t, err)
}
