package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// InvoiceStatus mirrors the WispHub invoice states.
type InvoiceStatus string

const (
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusUnpaid    InvoiceStatus = "unpaid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// Invoice is the CRM's view of one invoice. Amount keeps the CRM's native
// decimal string; use AmountCents for arithmetic and FormatAmount for display.
type Invoice struct {
	ID        string        `json:"id"`
	Number    string        `json:"number"`
	Amount    string        `json:"amount"`
	Status    InvoiceStatus `json:"status"`
	DueDate   time.Time     `json:"due_date"`
	CreatedAt time.Time     `json:"created_at,omitempty"`
	PDFURL    string        `json:"pdf_url,omitempty"`
}

// AmountCents parses the invoice amount into integer centavos.
func (i Invoice) AmountCents() (int64, error) {
	return ParseCents(i.Amount)
}

// Customer is the CRM's view of one subscriber.
type Customer struct {
	ID             string    `json:"id"`
	Cedula         string    `json:"document_number"`
	NombreCompleto string    `json:"nombre_completo"`
	Email          string    `json:"email,omitempty"`
	Telefono       string    `json:"telefono,omitempty"`
	Direccion      string    `json:"direccion,omitempty"`
	Estado         string    `json:"estado,omitempty"`
	Plan           string    `json:"plan,omitempty"`
	Servicios      []Service `json:"servicios,omitempty"`
}

// Service is one active subscription on a customer account.
type Service struct {
	ID     string `json:"id"`
	Nombre string `json:"nombre"`
	Plan   string `json:"plan,omitempty"`
	Estado string `json:"estado,omitempty"`
}

// PaymentRequest describes a payment to register against invoices.
type PaymentRequest struct {
	AmountCents int64
	InvoiceIDs  []string
	Method      string
	Reference   string
	Notes       string
}

// Payment is the CRM's acknowledgment of a registered payment.
type Payment struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
}

// TicketRequest describes a support ticket to open.
type TicketRequest struct {
	Subject     string
	Description string
	Priority    string
	Category    string
}

// Ticket is the CRM's view of a support ticket.
type Ticket struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
}

// displayLocation fixes the time zone for due-date arithmetic. The business
// operates on Colombian local time; a fixed offset avoids depending on the
// host's tzdata.
var displayLocation = func() *time.Location {
	if loc, err := time.LoadLocation("America/Bogota"); err == nil {
		return loc
	}
	return time.FixedZone("-05", -5*60*60)
}()

// DaysUntilDue returns the whole-day difference between now and the due date
// in the business time zone. Negative means overdue.
func DaysUntilDue(due, now time.Time) int {
	d := due.In(displayLocation)
	n := now.In(displayLocation)
	dueDay := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, displayLocation)
	nowDay := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, displayLocation)
	return int(dueDay.Sub(nowDay).Hours() / 24)
}

// NearDue reports whether the invoice falls in the inclusive 0..5 day window.
func (i Invoice) NearDue(now time.Time) bool {
	d := DaysUntilDue(i.DueDate, now)
	return d >= 0 && d <= NearDueWindowDays
}

// Overdue reports whether the invoice's due date has passed.
func (i Invoice) Overdue(now time.Time) bool {
	return DaysUntilDue(i.DueDate, now) < 0
}

// ParseCents converts a decimal money string ("1234.50", "$ 1,234.5") into
// integer centavos. More than two decimal places is rejected rather than
// silently rounded.
func ParseCents(s string) (int64, error) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.ReplaceAll(cleaned, "$", "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return 0, ErrInvalidAmount
	}
	neg := false
	if strings.HasPrefix(cleaned, "-") {
		neg = true
		cleaned = cleaned[1:]
	}
	whole, frac := cleaned, ""
	if idx := strings.IndexByte(cleaned, '.'); idx >= 0 {
		whole, frac = cleaned[:idx], cleaned[idx+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("%w: %q has more than two decimal places", ErrInvalidAmount, s)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	cents := w*100 + f
	if neg {
		cents = -cents
	}
	return cents, nil
}

// FormatCents renders centavos as a display amount with thousands separators.
func FormatCents(cents int64) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}
	whole := cents / 100
	frac := cents % 100
	digits := strconv.FormatInt(whole, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s$%s.%02d", sign, b.String(), frac)
}

// FormatAmount renders a CRM decimal string for display, falling back to the
// raw string if it does not parse.
func FormatAmount(s string) string {
	cents, err := ParseCents(s)
	if err != nil {
		return s
	}
	return FormatCents(cents)
}

// FormatDate renders a date in the business time zone for user messages.
func FormatDate(t time.Time) string {
	return t.In(displayLocation).Format("02/01/2006")
}
