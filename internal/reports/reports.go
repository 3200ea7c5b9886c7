// Package reports turns payments, sessions and donations into CSV and Excel
// exports for administrators.
package reports

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/360EntSecGroup-Skylar/excelize"
	"gorm.io/gorm"

	"github.com/sparks-care/sparks-api/internal/models"
	"github.com/sparks-care/sparks-api/internal/payhere"
)

// Filter narrows an export. Zero values mean "any".
type Filter struct {
	Status  string
	Purpose string
	From    time.Time
	To      time.Time
}

func (f Filter) apply(q *gorm.DB, timeColumn string) *gorm.DB {
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if !f.From.IsZero() {
		q = q.Where(timeColumn+" >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		q = q.Where(timeColumn+" < ?", f.To.UTC())
	}
	return q
}

func Payments(ctx context.Context, db *gorm.DB, f Filter) ([]models.Payment, error) {
	q := f.apply(db.WithContext(ctx).Model(&models.Payment{}), "created_at")
	if f.Purpose != "" {
		q = q.Where("purpose = ?", f.Purpose)
	}
	var payments []models.Payment
	if err := q.Order("created_at DESC").Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("load payments: %w", err)
	}
	return payments, nil
}

func Sessions(ctx context.Context, db *gorm.DB, f Filter) ([]models.TherapySession, error) {
	q := f.apply(db.WithContext(ctx).Model(&models.TherapySession{}), "scheduled_at")
	var sessions []models.TherapySession
	if err := q.Preload("Patient.User").Preload("Therapist.User").Order("scheduled_at DESC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	return sessions, nil
}

// Donations only returns donations whose payment matches f.Status, when set.
func Donations(ctx context.Context, db *gorm.DB, f Filter) ([]models.Donation, error) {
	q := db.WithContext(ctx).Model(&models.Donation{}).
		Joins("JOIN payments ON payments.id = donations.payment_id").
		Preload("Payment")
	if f.Status != "" {
		q = q.Where("payments.status = ?", f.Status)
	}
	if !f.From.IsZero() {
		q = q.Where("donations.created_at >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		q = q.Where("donations.created_at < ?", f.To.UTC())
	}
	var donations []models.Donation
	if err := q.Order("donations.created_at DESC").Find(&donations).Error; err != nil {
		return nil, fmt.Errorf("load donations: %w", err)
	}
	return donations, nil
}

var paymentHeader = []string{"order_id", "purpose", "status", "amount", "currency", "payer_id", "method", "payhere_payment_id", "created_at", "paid_at"}

func paymentRow(p models.Payment) []string {
	return []string{
		p.OrderID,
		p.Purpose,
		p.Status,
		payhere.FormatAmount(p.Amount),
		p.Currency,
		optUint(p.PayerID),
		p.Method,
		p.PayHerePaymentID,
		stamp(p.CreatedAt),
		optStamp(p.PaidAt),
	}
}

var sessionHeader = []string{"id", "scheduled_at", "ends_at", "duration_minutes", "status", "patient", "therapist", "payment_id", "meeting_link"}

func sessionRow(s models.TherapySession) []string {
	return []string{
		strconv.FormatUint(uint64(s.ID), 10),
		stamp(s.ScheduledAt),
		stamp(s.EndsAt),
		strconv.Itoa(s.DurationMinutes),
		s.Status,
		s.Patient.User.FullName,
		s.Therapist.User.FullName,
		optUint(s.PaymentID),
		s.MeetingLink,
	}
}

var donationHeader = []string{"id", "order_id", "donor_name", "donor_email", "amount", "currency", "status", "message", "created_at"}

func donationRow(d models.Donation) []string {
	name := d.DonorName
	if d.Anonymous {
		name = "Anonymous"
	}
	return []string{
		strconv.FormatUint(uint64(d.ID), 10),
		d.Payment.OrderID,
		name,
		d.DonorEmail,
		payhere.FormatAmount(d.Amount),
		d.Payment.Currency,
		d.Payment.Status,
		d.Message,
		stamp(d.CreatedAt),
	}
}

func WritePaymentsCSV(w io.Writer, payments []models.Payment) error {
	rows := make([][]string, 0, len(payments))
	for _, p := range payments {
		rows = append(rows, paymentRow(p))
	}
	return writeCSV(w, paymentHeader, rows)
}

func WriteSessionsCSV(w io.Writer, sessions []models.TherapySession) error {
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, sessionRow(s))
	}
	return writeCSV(w, sessionHeader, rows)
}

func WriteDonationsCSV(w io.Writer, donations []models.Donation) error {
	rows := make([][]string, 0, len(donations))
	for _, d := range donations {
		rows = append(rows, donationRow(d))
	}
	return writeCSV(w, donationHeader, rows)
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		for i, v := range row {
			row[i] = escapeCell(v)
		}
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// escapeCell stops spreadsheets from evaluating user text as a formula.
func escapeCell(v string) string {
	if v != "" && strings.ContainsRune("=+-@\t\r", rune(v[0])) {
		return "'" + v
	}
	return v
}

// WritePaymentsXLSX writes a single "Payments" sheet. Amounts are numeric
// cells so totals work in Excel.
func WritePaymentsXLSX(w io.Writer, payments []models.Payment) error {
	file := excelize.NewFile()
	sheet := "Payments"
	index := file.NewSheet(sheet)
	file.DeleteSheet("Sheet1")
	file.SetActiveSheet(index)

	for i, h := range paymentHeader {
		file.SetCellValue(sheet, cell(i, 1), h)
	}
	for r, p := range payments {
		row := paymentRow(p)
		for i, v := range row {
			if paymentHeader[i] == "amount" {
				file.SetCellValue(sheet, cell(i, r+2), p.Amount)
				continue
			}
			file.SetCellValue(sheet, cell(i, r+2), v)
		}
	}
	return file.Write(w)
}

// cell turns a zero-based column and one-based row into "A1" form.
func cell(col, row int) string {
	name := ""
	for col >= 0 {
		name = string(rune('A'+col%26)) + name
		col = col/26 - 1
	}
	return fmt.Sprintf("%s%d", name, row)
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func optStamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return stamp(*t)
}

func optUint(v *uint) string {
	if v == nil {
		return ""
	}
	return strconv.FormatUint(uint64(*v), 10)
}
