package reports

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/360EntSecGroup-Skylar/excelize"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sparks-care/sparks-api/internal/database"
	"github.com/sparks-care/sparks-api/internal/models"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func samplePayments() []models.Payment {
	payer := uint(3)
	paid := ts("2026-03-01T08:05:00Z")
	p1 := models.Payment{
		OrderID: "SES-0A1B2C3D4E5F", Purpose: models.PurposeSession, Status: models.PaymentCompleted,
		Amount: 1500, Currency: "LKR", PayerID: &payer, Method: "VISA", PayHerePaymentID: "320025071278",
		PaidAt: &paid,
	}
	p1.CreatedAt = ts("2026-03-01T08:00:00Z")
	p2 := models.Payment{
		OrderID: "DON-AAAABBBBCCCC", Purpose: models.PurposeDonation, Status: models.PaymentPending,
		Amount: 2500.5, Currency: "LKR",
	}
	p2.CreatedAt = ts("2026-03-02T09:30:00Z")
	return []models.Payment{p1, p2}
}

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestPaymentsCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePaymentsCSV(&buf, samplePayments()))
	golden(t).Assert(t, "payments_csv", buf.Bytes())
}

func TestSessionsCSV(t *testing.T) {
	paymentID := uint(4)
	s := models.TherapySession{
		ScheduledAt:     ts("2026-03-05T10:00:00Z"),
		EndsAt:          ts("2026-03-05T11:00:00Z"),
		DurationMinutes: 60,
		Status:          models.SessionScheduled,
		PaymentID:       &paymentID,
		MeetingLink:     "https://meet.jit.si/sparks-1a2b3c4d",
	}
	s.ID = 11
	s.Patient.User.FullName = "Nimal Perera"
	s.Therapist.User.FullName = "Dr. Silva"

	var buf bytes.Buffer
	require.NoError(t, WriteSessionsCSV(&buf, []models.TherapySession{s}))
	golden(t).Assert(t, "sessions_csv", buf.Bytes())
}

func TestDonationsCSV(t *testing.T) {
	d := models.Donation{
		DonorName:  "Sunil",
		DonorEmail: "sunil@example.com",
		Anonymous:  true,
		Amount:     2500.5,
		Message:    `Keep going, "SPARKS"!`,
		Payment:    models.Payment{OrderID: "DON-AAAABBBBCCCC", Currency: "LKR", Status: models.PaymentCompleted},
	}
	d.ID = 5
	d.CreatedAt = ts("2026-03-02T09:30:00Z")

	var buf bytes.Buffer
	require.NoError(t, WriteDonationsCSV(&buf, []models.Donation{d}))
	golden(t).Assert(t, "donations_csv", buf.Bytes())
}

func TestDonationsCSVEscapesFormulas(t *testing.T) {
	d := models.Donation{
		DonorName:  `=HYPERLINK("http://evil","x")`,
		DonorEmail: "a@b.co",
		Amount:     100,
		Message:    `+cmd|' /C calc'!A0`,
		Payment:    models.Payment{OrderID: "DON-EVIL00000000", Currency: "LKR", Status: models.PaymentPending},
	}
	d.ID = 6
	d.CreatedAt = ts("2026-03-03T10:00:00Z")

	var buf bytes.Buffer
	require.NoError(t, WriteDonationsCSV(&buf, []models.Donation{d}))
	golden(t).Assert(t, "donations_csv_formula", buf.Bytes())
}

func TestEscapeCell(t *testing.T) {
	for in, want := range map[string]string{
		"":         "",
		"Nimal":    "Nimal",
		"=1+1":     "'=1+1",
		"-2":       "'-2",
		"@SUM(A1)": "'@SUM(A1)",
		"\tcalc":   "'\tcalc",
		"a=b":      "a=b",
		"1500.00":  "1500.00",
	} {
		assert.Equal(t, want, escapeCell(in), "%q", in)
	}
}

func TestPaymentsXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePaymentsXLSX(&buf, samplePayments()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	assert.Equal(t, "order_id", f.GetCellValue("Payments", "A1"))
	assert.Equal(t, "SES-0A1B2C3D4E5F", f.GetCellValue("Payments", "A2"))
	assert.Equal(t, "2500.5", f.GetCellValue("Payments", "D3"))
	assert.Equal(t, "2026-03-01T08:05:00Z", f.GetCellValue("Payments", "J2"))
	assert.Equal(t, []string{"Payments"}, sheetNames(f))
}

func sheetNames(f *excelize.File) []string {
	var names []string
	for _, name := range f.GetSheetMap() {
		names = append(names, name)
	}
	return names
}

func TestCell(t *testing.T) {
	assert.Equal(t, "A1", cell(0, 1))
	assert.Equal(t, "J2", cell(9, 2))
	assert.Equal(t, "Z3", cell(25, 3))
	assert.Equal(t, "AA4", cell(26, 4))
}

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open("sqlite://"+filepath.Join(t.TempDir(), "reports.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func TestQueries(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	for _, p := range samplePayments() {
		p := p
		require.NoError(t, db.Create(&p).Error)
	}
	var donationPayment models.Payment
	require.NoError(t, db.Where("order_id = ?", "DON-AAAABBBBCCCC").First(&donationPayment).Error)
	require.NoError(t, db.Create(&models.Donation{PaymentID: donationPayment.ID, DonorName: "Sunil", Amount: 2500.5}).Error)

	all, err := Payments(ctx, db, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	sessions, err := Payments(ctx, db, Filter{Purpose: models.PurposeSession, Status: models.PaymentCompleted})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "SES-0A1B2C3D4E5F", sessions[0].OrderID)

	donations, err := Donations(ctx, db, Filter{})
	require.NoError(t, err)
	require.Len(t, donations, 1)
	assert.Equal(t, "DON-AAAABBBBCCCC", donations[0].Payment.OrderID)

	none, err := Donations(ctx, db, Filter{Status: models.PaymentCompleted})
	require.NoError(t, err)
	assert.Empty(t, none)

	upcoming, err := Sessions(ctx, db, Filter{From: ts("2026-01-01T00:00:00Z")})
	require.NoError(t, err)
	assert.Empty(t, upcoming)
}
