package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sparks-care/sparks-api/internal/reports"
)

func attachment(c *gin.Context, name, contentType string, body []byte) {
	filename := fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102"), name)
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, body)
}

func (h *Handler) ExportPaymentsCSV(c *gin.Context) {
	f, ok := reportFilter(c)
	if !ok {
		return
	}
	payments, err := reports.Payments(c.Request.Context(), h.DB, f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export payments"})
		return
	}
	var buf bytes.Buffer
	if err := reports.WritePaymentsCSV(&buf, payments); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export payments"})
		return
	}
	attachment(c, "payments.csv", "text/csv", buf.Bytes())
}

func (h *Handler) ExportPaymentsXLSX(c *gin.Context) {
	f, ok := reportFilter(c)
	if !ok {
		return
	}
	payments, err := reports.Payments(c.Request.Context(), h.DB, f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export payments"})
		return
	}
	var buf bytes.Buffer
	if err := reports.WritePaymentsXLSX(&buf, payments); err != nil {
		h.Log.Error("xlsx export failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export payments"})
		return
	}
	attachment(c, "payments.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func (h *Handler) ExportSessionsCSV(c *gin.Context) {
	f, ok := reportFilter(c)
	if !ok {
		return
	}
	sessions, err := reports.Sessions(c.Request.Context(), h.DB, f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export sessions"})
		return
	}
	var buf bytes.Buffer
	if err := reports.WriteSessionsCSV(&buf, sessions); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export sessions"})
		return
	}
	attachment(c, "sessions.csv", "text/csv", buf.Bytes())
}

func (h *Handler) ExportDonationsCSV(c *gin.Context) {
	f, ok := reportFilter(c)
	if !ok {
		return
	}
	donations, err := reports.Donations(c.Request.Context(), h.DB, f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export donations"})
		return
	}
	var buf bytes.Buffer
	if err := reports.WriteDonationsCSV(&buf, donations); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export donations"})
		return
	}
	attachment(c, "donations.csv", "text/csv", buf.Bytes())
}
