package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sparks-care/sparks-api/internal/models"
)

var ticketStatuses = map[string]bool{
	models.TicketOpen:       true,
	models.TicketInProgress: true,
	models.TicketResolved:   true,
	models.TicketClosed:     true,
}

var ticketPriorities = map[string]bool{"LOW": true, "MEDIUM": true, "HIGH": true}

func (h *Handler) CreateTicket(c *gin.Context) {
	userID, _ := currentUser(c)
	var req struct {
		Subject     string `json:"subject" binding:"required,notblank,max=255"`
		Description string `json:"description" binding:"required,notblank"`
		Priority    string `json:"priority" binding:"omitempty,oneof=LOW MEDIUM HIGH"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Priority == "" {
		req.Priority = "MEDIUM"
	}

	ticket := models.SupportTicket{
		UserID:      userID,
		Subject:     req.Subject,
		Description: req.Description,
		Status:      models.TicketOpen,
		Priority:    req.Priority,
	}
	if err := h.DB.Create(&ticket).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create ticket"})
		return
	}

	err := h.NotificationSvc.NotifyRoles(c.Request.Context(), models.Notification{
		Type:    models.NotifySystem,
		Title:   "New support ticket",
		Message: ticket.Subject,
		Link:    "/admin/tickets",
	}, models.RoleAdmin, models.RoleManager)
	if err != nil {
		h.Log.Warn("ticket notification failed", err)
	}
	c.JSON(http.StatusCreated, ticket)
}

func (h *Handler) MyTickets(c *gin.Context) {
	userID, _ := currentUser(c)
	tickets := make([]models.SupportTicket, 0)
	if err := h.DB.Where("user_id = ?", userID).Order("created_at DESC").Find(&tickets).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve tickets"})
		return
	}
	c.JSON(http.StatusOK, tickets)
}

func (h *Handler) AdminTickets(c *gin.Context) {
	q := h.DB.Preload("User")
	if status := c.Query("status"); status != "" {
		if !ticketStatuses[status] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
			return
		}
		q = q.Where("status = ?", status)
	}
	tickets := make([]models.SupportTicket, 0)
	if err := q.Order("created_at DESC").Find(&tickets).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve tickets"})
		return
	}
	c.JSON(http.StatusOK, tickets)
}

// UpdateTicket changes status, priority or the admin response and tells the
// submitter about it.
func (h *Handler) UpdateTicket(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Status        string  `json:"status"`
		Priority      string  `json:"priority"`
		AdminResponse *string `json:"adminResponse"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	updates := map[string]interface{}{}
	if req.Status != "" {
		if !ticketStatuses[req.Status] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
			return
		}
		updates["status"] = req.Status
	}
	if req.Priority != "" {
		if !ticketPriorities[req.Priority] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid priority"})
			return
		}
		updates["priority"] = req.Priority
	}
	if req.AdminResponse != nil {
		updates["admin_response"] = *req.AdminResponse
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No update fields provided"})
		return
	}

	var ticket models.SupportTicket
	if err := h.DB.First(&ticket, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Ticket not found"})
		return
	}
	if err := h.DB.Model(&ticket).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update ticket"})
		return
	}
	h.DB.First(&ticket, id)

	err := h.NotificationSvc.Notify(c.Request.Context(), models.Notification{
		UserID:  ticket.UserID,
		Type:    models.NotifySystem,
		Title:   "Support ticket updated",
		Message: ticket.Subject + " is now " + ticket.Status + ".",
		Link:    "/support",
	})
	if err != nil {
		h.Log.Warn("ticket notification failed", err)
	}
	c.JSON(http.StatusOK, ticket)
}
