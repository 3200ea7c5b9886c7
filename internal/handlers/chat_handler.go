package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sparks-care/sparks-api/internal/models"
)

// messagingReady answers 503 when no message store is configured.
func (h *Handler) messagingReady(c *gin.Context) bool {
	if h.Messages == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Messaging is not available"})
		return false
	}
	return true
}

// careRelated decides who may message whom: staff with anyone, and a
// therapist with their patients and those patients' guardians.
func (h *Handler) careRelated(a, b *models.User) (bool, error) {
	if isStaff(a.Role) || isStaff(b.Role) {
		return true, nil
	}
	if b.Role == models.RoleTherapist {
		a, b = b, a
	}
	if a.Role != models.RoleTherapist {
		return false, nil
	}
	therapist, err := h.therapistByUser(a.ID)
	if err != nil {
		return false, err
	}

	var patientIDs []uint
	switch b.Role {
	case models.RolePatient, models.RoleGuardian:
		if patientIDs, err = h.patientsOf(b.ID, b.Role); err != nil {
			return false, err
		}
	default:
		return false, nil
	}
	if len(patientIDs) == 0 {
		return false, nil
	}
	var n int64
	err = h.DB.Model(&models.TherapySession{}).
		Where("therapist_id = ? AND patient_id IN ?", therapist.ID, patientIDs).
		Count(&n).Error
	return n > 0, err
}

func (h *Handler) SendMessage(c *gin.Context) {
	if !h.messagingReady(c) {
		return
	}
	userID, _ := currentUser(c)
	var req struct {
		RecipientID uint   `json:"recipientId" binding:"required"`
		Body        string `json:"body" binding:"required,notblank,max=4000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format, expecting {\"recipientId\": ..., \"body\": \"...\"}"})
		return
	}
	if req.RecipientID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot message yourself"})
		return
	}

	var sender, recipient models.User
	if err := h.DB.First(&sender, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err := h.DB.First(&recipient, req.RecipientID).Error; err != nil || !recipient.IsActive {
		c.JSON(http.StatusNotFound, gin.H{"error": "Recipient not found"})
		return
	}
	ok, err := h.careRelated(&sender, &recipient)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message"})
		return
	}
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only message people in your care circle"})
		return
	}

	msg := models.Message{
		ConversationID: models.ConversationID(sender.ID, recipient.ID),
		SenderID:       sender.ID,
		RecipientID:    recipient.ID,
		Body:           strings.TrimSpace(req.Body),
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.Messages.Save(c.Request.Context(), &msg); err != nil {
		h.Log.Error("save message failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message"})
		return
	}

	preview := msg.Body
	if r := []rune(preview); len(r) > 80 {
		preview = string(r[:80]) + "..."
	}
	err = h.NotificationSvc.Notify(c.Request.Context(), models.Notification{
		UserID:  recipient.ID,
		Type:    models.NotifyMessage,
		Title:   fmt.Sprintf("New message from %s", sender.FullName),
		Message: preview,
		Link:    fmt.Sprintf("/messages/%d", sender.ID),
	})
	if err != nil {
		h.Log.Warn("message notification failed", err)
	}

	c.JSON(http.StatusCreated, msg)
}

// GetThread returns the conversation with :userId, oldest first. Clients poll
// with ?since=<RFC3339 of the last message>. Incoming messages are marked read.
func (h *Handler) GetThread(c *gin.Context) {
	if !h.messagingReady(c) {
		return
	}
	userID, _ := currentUser(c)
	otherID, ok := paramID(c, "userId")
	if !ok {
		return
	}

	var since time.Time
	if s := c.Query("since"); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid since, use RFC3339"})
			return
		}
		since = t
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	ctx := c.Request.Context()
	messages, err := h.Messages.Thread(ctx, userID, otherID, since, limit)
	if err != nil {
		h.Log.Error("load thread failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve messages"})
		return
	}
	if _, err := h.Messages.MarkRead(ctx, userID, otherID, time.Now().UTC()); err != nil {
		h.Log.Warn("mark messages read failed", err)
	}
	c.JSON(http.StatusOK, messages)
}

func (h *Handler) UnreadMessages(c *gin.Context) {
	if !h.messagingReady(c) {
		return
	}
	userID, _ := currentUser(c)
	n, err := h.Messages.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": n})
}
