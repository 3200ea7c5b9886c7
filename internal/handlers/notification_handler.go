package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sparks-care/sparks-api/internal/models"
)

func (h *Handler) GetNotifications(c *gin.Context) {
	userID, _ := currentUser(c)
	q := h.DB.Where("user_id = ?", userID)
	if c.Query("unread") == "true" {
		q = q.Where("is_read = ?", false)
	}
	notes := make([]models.Notification, 0)
	if err := q.Order("created_at DESC").Limit(100).Find(&notes).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve notifications"})
		return
	}
	c.JSON(http.StatusOK, notes)
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	userID, _ := currentUser(c)
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	res := h.DB.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notification"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

func (h *Handler) MarkAllNotificationsRead(c *gin.Context) {
	userID, _ := currentUser(c)
	res := h.DB.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": res.RowsAffected})
}

// NotificationStream keeps an SSE connection open and forwards every
// notification created for the caller. A comment line goes out every
// keepAlive so proxies don't close an idle stream.
func (h *Handler) NotificationStream(c *gin.Context) {
	hub := h.NotificationSvc.Broadcaster()
	if hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Live notifications are not available"})
		return
	}
	userID, _ := currentUser(c)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ch := hub.Register(userID)
	defer hub.Unregister(userID, ch)

	fmt.Fprintf(c.Writer, "data: %s\n\n", "connected")
	c.Writer.Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()
	for {
		select {
		case message, ok := <-ch:
			if !ok {
				// dropped by the broadcaster as too slow
				return
			}
			fmt.Fprintf(c.Writer, "event: notification\ndata: %s\n\n", message)
			c.Writer.Flush()
		case <-ticker.C:
			fmt.Fprint(c.Writer, ": ping\n\n")
			c.Writer.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}

var keepAlive = 25 * time.Second
