package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message lives in MongoDB, not in the relational store.
type Message struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ConversationID string             `bson:"conversationId" json:"conversationId"`
	SenderID       uint               `bson:"senderId" json:"senderId"`
	RecipientID    uint               `bson:"recipientId" json:"recipientId"`
	Body           string             `bson:"body" json:"body"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
	ReadAt         *time.Time         `bson:"readAt,omitempty" json:"readAt,omitempty"`
}

// ConversationID is stable regardless of who sends first.
func ConversationID(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}
