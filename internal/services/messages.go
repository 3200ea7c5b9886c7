package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sparks-care/sparks-api/internal/models"
)

// MessageStore keeps direct messages between two users.
type MessageStore interface {
	Save(ctx context.Context, msg *models.Message) error
	// Thread returns messages between a and b created after since, oldest first.
	Thread(ctx context.Context, a, b uint, since time.Time, limit int) ([]models.Message, error)
	// MarkRead flags everything other sent to reader as read.
	MarkRead(ctx context.Context, readerID, otherID uint, at time.Time) (int64, error)
	UnreadCount(ctx context.Context, userID uint) (int64, error)
}

type MongoMessageStore struct {
	coll *mongo.Collection
}

var _ MessageStore = (*MongoMessageStore)(nil)

func NewMongoMessageStore(db *mongo.Database) *MongoMessageStore {
	return &MongoMessageStore{coll: db.Collection("messages")}
}

// EnsureIndexes creates the thread and unread indexes if missing.
func (s *MongoMessageStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversationId", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "recipientId", Value: 1}, {Key: "readAt", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create message indexes: %w", err)
	}
	return nil
}

func (s *MongoMessageStore) Save(ctx context.Context, msg *models.Message) error {
	if msg.ConversationID == "" {
		msg.ConversationID = models.ConversationID(msg.SenderID, msg.RecipientID)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	res, err := s.coll.InsertOne(ctx, msg)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		msg.ID = id
	}
	return nil
}

func (s *MongoMessageStore) Thread(ctx context.Context, a, b uint, since time.Time, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	filter := bson.M{"conversationId": models.ConversationID(a, b)}
	if !since.IsZero() {
		filter["createdAt"] = bson.M{"$gt": since}
	}
	findOptions := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := s.coll.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	defer cursor.Close(ctx)

	messages := make([]models.Message, 0)
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return messages, nil
}

func (s *MongoMessageStore) MarkRead(ctx context.Context, readerID, otherID uint, at time.Time) (int64, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.M{"senderId": otherID, "recipientId": readerID, "readAt": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"readAt": at}})
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *MongoMessageStore) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"recipientId": userID, "readAt": bson.M{"$exists": false}})
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}
