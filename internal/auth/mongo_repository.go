package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const refreshTokensCollection = "refresh_tokens"

type mongoRefreshToken struct {
	TokenHash string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	UserEmail string    `bson:"user_email"`
	ExpiresAt time.Time `bson:"expires_at"`
	CreatedAt time.Time `bson:"created_at"`
}

// MongoRepository stores refresh tokens in MongoDB. A TTL index on
// expires_at lets the server delete expired entries.
type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(ctx context.Context, db *mongo.Database) (*MongoRepository, error) {
	r := &MongoRepository{col: db.Collection(refreshTokensCollection)}

	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh token indexes: %w", err)
	}

	return r, nil
}

func (r *MongoRepository) StoreRefreshToken(ctx context.Context, token *RefreshToken) error {
	_, err := r.col.InsertOne(ctx, mongoRefreshToken{
		TokenHash: token.TokenHash,
		UserID:    token.UserID.String(),
		UserEmail: token.UserEmail,
		ExpiresAt: token.ExpiresAt.UTC(),
		CreatedAt: token.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

func (r *MongoRepository) GetRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	var doc mongoRefreshToken
	err := r.col.FindOne(ctx, bson.D{{Key: "_id", Value: tokenHash}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRefreshTokenNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	userID, err := uuid.Parse(doc.UserID)
	if err != nil {
		return nil, fmt.Errorf("corrupt refresh token user_id: %w", err)
	}

	return &RefreshToken{
		TokenHash: doc.TokenHash,
		UserID:    userID,
		UserEmail: doc.UserEmail,
		ExpiresAt: doc.ExpiresAt,
		CreatedAt: doc.CreatedAt,
	}, nil
}

// CleanupExpiredTokens deletes expired entries the TTL monitor has not
// reached yet.
func (r *MongoRepository) CleanupExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.col.DeleteMany(ctx, bson.D{{Key: "expires_at", Value: bson.D{{Key: "$lte", Value: now.UTC()}}}})
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired tokens: %w", err)
	}
	return res.DeletedCount, nil
}
