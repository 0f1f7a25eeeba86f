package user

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

const usersCollection = "users"

type mongoServices struct {
	Facebook string `bson:"facebook,omitempty"`
	Google   string `bson:"google,omitempty"`
}

type mongoUser struct {
	ID           string        `bson:"_id"`
	Email        string        `bson:"email"`
	PasswordHash string        `bson:"password_hash"`
	Name         string        `bson:"name"`
	Role         string        `bson:"role"`
	Picture      string        `bson:"picture"`
	Services     mongoServices `bson:"services"`
	CreatedAt    time.Time     `bson:"created_at"`
	UpdatedAt    time.Time     `bson:"updated_at"`
}

// MongoRepository stores users in a MongoDB collection with a unique index
// on email and sparse unique indexes on each provider link.
type MongoRepository struct {
	col *mongo.Collection
}

// NewMongoRepository returns a repository over db and ensures its indexes.
func NewMongoRepository(ctx context.Context, db *mongo.Database) (*MongoRepository, error) {
	r := &MongoRepository{col: db.Collection(usersCollection)}
	if err := r.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *MongoRepository) ensureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "services.facebook", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
		{Keys: bson.D{{Key: "services.google", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	}

	if _, err := r.col.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}
	return nil
}

func (r *MongoRepository) Create(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = mongoTime()
	}
	u.UpdatedAt = u.CreatedAt

	_, err := r.col.InsertOne(ctx, toMongoUser(u))
	return wrapMongoError(err)
}

func (r *MongoRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id.String()}})
}

func (r *MongoRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: email}})
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.D) (*User, error) {
	var doc mongoUser
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, wrapMongoError(err)
	}
	return fromMongoUser(&doc)
}

func (r *MongoRepository) List(ctx context.Context, f Filter, p Page) ([]*User, error) {
	filter := bson.D{}
	if f.Name != nil {
		filter = append(filter, bson.E{Key: "name", Value: *f.Name})
	}
	if f.Email != nil {
		filter = append(filter, bson.E{Key: "email", Value: *f.Email})
	}
	if f.Role != nil {
		filter = append(filter, bson.E{Key: "role", Value: string(*f.Role)})
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(p.Skip)).
		SetLimit(int64(p.Limit))

	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, wrapMongoError(err)
	}
	defer cursor.Close(ctx)

	users := []*User{}
	for cursor.Next(ctx) {
		var doc mongoUser
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode user: %w", err)
		}
		u, err := fromMongoUser(&doc)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *MongoRepository) Update(ctx context.Context, u *User) error {
	u.UpdatedAt = mongoTime()
	doc := toMongoUser(u)

	res, err := r.col.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: doc.ID}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "email", Value: doc.Email},
			{Key: "password_hash", Value: doc.PasswordHash},
			{Key: "name", Value: doc.Name},
			{Key: "role", Value: doc.Role},
			{Key: "picture", Value: doc.Picture},
			{Key: "services", Value: doc.Services},
			{Key: "updated_at", Value: doc.UpdatedAt},
		}}},
	)
	if err != nil {
		return wrapMongoError(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.col.DeleteOne(ctx, bson.D{{Key: "_id", Value: id.String()}})
	if err != nil {
		return wrapMongoError(err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertOAuth links identity to the user carrying the provider link, then
// to the user with the same email, and inserts candidate otherwise. A
// concurrent insert of the same identity fails on a unique index, after
// which the lookup is repeated and links the winning document.
func (r *MongoRepository) UpsertOAuth(ctx context.Context, identity OAuthIdentity, candidate *User) (*User, error) {
	if !identity.Provider.Valid() {
		return nil, fmt.Errorf("unsupported provider %q", identity.Provider)
	}

	u, err := r.linkExisting(ctx, identity)
	if !errors.Is(err, ErrNotFound) {
		return u, err
	}

	err = r.Create(ctx, candidate)
	if errors.Is(err, ErrDuplicateEmail) {
		return r.linkExisting(ctx, identity)
	}
	if err != nil {
		return nil, err
	}
	return candidate, nil
}

func (r *MongoRepository) linkExisting(ctx context.Context, identity OAuthIdentity) (*User, error) {
	linkField := "services." + string(identity.Provider)

	// Pipeline update so name and picture are only filled when empty.
	update := mongo.Pipeline{{{Key: "$set", Value: bson.D{
		{Key: linkField, Value: bson.D{{Key: "$literal", Value: identity.ExternalID}}},
		{Key: "name", Value: fillIfEmpty("$name", identity.Name)},
		{Key: "picture", Value: fillIfEmpty("$picture", identity.Picture)},
		{Key: "updated_at", Value: mongoTime()},
	}}}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	filters := []bson.D{{{Key: "email", Value: identity.Email}}}
	if identity.ExternalID != "" {
		filters = append([]bson.D{{{Key: linkField, Value: identity.ExternalID}}}, filters...)
	}

	for _, filter := range filters {
		var doc mongoUser
		err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			continue
		}
		if err != nil {
			return nil, wrapMongoError(err)
		}
		return fromMongoUser(&doc)
	}

	return nil, ErrNotFound
}

func fillIfEmpty(field, value string) bson.D {
	return bson.D{{Key: "$cond", Value: bson.A{
		bson.D{{Key: "$in", Value: bson.A{field, bson.A{"", nil}}}},
		bson.D{{Key: "$literal", Value: value}},
		field,
	}}}
}

// wrapMongoError maps driver errors to domain errors.
func wrapMongoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateEmail
	}
	return err
}

// mongoTime is the current time at the precision MongoDB keeps.
func mongoTime() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func toMongoUser(u *User) *mongoUser {
	return &mongoUser{
		ID:           u.ID.String(),
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Name:         u.Name,
		Role:         string(u.Role),
		Picture:      u.Picture,
		Services: mongoServices{
			Facebook: u.Providers[ProviderFacebook],
			Google:   u.Providers[ProviderGoogle],
		},
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func fromMongoUser(doc *mongoUser) (*User, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", doc.ID, err)
	}

	u := &User{
		ID:           id,
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		Name:         doc.Name,
		Role:         parseRole(doc.Role),
		Picture:      doc.Picture,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
	if doc.Services.Facebook != "" || doc.Services.Google != "" {
		u.Providers = ProviderLinks{}
		if doc.Services.Facebook != "" {
			u.Providers[ProviderFacebook] = doc.Services.Facebook
		}
		if doc.Services.Google != "" {
			u.Providers[ProviderGoogle] = doc.Services.Google
		}
	}
	return u, nil
}
