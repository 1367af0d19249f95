package data

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/PaulBabatuyi/realtime-chat/internal/normalize"
)

// searchLimit caps search-users results.
const searchLimit = 50

// UsersStore performs user DB operations.
type UsersStore struct {
	// coll is the "users" collection
	coll *mongo.Collection
}

// NewUsersStore returns a UsersStore using the provided collection.
func NewUsersStore(coll *mongo.Collection) *UsersStore {
	return &UsersStore{coll: coll}
}

// CreateUser inserts a new user document with hashed password.
func (u *UsersStore) CreateUser(ctx context.Context, username, hashedPassword string) (*User, error) {
	name := normalize.Username(username)
	if name == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}

	now := time.Now()
	user := &User{
		Username:  name,
		Password:  hashedPassword, // already hashed by auth.HashPassword()
		CreatedAt: now,
		UpdatedAt: now,
	}

	result, err := u.coll.InsertOne(ctx, user)
	if err != nil {
		// unique index on username
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("user %q: %w", user.Username, ErrUserExists)
		}
		return nil, err
	}

	user.ID = result.InsertedID.(bson.ObjectID)
	return user, nil
}

// GetUserByUsername finds a user by username.
func (u *UsersStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User

	err := u.coll.FindOne(ctx, bson.M{"username": normalize.Username(username)}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
		}
		return nil, err
	}
	return &user, nil
}

// UserExists checks if a user exists by username.
func (u *UsersStore) UserExists(ctx context.Context, username string) (bool, error) {
	count, err := u.coll.CountDocuments(ctx, bson.M{"username": normalize.Username(username)})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SearchUsers returns users whose name contains query (case-insensitive),
// excluding the caller. The query is matched literally.
func (u *UsersStore) SearchUsers(ctx context.Context, query, exclude string) ([]*User, error) {
	filter := bson.M{
		"username": bson.M{
			"$regex": bson.Regex{Pattern: regexp.QuoteMeta(normalize.Text(query)), Options: "i"},
			"$ne":    normalize.Username(exclude),
		},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "username", Value: 1}}).
		SetLimit(searchLimit).
		SetProjection(bson.M{"password": 0})

	cursor, err := u.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	users := make([]*User, 0)
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}
