// Package data provides DB models and stores.
package data

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/PaulBabatuyi/support-chat/internal/normalize"
)

// UsersStore reads the user directory. Accounts are owned by the account
// service; this store only creates them for the operator CLI.
type UsersStore struct {
	coll *mongo.Collection
}

// NewUsersStore returns a UsersStore using the provided collection.
func NewUsersStore(coll *mongo.Collection) *UsersStore {
	return &UsersStore{coll: coll}
}

// CreateUser inserts a new user document. Password must already be hashed.
func (u *UsersStore) CreateUser(ctx context.Context, user *User) (*User, error) {
	now := time.Now().UTC()
	user.Email = normalize.Email(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now

	result, err := u.coll.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	user.ID = result.InsertedID.(bson.ObjectID)
	return user, nil
}

// GetUserByEmail finds a user by email.
func (u *UsersStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return u.findOne(ctx, bson.M{"email": normalize.Email(email)})
}

// GetUserByID finds a user by ObjectID.
func (u *UsersStore) GetUserByID(ctx context.Context, id bson.ObjectID) (*User, error) {
	return u.findOne(ctx, bson.M{"_id": id})
}

// ListAdminIDs returns the ids of every admin account. It is a directory
// query on each call, not a presence set.
func (u *UsersStore) ListAdminIDs(ctx context.Context) ([]bson.ObjectID, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cursor, err := u.coll.Find(ctx, bson.M{"role": RoleAdmin}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID bson.ObjectID `bson:"_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	ids := make([]bson.ObjectID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

func (u *UsersStore) findOne(ctx context.Context, filter bson.M) (*User, error) {
	var user User
	if err := u.coll.FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// ProfilesStore reads individual and corporate client profiles.
type ProfilesStore struct {
	individuals *mongo.Collection
	corporates  *mongo.Collection
}

// NewProfilesStore returns a ProfilesStore over the two profile collections.
func NewProfilesStore(individuals, corporates *mongo.Collection) *ProfilesStore {
	return &ProfilesStore{individuals: individuals, corporates: corporates}
}

// GetIndividualByUser returns the individual profile owned by userID.
func (p *ProfilesStore) GetIndividualByUser(ctx context.Context, userID bson.ObjectID) (*Individual, error) {
	var ind Individual
	if err := p.individuals.FindOne(ctx, bson.M{"user": userID}).Decode(&ind); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ind, nil
}

// GetCorporateByUser returns the corporate profile owned by userID.
func (p *ProfilesStore) GetCorporateByUser(ctx context.Context, userID bson.ObjectID) (*Corporate, error) {
	var corp Corporate
	if err := p.corporates.FindOne(ctx, bson.M{"user": userID}).Decode(&corp); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &corp, nil
}
