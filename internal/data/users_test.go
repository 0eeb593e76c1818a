package data

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/PaulBabatuyi/support-chat/internal/db"
)

func setupDB(t *testing.T) *db.Client {
	t.Helper()
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set; skipping integration test")
	}

	ctx := context.Background()
	c, err := db.New(ctx, uri, "support_chat_data_test")
	require.NoError(t, err)

	// ensure clean collections in case previous runs left data
	_ = c.UsersCollection().Drop(ctx)
	_ = c.IndividualsCollection().Drop(ctx)
	_ = c.CorporatesCollection().Drop(ctx)
	_ = c.ChatsCollection().Drop(ctx)
	_ = c.MessagesCollection().Drop(ctx)
	require.NoError(t, c.CreateIndexes(ctx))

	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func TestUsersCreateAndGet(t *testing.T) {
	c := setupDB(t)
	users := NewUsersStore(c.UsersCollection())
	ctx := context.Background()

	email := time.Now().UTC().Format("20060102-150405") + "-Integration@Example.com"
	user, err := users.CreateUser(ctx, &User{Email: email, Password: "hashed", Role: RoleIndividual, AccountType: RoleIndividual})
	require.NoError(t, err)
	assert.False(t, user.ID.IsZero())

	byEmail, err := users.GetUserByEmail(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)
	assert.Equal(t, RoleIndividual, byEmail.Role)

	byID, err := users.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, byEmail.Email, byID.Email)

	_, err = users.CreateUser(ctx, &User{Email: email, Role: RoleIndividual})
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = users.GetUserByID(ctx, bson.NewObjectID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAdminIDs(t *testing.T) {
	c := setupDB(t)
	users := NewUsersStore(c.UsersCollection())
	ctx := context.Background()

	a1, err := users.CreateUser(ctx, &User{Email: "a1@example.com", Role: RoleAdmin})
	require.NoError(t, err)
	a2, err := users.CreateUser(ctx, &User{Email: "a2@example.com", Role: RoleAdmin})
	require.NoError(t, err)
	_, err = users.CreateUser(ctx, &User{Email: "client@example.com", Role: RoleCorporate})
	require.NoError(t, err)

	ids, err := users.ListAdminIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []bson.ObjectID{a1.ID, a2.ID}, ids)
}

func TestProfilesLookup(t *testing.T) {
	c := setupDB(t)
	profiles := NewProfilesStore(c.IndividualsCollection(), c.CorporatesCollection())
	ctx := context.Background()

	indUser, corpUser := bson.NewObjectID(), bson.NewObjectID()
	_, err := c.IndividualsCollection().InsertOne(ctx, Individual{FullName: "Jane Doe", Email: "jane@example.com", User: indUser})
	require.NoError(t, err)
	_, err = c.CorporatesCollection().InsertOne(ctx, Corporate{
		CompanyName:    "Acme",
		PrimaryContact: Contact{Name: "Bob Ray", Email: "bob@acme.io"},
		User:           corpUser,
	})
	require.NoError(t, err)

	ind, err := profiles.GetIndividualByUser(ctx, indUser)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", ind.FullName)

	corp, err := profiles.GetCorporateByUser(ctx, corpUser)
	require.NoError(t, err)
	assert.Equal(t, "Bob Ray", corp.PrimaryContact.Name)

	_, err = profiles.GetIndividualByUser(ctx, corpUser)
	assert.ErrorIs(t, err, ErrNotFound)
}
