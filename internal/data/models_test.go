package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestUnreadCountsDefaultsToZero(t *testing.T) {
	a, b := bson.NewObjectID(), bson.NewObjectID()

	var nilCounts UnreadCounts
	assert.Equal(t, 0, nilCounts.Get(a))

	counts := UnreadCounts{a.Hex(): 3, b.Hex(): -2}
	assert.Equal(t, 3, counts.Get(a))
	assert.Equal(t, 0, counts.Get(b), "negative entries never surface")
	assert.Equal(t, 0, counts.Get(bson.NewObjectID()))
}

func TestChatParticipantHelpers(t *testing.T) {
	admin, client := bson.NewObjectID(), bson.NewObjectID()
	c := &Chat{Participants: []Participant{
		{User: admin, Role: RoleAdmin},
		{User: client, Role: RoleCorporate},
	}}

	assert.True(t, c.HasParticipant(admin))
	assert.False(t, c.HasParticipant(bson.NewObjectID()))

	p, ok := c.Client()
	assert.True(t, ok)
	assert.Equal(t, client, p.User)

	p, ok = c.Counterpart(client)
	assert.True(t, ok)
	assert.Equal(t, admin, p.User)

	assert.Equal(t, []bson.ObjectID{admin, client}, c.ParticipantIDs())
}

func TestChatStatusValid(t *testing.T) {
	for _, s := range []ChatStatus{StatusUnclaimed, StatusActive, StatusClosed, StatusArchived} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, ChatStatus("pending").Valid())
}
