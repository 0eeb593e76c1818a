package data

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

var (
	// ErrNotFound is returned when a lookup or conditional update matches nothing.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique index rejects an insert.
	ErrDuplicate = errors.New("already exists")
)

// Account roles. A user's accountType uses the same values.
const (
	RoleAdmin      = "admin"
	RoleIndividual = "individual"
	RoleCorporate  = "corporate"
)

// User maps to the users collection shared with the account service.
type User struct {
	ID          bson.ObjectID `bson:"_id,omitempty" json:"_id"`
	Email       string        `bson:"email" json:"email"`
	Password    string        `bson:"password" json:"-"`
	Role        string        `bson:"role" json:"role"`
	AccountType string        `bson:"accountType" json:"accountType"`
	IsVerified  bool          `bson:"isVerified" json:"isVerified"`
	CreatedAt   time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time     `bson:"updatedAt" json:"updatedAt"`
}

// IsAdmin reports whether the account has the admin role.
func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// Individual is the profile of an individual client.
type Individual struct {
	ID       bson.ObjectID `bson:"_id,omitempty" json:"_id"`
	FullName string        `bson:"fullName" json:"fullName"`
	Email    string        `bson:"email" json:"email"`
	User     bson.ObjectID `bson:"user" json:"user"`
}

// Contact is the primary contact person of a corporate client.
type Contact struct {
	Name  string `bson:"name" json:"name"`
	Email string `bson:"email" json:"email"`
	Phone string `bson:"phone" json:"phone"`
}

// Corporate is the profile of a corporate client.
type Corporate struct {
	ID             bson.ObjectID `bson:"_id,omitempty" json:"_id"`
	CompanyName    string        `bson:"companyName" json:"companyName"`
	PrimaryContact Contact       `bson:"primaryContact" json:"primaryContact"`
	User           bson.ObjectID `bson:"user" json:"user"`
}

// ChatStatus is the lifecycle state of a chat.
type ChatStatus string

const (
	StatusUnclaimed ChatStatus = "unclaimed"
	StatusActive    ChatStatus = "active"
	// StatusClosed and StatusArchived are reserved; no operation enters them yet.
	StatusClosed   ChatStatus = "closed"
	StatusArchived ChatStatus = "archived"
)

// Valid reports whether s is one of the known statuses.
func (s ChatStatus) Valid() bool {
	switch s {
	case StatusUnclaimed, StatusActive, StatusClosed, StatusArchived:
		return true
	}
	return false
}

// ChatType classifies a chat.
type ChatType string

const (
	TypeSupport        ChatType = "support"
	TypeProjectInquiry ChatType = "project_inquiry"
	TypeGeneral        ChatType = "general"
)

// Participant is one member of a chat.
type Participant struct {
	User bson.ObjectID `bson:"user" json:"user"`
	Role string        `bson:"role" json:"role"`
}

// UnreadCounts maps a user id (hex) to the number of messages that user has
// not read. Absent keys read as zero.
type UnreadCounts map[string]int

// Get returns the count for userID, zero when absent.
func (u UnreadCounts) Get(userID bson.ObjectID) int {
	if u == nil {
		return 0
	}
	if n := u[userID.Hex()]; n > 0 {
		return n
	}
	return 0
}

// Chat maps to the chats collection.
type Chat struct {
	ID            bson.ObjectID  `bson:"_id,omitempty" json:"_id"`
	Participants  []Participant  `bson:"participants" json:"participants"`
	Title         string         `bson:"title" json:"title"`
	Type          ChatType       `bson:"type" json:"type"`
	Status        ChatStatus     `bson:"status" json:"status"`
	AssignedAdmin *bson.ObjectID `bson:"assignedAdmin" json:"assignedAdmin"`
	LastMessage   *bson.ObjectID `bson:"lastMessage,omitempty" json:"lastMessage,omitempty"`
	LastMessageAt *time.Time     `bson:"lastMessageAt,omitempty" json:"-"`
	LastActivity  time.Time      `bson:"lastActivity" json:"lastActivity"`
	UnreadCounts  UnreadCounts   `bson:"unreadCounts" json:"unreadCounts"`
	ChatSlug      string         `bson:"chatSlug" json:"chatSlug"`
	CreatedAt     time.Time      `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time      `bson:"updatedAt" json:"updatedAt"`
}

// HasParticipant reports whether userID is a member of the chat.
func (c *Chat) HasParticipant(userID bson.ObjectID) bool {
	for _, p := range c.Participants {
		if p.User == userID {
			return true
		}
	}
	return false
}

// Client returns the first non-admin participant.
func (c *Chat) Client() (Participant, bool) {
	for _, p := range c.Participants {
		if p.Role != RoleAdmin {
			return p, true
		}
	}
	return Participant{}, false
}

// Counterpart returns the first participant that is not userID.
func (c *Chat) Counterpart(userID bson.ObjectID) (Participant, bool) {
	for _, p := range c.Participants {
		if p.User != userID {
			return p, true
		}
	}
	return Participant{}, false
}

// ParticipantIDs returns the member ids in participant order.
func (c *Chat) ParticipantIDs() []bson.ObjectID {
	ids := make([]bson.ObjectID, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.User)
	}
	return ids
}

// MessageType is the payload kind of a message. Only text is produced today.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
)

// Sender identifies who wrote a message. Name is a snapshot taken when the
// message was written and is not updated when the profile changes later.
type Sender struct {
	User bson.ObjectID `bson:"user" json:"user"`
	Name string        `bson:"name" json:"name"`
	Role string        `bson:"role" json:"role"`
}

// Message maps to the messages collection.
type Message struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"_id"`
	Chat      bson.ObjectID `bson:"chat" json:"chat"`
	Sender    Sender        `bson:"sender" json:"sender"`
	Content   string        `bson:"content" json:"content"`
	Type      MessageType   `bson:"type" json:"type"`
	IsDeleted bool          `bson:"isDeleted" json:"isDeleted"`
	CreatedAt time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time     `bson:"updatedAt" json:"updatedAt"`
}
