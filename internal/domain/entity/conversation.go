package entity

import (
	"sort"
	"strings"
	"time"
)

const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
	RoleAdmin  = "admin"
)

const (
	RelatedEntityOrder   = "order"
	RelatedEntityProduct = "product"
	RelatedEntityGeneral = "general"
)

type Participant struct {
	ID          string `json:"id" firestore:"id"`
	DisplayName string `json:"displayName" firestore:"displayName"`
	Role        string `json:"role" firestore:"role"` // "buyer", "seller", "admin"
	AvatarURL   string `json:"avatarUrl,omitempty" firestore:"avatarUrl,omitempty"`
}

type LastMessage struct {
	Text      string    `json:"text" firestore:"text"`
	SenderID  string    `json:"senderId" firestore:"senderId"`
	CreatedAt time.Time `json:"createdAt" firestore:"createdAt"`
}

type RelatedEntity struct {
	Type string `json:"type" firestore:"type"` // "order", "product", "general"
	ID   string `json:"id" firestore:"id"`
	Name string `json:"name" firestore:"name"`
}

type Conversation struct {
	ID             string           `json:"id" firestore:"id"`
	Participants   []Participant    `json:"participants" firestore:"participants"`
	ParticipantIDs []string         `json:"participantIds" firestore:"participantIds"`
	ParticipantKey string           `json:"-" firestore:"participantKey"`
	LastMessage    *LastMessage     `json:"lastMessage,omitempty" firestore:"lastMessage,omitempty"`
	UnreadCounts   map[string]int64 `json:"unreadCounts" firestore:"unreadCounts"`
	RelatedEntity  *RelatedEntity   `json:"relatedEntity,omitempty" firestore:"relatedEntity,omitempty"`
	CreatedAt      time.Time        `json:"createdAt" firestore:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt" firestore:"updatedAt"`
}

// HasParticipant reports whether the canonical id belongs to this
// conversation. Both the participant profiles and the denormalized id set
// are checked so membership survives drift between the two fields.
func (c *Conversation) HasParticipant(canonicalID string) bool {
	if canonicalID == "" {
		return false
	}
	for _, p := range c.Participants {
		if p.ID == canonicalID {
			return true
		}
	}
	for _, id := range c.ParticipantIDs {
		if id == canonicalID {
			return true
		}
	}
	return false
}

// UnreadFor returns the unread counter for the given participant. A missing
// key reads as zero.
func (c *Conversation) UnreadFor(canonicalID string) int64 {
	if c.UnreadCounts == nil {
		return 0
	}
	return c.UnreadCounts[canonicalID]
}

// ParticipantKey derives the stable dedup key for a set of canonical ids:
// sorted, deduplicated and joined with "_". Order of the input does not
// matter, so two resolvers for the same pair always land on the same key.
func ParticipantKey(canonicalIDs []string) string {
	seen := make(map[string]bool, len(canonicalIDs))
	unique := make([]string, 0, len(canonicalIDs))
	for _, id := range canonicalIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	sort.Strings(unique)
	return strings.Join(unique, "_")
}
