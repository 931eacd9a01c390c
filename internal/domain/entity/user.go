package entity

import "time"

type User struct {
	ID          string    `json:"id" firestore:"id"`
	Email       string    `json:"email,omitempty" firestore:"email,omitempty"`
	DisplayName string    `json:"displayName" firestore:"displayName"`
	Role        string    `json:"role" firestore:"role"`
	AvatarURL   string    `json:"avatarUrl,omitempty" firestore:"avatarUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt" firestore:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" firestore:"updatedAt"`
}

// AsParticipant projects the profile into a conversation participant.
func (u *User) AsParticipant() Participant {
	return Participant{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Role:        u.Role,
		AvatarURL:   u.AvatarURL,
	}
}
