package entity

import "time"

const (
	AttachmentImage    = "image"
	AttachmentDocument = "document"
	AttachmentProduct  = "product"
)

type Attachment struct {
	Type string `json:"type" firestore:"type"` // "image", "document", "product"
	URL  string `json:"url" firestore:"url"`
	Name string `json:"name" firestore:"name"`
	Size int64  `json:"size,omitempty" firestore:"size,omitempty"`
}

// Message is immutable after creation except for the read flag and explicit
// moderation removal.
type Message struct {
	ID             string       `json:"id" firestore:"id"`
	ConversationID string       `json:"conversationId" firestore:"conversationId"`
	Text           string       `json:"text" firestore:"text"`
	SenderID       string       `json:"senderId" firestore:"senderId"`
	SenderName     string       `json:"senderName" firestore:"senderName"`
	SenderRole     string       `json:"senderRole" firestore:"senderRole"`
	SenderAvatar   string       `json:"senderAvatar,omitempty" firestore:"senderAvatar,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty" firestore:"attachments,omitempty"`
	Read           bool         `json:"read" firestore:"read"`
	CreatedAt      time.Time    `json:"createdAt" firestore:"createdAt"`
}
