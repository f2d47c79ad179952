package model

import (
	"slices"
	"strings"
	"time"

	"PPRealtime/tools/errs"
)

const MessageCollection = "messages"

// Attachment type
const (
	AttachImage = "image"
	AttachVideo = "video"
	AttachAudio = "audio"
	AttachPDF   = "pdf"
)

var attachTypes = []string{AttachImage, AttachVideo, AttachAudio, AttachPDF}

type Attachment struct {
	URL  string `bson:"url" json:"url" mapstructure:"url"`
	Type string `bson:"type" json:"type" mapstructure:"type"`
	Name string `bson:"name" json:"name" mapstructure:"name"`
	Size int64  `bson:"size" json:"size" mapstructure:"size"`
}

type Message struct {
	ID           string       `bson:"_id" json:"_id"`
	Conversation string       `bson:"conversation" json:"conversation"`
	Sender       string       `bson:"sender" json:"sender"`
	Content      string       `bson:"content" json:"content"`
	Attachments  []Attachment `bson:"attachments" json:"attachments"`
	Seen         bool         `bson:"seen" json:"seen"`
	CreatedAt    time.Time    `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time    `bson:"updatedAt" json:"updatedAt"`
}

func (m *Message) GetTableName() string {
	return MessageCollection
}

// Before reports whether m sorts before o in (createdAt, id) order.
func (m *Message) Before(o *Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.ID < o.ID
}

// MessageView is a message with its sender populated.
type MessageView struct {
	ID           string       `json:"_id"`
	Conversation string       `json:"conversation"`
	Sender       UserRef      `json:"sender"`
	Content      string       `json:"content"`
	Attachments  []Attachment `json:"attachments"`
	Seen         bool         `json:"seen"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// Populate projects m with sender; a nil sender keeps only the id.
func (m *Message) Populate(sender *User) MessageView {
	ref := UserRef{ID: m.Sender}
	if sender != nil {
		ref = sender.Ref()
	}
	atts := m.Attachments
	if atts == nil {
		atts = []Attachment{}
	}
	return MessageView{
		ID:           m.ID,
		Conversation: m.Conversation,
		Sender:       ref,
		Content:      m.Content,
		Attachments:  atts,
		Seen:         m.Seen,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// NormalizeAttachments fills defaults (type image, empty name, zero size) and
// rejects entries without url or with an unknown type.
func NormalizeAttachments(in []Attachment) ([]Attachment, error) {
	out := make([]Attachment, 0, len(in))
	for i, a := range in {
		a.URL = strings.TrimSpace(a.URL)
		if a.URL == "" {
			return nil, errs.ErrValidation.WrapMsg("attachment url is required", "index", i)
		}
		if a.Type == "" {
			a.Type = AttachImage
		}
		if !slices.Contains(attachTypes, a.Type) {
			return nil, errs.ErrValidation.WrapMsg("unsupported attachment type", "index", i, "type", a.Type)
		}
		if a.Size < 0 {
			a.Size = 0
		}
		out = append(out, a)
	}
	return out, nil
}
