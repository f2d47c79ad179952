package model

import (
	"testing"
	"time"

	"PPRealtime/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairKeyOrderIndependent(t *testing.T) {
	assert.Equal(t, PairKey("b", "a"), PairKey("a", "b"))
	a, b, ok := SplitPairKey(PairKey("u2", "u1"))
	require.True(t, ok)
	assert.Equal(t, "u1", a)
	assert.Equal(t, "u2", b)
}

func TestConversationOther(t *testing.T) {
	c := &Conversation{Participants: []string{"a", "b"}}
	assert.Equal(t, "b", c.Other("a"))
	assert.Equal(t, "a", c.Other("b"))
	assert.Equal(t, "", c.Other("x"))

	self := &Conversation{Participants: []string{"a", "a"}}
	assert.Equal(t, "a", self.Other("a"))
}

func TestNormalizeAttachments(t *testing.T) {
	out, err := NormalizeAttachments([]Attachment{{URL: " http://x/1.png "}, {URL: "http://x/a.mp3", Type: AttachAudio, Name: "a", Size: 10}})
	require.NoError(t, err)
	assert.Equal(t, Attachment{URL: "http://x/1.png", Type: AttachImage}, out[0])
	assert.Equal(t, AttachAudio, out[1].Type)

	_, err = NormalizeAttachments([]Attachment{{URL: "u", Type: "exe"}})
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = NormalizeAttachments([]Attachment{{Type: AttachPDF}})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestMessageOrderAndPopulate(t *testing.T) {
	now := time.Now()
	a := &Message{ID: "1", CreatedAt: now}
	b := &Message{ID: "2", CreatedAt: now}
	c := &Message{ID: "0", CreatedAt: now.Add(time.Millisecond)}
	assert.True(t, a.Before(b))
	assert.True(t, b.Before(c))
	assert.False(t, c.Before(a))

	v := a.Populate(&User{ID: "u", Username: "ann", Avatar: "p.png"})
	assert.Equal(t, UserRef{ID: "u", Username: "ann", Avatar: "p.png"}, v.Sender)
	assert.NotNil(t, v.Attachments)

	v = (&Message{Sender: "ghost"}).Populate(nil)
	assert.Equal(t, "ghost", v.Sender.ID)
}

func TestStoryPopulate(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s := &Story{ID: "s1", User: "bob", Media: StoryMedia{URL: "/u/1.png", Type: StoryImage}, ExpiresAt: now.Add(time.Hour)}
	bob := &User{ID: "bob", Username: "Bob", Avatar: "bob.png", Status: StatusOnline}

	v := s.Populate(bob, true)
	assert.Equal(t, StoryAuthor{ID: "bob", Username: "Bob", Avatar: "bob.png", Status: StatusOnline}, v.User)
	assert.NotNil(t, v.Viewers)

	assert.Empty(t, s.Populate(bob, false).User.Status)
	assert.Equal(t, StoryAuthor{ID: "bob"}, s.Populate(nil, true).User)

	assert.True(t, s.ActiveAt(now))
	assert.False(t, s.ActiveAt(now.Add(time.Hour)))
}
