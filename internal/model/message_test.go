package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMessageView_ClockLabelIsUTC(t *testing.T) {
	to := "u2"
	m := &Message{
		ID: "m1", ConversationID: "c1", Kind: KindPrivate, AuthorID: "u1", RecipientID: &to, Body: "hi",
		SentAt: time.Date(2026, 6, 1, 10, 30, 0, 0, time.FixedZone("UTC+3", 3*60*60)),
	}

	v := m.View("u1")
	assert.Equal(t, "07:30", v.Time)
	assert.True(t, v.IsMine)
	assert.False(t, m.View("u2").IsMine)
}
