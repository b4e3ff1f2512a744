package mailer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderKeepsMail(t *testing.T) {
	var r Recorder
	require.NoError(t, r.Send("a@example.com", "hi", "body"))
	sent := r.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, Mail{To: "a@example.com", Subject: "hi", Body: "body"}, sent[0])
}

func TestSMTPSenderImplementsSender(t *testing.T) {
	var s Sender = NewSMTPSender("localhost", 25, "", "", "noreply@example.com")
	assert.NotNil(t, s)
}
