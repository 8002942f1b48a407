package mail

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type captureSender struct {
	mu   sync.Mutex
	msgs []Message
	err  error
	hold chan struct{}
}

func (c *captureSender) Send(ctx context.Context, msg Message) error {
	if c.hold != nil {
		select {
		case <-c.hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return c.err
}

func TestDispatcherRendersCode(t *testing.T) {
	sender := &captureSender{}
	d := NewDispatcher(sender, zap.NewNop(), time.Second, 5*time.Minute)

	d.SendVerificationCode("a@x.com", "042137")
	require.NoError(t, d.Close(context.Background()))

	require.Len(t, sender.msgs, 1)
	msg := sender.msgs[0]
	require.Equal(t, "a@x.com", msg.To)
	require.Equal(t, "Email OTP Verification", msg.Subject)
	require.Contains(t, msg.HTML, "042137")
	require.Contains(t, msg.HTML, "expire in 5 minutes")
	require.Contains(t, msg.Text, "042137")
}

func TestDispatcherDoesNotBlockCaller(t *testing.T) {
	sender := &captureSender{hold: make(chan struct{})}
	d := NewDispatcher(sender, zap.NewNop(), time.Second, time.Minute)

	start := time.Now()
	d.SendVerificationCode("a@x.com", "111111")
	require.Less(t, time.Since(start), 100*time.Millisecond)

	close(sender.hold)
	require.NoError(t, d.Close(context.Background()))
	require.Len(t, sender.msgs, 1)
}

func TestDispatcherLogsFailures(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	sender := &captureSender{err: errors.New("relay down")}
	d := NewDispatcher(sender, zap.New(core), time.Second, time.Minute)

	d.SendVerificationCode("a@x.com", "111111")
	require.NoError(t, d.Close(context.Background()))

	entries := logs.FilterMessage("send mail failed").All()
	require.Len(t, entries, 1)
	require.Equal(t, "a@x.com", entries[0].ContextMap()["to"])
}

func TestDispatcherDropsAfterClose(t *testing.T) {
	sender := &captureSender{}
	d := NewDispatcher(sender, zap.NewNop(), time.Second, time.Minute)
	require.NoError(t, d.Close(context.Background()))

	d.SendVerificationCode("a@x.com", "111111")
	require.Empty(t, sender.msgs)
}

func TestBuildMessageHasBothParts(t *testing.T) {
	raw := string(buildMessage("EchoWrite <no-reply@echowrite.test>", Message{
		To:      "a@x.com",
		Subject: "Hello",
		Text:    "plain",
		HTML:    "<b>rich</b>",
	}, time.Unix(0, 0)))

	require.True(t, strings.HasPrefix(raw, "From: EchoWrite <no-reply@echowrite.test>\r\n"))
	require.Contains(t, raw, "Subject: Hello\r\n")
	require.Contains(t, raw, "text/plain")
	require.Contains(t, raw, "text/html")
	require.Contains(t, raw, "<b>rich</b>")
}
