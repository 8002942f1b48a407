package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"sync"
	"time"

	"go.uber.org/zap"
)

const codeSubject = "Email OTP Verification"

var codeTemplate = template.Must(template.New("otp").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; background: #f4f4f4; padding: 24px;">
  <div style="max-width: 480px; margin: 0 auto; background: #ffffff; border-radius: 8px; padding: 24px;">
    <h2 style="color: #333333;">{{.Brand}}</h2>
    <p>Use the code below to verify your email address.</p>
    <p style="font-size: 28px; font-weight: bold; letter-spacing: 6px;">{{.Code}}</p>
    <p>This code will expire in {{.Minutes}} minutes.</p>
    <p style="color: #888888; font-size: 12px;">If you did not request this, you can ignore this email.</p>
  </div>
</body>
</html>`))

// Dispatcher sends verification mail in the background. Delivery failures are
// logged and never reported to the caller.
type Dispatcher struct {
	sender  Sender
	logger  *zap.Logger
	timeout time.Duration
	codeTTL time.Duration
	brand   string

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher wraps sender. timeout bounds each delivery; codeTTL is quoted
// in the message body.
func NewDispatcher(sender Sender, logger *zap.Logger, timeout, codeTTL time.Duration) *Dispatcher {
	if logger == nil {
		logger = zap.L()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Dispatcher{
		sender:  sender,
		logger:  logger,
		timeout: timeout,
		codeTTL: codeTTL,
		brand:   "EchoWrite",
	}
}

// SendVerificationCode queues the code email and returns immediately.
func (d *Dispatcher) SendVerificationCode(email, code string) {
	msg, err := d.codeMessage(email, code)
	if err != nil {
		d.logger.Error("render verification mail", zap.String("email", email), zap.Error(err))
		return
	}
	d.dispatch(msg)
}

func (d *Dispatcher) dispatch(msg Message) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.Warn("mail dispatcher closed, dropping message", zap.String("to", msg.To))
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.sender.Send(ctx, msg); err != nil {
			d.logger.Error("send mail failed", zap.String("to", msg.To), zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		d.logger.Debug("mail sent", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	}()
}

// Close stops accepting messages and waits for in-flight deliveries or ctx.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) codeMessage(email, code string) (Message, error) {
	minutes := int(d.codeTTL.Minutes())
	if minutes < 1 {
		minutes = 1
	}

	var html bytes.Buffer
	err := codeTemplate.Execute(&html, struct {
		Brand   string
		Code    string
		Minutes int
	}{Brand: d.brand, Code: code, Minutes: minutes})
	if err != nil {
		return Message{}, fmt.Errorf("execute template: %w", err)
	}

	return Message{
		To:      email,
		Subject: codeSubject,
		Text:    fmt.Sprintf("Your %s verification code is %s. This code will expire in %d minutes.", d.brand, code, minutes),
		HTML:    html.String(),
	}, nil
}
