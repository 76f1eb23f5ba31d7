package testutil

import (
	"context"
	"sync"
)

// Sent: письмо, принятое Mailbox.
type Sent struct {
	To       string
	Template string
	Params   map[string]string
}

// Mailbox: поддельный mailer.Sender. Если Fail задан, отправка возвращает его.
type Mailbox struct {
	mu   sync.Mutex
	Fail error
	sent []Sent
}

func (m *Mailbox) SendTemplatedEmail(_ context.Context, to, template string, params map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.sent = append(m.sent, Sent{To: to, Template: template, Params: params})
	return nil
}

func (m *Mailbox) Sent() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sent(nil), m.sent...)
}

// Last: последнее письмо; ok=false, если писем не было.
func (m *Mailbox) Last() (Sent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return Sent{}, false
	}
	return m.sent[len(m.sent)-1], true
}
