package memstore

import (
	"context"
	"sync"

	"github.com/MrEthical07/shopauth"
)

// Mail is one message recorded by Outbox.
type Mail struct {
	Kind  string // "reset", "reset_confirmation" or "welcome"
	To    string
	Token string
}

// Outbox records outgoing mail instead of sending it. It implements
// shopauth.Mailer and shopauth.Notifier.
type Outbox struct {
	mu   sync.Mutex
	sent []Mail
}

func (o *Outbox) SendPasswordReset(_ context.Context, to *shopauth.Principal, token string) error {
	o.record(Mail{Kind: "reset", To: to.Email, Token: token})
	return nil
}

func (o *Outbox) SendPasswordResetConfirmation(_ context.Context, to *shopauth.Principal) error {
	o.record(Mail{Kind: "reset_confirmation", To: to.Email})
	return nil
}

func (o *Outbox) Welcome(_ context.Context, p *shopauth.Principal) error {
	o.record(Mail{Kind: "welcome", To: p.Email})
	return nil
}

func (o *Outbox) record(m Mail) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, m)
}

// Sent returns a copy of everything recorded so far.
func (o *Outbox) Sent() []Mail {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Mail(nil), o.sent...)
}

// Last returns the most recent mail of kind.
func (o *Outbox) Last(kind string) (Mail, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.sent) - 1; i >= 0; i-- {
		if o.sent[i].Kind == kind {
			return o.sent[i], true
		}
	}
	return Mail{}, false
}
