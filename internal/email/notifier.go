package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmerrifield20/WavePortal/internal/events"
	"go.uber.org/zap"
)

// ModerationNotifier emails the owner about every new wave, since each one
// starts unapproved and stays hidden from viewers until approved.
type ModerationNotifier struct {
	sender    Sender
	to        string
	portalURL string
	logger    *zap.Logger
}

// NewModerationNotifier creates a notifier that mails to. portalURL is quoted
// in the body when set.
func NewModerationNotifier(sender Sender, to, portalURL string, logger *zap.Logger) *ModerationNotifier {
	return &ModerationNotifier{sender: sender, to: to, portalURL: portalURL, logger: logger}
}

// Run sends one email per event until ctx is cancelled or the subscription closes.
func (n *ModerationNotifier) Run(ctx context.Context, sub *events.Subscription) {
	defer sub.Close()
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			n.Notify(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}

// Notify sends the email for ev. Failures are logged only.
func (n *ModerationNotifier) Notify(ctx context.Context, ev events.NewWave) {
	subject, body := n.render(ev)
	if err := n.sender.Send(ctx, n.to, subject, body); err != nil {
		n.logger.Warn("moderation email failed",
			zap.Int("index", ev.Index),
			zap.String("to", n.to),
			zap.Error(err),
		)
		return
	}
	n.logger.Debug("moderation email sent", zap.Int("index", ev.Index))
}

func (n *ModerationNotifier) render(ev events.NewWave) (string, string) {
	subject := fmt.Sprintf("New wave #%d awaiting approval", ev.Index)

	var b strings.Builder
	fmt.Fprintf(&b, "From:    %s\n", ev.From)
	fmt.Fprintf(&b, "At:      %s\n", time.Unix(ev.Timestamp, 0).UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Message: %s\n\n", ev.Message)
	fmt.Fprintf(&b, "Approve with: wave approve %d\n", ev.Index)
	if n.portalURL != "" {
		fmt.Fprintf(&b, "Portal:       %s\n", n.portalURL)
	}
	return subject, b.String()
}
