// Package email tells the portal owner about waves awaiting moderation.
package email

import "context"

// Sender delivers plain-text email.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}
