package waveledger

import (
	"fmt"
	"time"
)

// DefaultCooldown is the minimum interval between two waves from one sender.
const DefaultCooldown = 15 * time.Minute

// Policy holds the guards consulted by every Ledger implementation.
// Both guards are pure: they depend only on their arguments and the policy itself.
type Policy struct {
	Owner           Address
	Cooldown        time.Duration
	MaxMessageBytes int // 0 = unlimited
}

// NewPolicy returns a Policy for owner with the default cooldown and no message cap.
func NewPolicy(owner Address) Policy {
	return Policy{Owner: owner, Cooldown: DefaultCooldown}
}

func (p Policy) validate() error {
	if p.Owner.IsZero() {
		return fmt.Errorf("ledger owner must be set")
	}
	if p.Cooldown < 0 {
		return fmt.Errorf("cooldown must not be negative, got %s", p.Cooldown)
	}
	// Record timestamps are whole seconds.
	if p.Cooldown%time.Second != 0 {
		return fmt.Errorf("cooldown must be a whole number of seconds, got %s", p.Cooldown)
	}
	if p.MaxMessageBytes < 0 {
		return fmt.Errorf("max message bytes must not be negative, got %d", p.MaxMessageBytes)
	}
	return nil
}

// IsOwner is the ownership guard.
func (p Policy) IsOwner(identity Address) bool {
	return identity == p.Owner
}

// cooldownSeconds is the cooldown in whole seconds, the unit of record timestamps.
func (p Policy) cooldownSeconds() int64 {
	return int64(p.Cooldown / time.Second)
}

// CheckCooldown is the cooldown guard. hasLast is false when the sender has never
// waved. It returns a *RateLimitError when the sender must keep waiting.
func (p Policy) CheckCooldown(sender Address, lastWaveAt int64, hasLast bool, now int64) error {
	if !hasLast {
		return nil
	}
	if now-lastWaveAt >= p.cooldownSeconds() {
		return nil
	}
	return &RateLimitError{Sender: sender, RetryAt: lastWaveAt + p.cooldownSeconds(), At: now}
}

// CheckMessage enforces the optional length cap. Empty and duplicate messages pass.
func (p Policy) CheckMessage(message string) error {
	if p.MaxMessageBytes > 0 && len(message) > p.MaxMessageBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrMessageTooLong, len(message), p.MaxMessageBytes)
	}
	return nil
}

// CheckApproval applies the ownership guard, then the index bound, in that order.
func (p Policy) CheckApproval(caller Address, index, length int) error {
	if !p.IsOwner(caller) {
		return ErrUnauthorized
	}
	if index < 0 || index >= length {
		return fmt.Errorf("%w: %d (ledger has %d waves)", ErrIndexOutOfRange, index, length)
	}
	return nil
}
