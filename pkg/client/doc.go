// Package client is the WavePortal Go SDK.
//
// It wraps the portal's HTTP API: waving, listing and counting waves, owner
// moderation, and the live NewWave stream.
//
// # Reading the ledger
//
// Reads are public: no key is required:
//
//	c, _ := client.New("http://localhost:8080")
//	waves, err := c.Waves(ctx)
//	total, err := c.Count(ctx)
//
// # Waving
//
// Writes are signed by an ed25519 key. The key's address is derived the same
// way the portal derives it, and a session token is fetched on first use and
// refreshed shortly before it expires:
//
//	key, err := client.LoadOrCreateKey(os.ExpandEnv("$HOME/.wave/key"))
//	c, err := client.New("http://localhost:8080", client.WithKey(key))
//	wave, err := c.Wave(ctx, "gm")
//
// A second wave inside the cooldown fails with an *APIError that matches
// ErrRateLimited; its RetryAfter says how long to wait.
//
// # Moderation
//
// Only the portal owner may approve or reject:
//
//	err = c.Approve(ctx, 1)
//	err = c.Reject(ctx, 1)
//
// # Watching
//
// Watch streams every wave accepted after the call; cancel ctx to unsubscribe:
//
//	events, errc := c.Watch(ctx)
//	for ev := range events {
//	    fmt.Println(ev.From, ev.Message)
//	}
package client
