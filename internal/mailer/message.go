// Package mailer implements the email delivery engine: two-tier provider
// failover with rate limiting, delivery stats, and a persistent retry queue
// swept on a fixed interval.
package mailer

// Message is one outbound email.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
	Priority string // entities.EmailPriority*
}
