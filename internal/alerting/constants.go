// Package alerting evaluates incoming vulnerabilities against user alert
// rules and fans matching triggers out to the notification channels.
package alerting

// Notification channels a rule can enable.
const (
	ChannelEmail       = "email"
	ChannelPush        = "push"
	ChannelWebhook     = "webhook"
	ChannelChatWebhook = "chat_webhook"
)
