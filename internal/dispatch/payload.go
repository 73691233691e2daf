package dispatch

import "encoding/json"

// EmailPayload is the delivery payload for the email channel. Built by the
// dispatcher from the matched rule's config, parsed by the email sender.
type EmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// WebhookPayload is the delivery payload for the webhook channel. The body
// is the serialized notification; headers come from the rule's config.
type WebhookPayload struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body"`
}
