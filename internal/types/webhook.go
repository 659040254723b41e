package types

import "time"

// WebhookEndpoint holds the shared-secret configuration for one inbound
// webhook source. During rotation the previous secret stays valid until
// OldSecretValidUntil.
type WebhookEndpoint struct {
	ID                  string     `json:"id"`
	Secret              string     `json:"secret"`
	Algorithm           string     `json:"algorithm"` // sha256, sha512, sha1
	OldSecret           string     `json:"old_secret,omitempty"`
	OldSecretValidUntil *time.Time `json:"old_secret_valid_until,omitempty"`
}

// WebhookDelivery records a seen delivery id for replay detection.
type WebhookDelivery struct {
	DeliveryID string    `json:"delivery_id"`
	WebhookID  string    `json:"webhook_id,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}
