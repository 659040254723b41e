// Package webhook gates untrusted inbound payloads behind an HMAC
// verification pipeline: source IP, required headers, payload size and
// shape, timestamp freshness, signature, and replay detection.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"net/netip"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/schedcu/core/internal/storage"
	"github.com/schedcu/core/internal/types"
)

// Coarse failure reasons. The specific failing check is logged, never
// returned to the caller.
const (
	ReasonVerificationFailed = "verification_failed" // surfaced as 401
	ReasonPayloadTooLarge    = "payload_too_large"   // surfaced as 413
)

const (
	// DefaultMaxPayloadSize caps accepted bodies at 1 MiB.
	DefaultMaxPayloadSize = 1 << 20
	// DefaultTimestampTolerance bounds clock skew on inbound deliveries.
	DefaultTimestampTolerance = 300 * time.Second
	// DefaultRotationGrace keeps a rotated-out secret valid long enough
	// for the sender to pick up the new one.
	DefaultRotationGrace = 24 * time.Hour
)

// Signature headers, matched case-insensitively.
const (
	HeaderSignature    = "X-Webhook-Signature"
	HeaderSignatureHub = "X-Hub-Signature-256"
	HeaderTimestamp    = "X-Webhook-Timestamp"
	HeaderDelivery     = "X-Webhook-Delivery"
)

// Config tunes one verifier instance.
type Config struct {
	// AllowedSources is an optional whitelist of IPs or CIDRs. Empty
	// means any source.
	AllowedSources []string
	// RequiredHeaders beyond the signature and timestamp headers.
	RequiredHeaders []string
	// Secret and Algorithm apply when a request carries no webhook id.
	Secret    string
	Algorithm string

	MaxPayloadSize     int64
	TimestampTolerance time.Duration
}

// Request is one inbound delivery to verify.
type Request struct {
	SourceIP  string
	Headers   map[string]string
	Body      []byte
	WebhookID string
}

// Result is the verification outcome. Reason is set only when Valid is
// false and is deliberately coarse.
type Result struct {
	Valid   bool           `json:"valid"`
	Reason  string         `json:"reason,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
	IsRetry bool           `json:"is_retry"`
}

// Verifier runs the verification pipeline against stored endpoint
// secrets.
type Verifier struct {
	store   storage.Storage
	log     *logrus.Logger
	cfg     Config
	allowed []netip.Prefix
	now     func() time.Time
}

// NewVerifier builds a verifier, parsing the source whitelist up front.
func NewVerifier(store storage.Storage, log *logrus.Logger, cfg Config) (*Verifier, error) {
	if cfg.MaxPayloadSize <= 0 {
		cfg.MaxPayloadSize = DefaultMaxPayloadSize
	}
	if cfg.TimestampTolerance <= 0 {
		cfg.TimestampTolerance = DefaultTimestampTolerance
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = "sha256"
	}

	var allowed []netip.Prefix
	for _, src := range cfg.AllowedSources {
		if strings.Contains(src, "/") {
			p, err := netip.ParsePrefix(src)
			if err != nil {
				return nil, fmt.Errorf("parsing source rule %q: %w", src, err)
			}
			allowed = append(allowed, p)
			continue
		}
		addr, err := netip.ParseAddr(src)
		if err != nil {
			return nil, fmt.Errorf("parsing source rule %q: %w", src, err)
		}
		allowed = append(allowed, netip.PrefixFrom(addr, addr.BitLen()))
	}

	return &Verifier{store: store, log: log, cfg: cfg, allowed: allowed, now: time.Now}, nil
}

// SetClock overrides the time source. Test hook.
func (v *Verifier) SetClock(now func() time.Time) { v.now = now }

// Verify runs the pipeline, short-circuiting on the first failing
// check. A non-nil error means infrastructure trouble, not a rejected
// request.
func (v *Verifier) Verify(ctx context.Context, req Request) (*Result, error) {
	fail := func(detail string, fields logrus.Fields) *Result {
		if fields == nil {
			fields = logrus.Fields{}
		}
		fields["webhook_id"] = req.WebhookID
		fields["source_ip"] = req.SourceIP
		v.log.WithFields(fields).Warnf("webhook rejected: %s", detail)
		return &Result{Valid: false, Reason: ReasonVerificationFailed}
	}

	// 1. Source whitelist.
	if len(v.allowed) > 0 {
		addr, err := netip.ParseAddr(req.SourceIP)
		if err != nil {
			return fail("unparseable source ip", nil), nil
		}
		matched := false
		for _, p := range v.allowed {
			if p.Contains(addr) {
				matched = true
				break
			}
		}
		if !matched {
			return fail("source ip not whitelisted", nil), nil
		}
	}

	// 2. Required headers.
	headers := lowerHeaders(req.Headers)
	for _, name := range v.cfg.RequiredHeaders {
		if _, ok := headers[strings.ToLower(name)]; !ok {
			return fail("missing required header", logrus.Fields{"header": name}), nil
		}
	}

	// 3. Payload size and shape.
	if int64(len(req.Body)) > v.cfg.MaxPayloadSize {
		v.log.WithFields(logrus.Fields{
			"webhook_id": req.WebhookID,
			"size":       len(req.Body),
			"limit":      v.cfg.MaxPayloadSize,
		}).Warn("webhook rejected: payload too large")
		return &Result{Valid: false, Reason: ReasonPayloadTooLarge}, nil
	}
	payload, err := decodePayload(req.Body)
	if err != nil {
		return fail("payload is not valid JSON", logrus.Fields{"error": err.Error()}), nil
	}

	// 4. Secret lookup.
	secrets, algorithm, err := v.resolveSecrets(ctx, req.WebhookID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fail("unknown webhook id", nil), nil
		}
		return nil, fmt.Errorf("loading webhook endpoint: %w", err)
	}

	// 5. Signature extraction.
	sig, ok := headers[strings.ToLower(HeaderSignature)]
	if !ok {
		sig, ok = headers[strings.ToLower(HeaderSignatureHub)]
	}
	if !ok || sig == "" {
		return fail("missing signature header", nil), nil
	}
	if i := strings.IndexByte(sig, '='); i >= 0 {
		prefix := sig[:i]
		if !strings.EqualFold(prefix, algorithm) {
			return fail("signature algorithm mismatch", logrus.Fields{"prefix": prefix}), nil
		}
		sig = sig[i+1:]
	}

	// 6. Timestamp freshness.
	tsRaw, ok := headers[strings.ToLower(HeaderTimestamp)]
	if !ok {
		return fail("missing timestamp header", nil), nil
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(tsRaw), 10, 64)
	if err != nil {
		return fail("unparseable timestamp", logrus.Fields{"value": tsRaw}), nil
	}
	skew := v.now().Unix() - ts
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(v.cfg.TimestampTolerance/time.Second) {
		return fail("timestamp outside tolerance", logrus.Fields{"skew_seconds": skew}), nil
	}

	// 7. Signature verification against every currently valid secret.
	verified := false
	for _, secret := range secrets {
		want, err := Sign(secret, algorithm, ts, payload)
		if err != nil {
			return nil, err
		}
		if hmac.Equal([]byte(strings.ToLower(sig)), []byte(want)) {
			verified = true
			break
		}
	}
	if !verified {
		return fail("signature mismatch", nil), nil
	}

	// 8. Replay detection.
	isRetry := false
	if deliveryID, ok := headers[strings.ToLower(HeaderDelivery)]; ok && deliveryID != "" {
		seen, err := v.store.RecordWebhookDelivery(ctx, &types.WebhookDelivery{
			DeliveryID: deliveryID,
			WebhookID:  req.WebhookID,
			ReceivedAt: v.now().UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("recording delivery id: %w", err)
		}
		isRetry = seen
	}

	return &Result{Valid: true, Payload: payload, IsRetry: isRetry}, nil
}

// resolveSecrets returns the secrets currently accepted for a request
// and the algorithm to verify with. During rotation both the new and
// the old secret are accepted until the grace window closes.
func (v *Verifier) resolveSecrets(ctx context.Context, webhookID string) ([]string, string, error) {
	if webhookID == "" {
		if v.cfg.Secret == "" {
			return nil, "", storage.ErrNotFound
		}
		return []string{v.cfg.Secret}, v.cfg.Algorithm, nil
	}

	ep, err := v.store.GetWebhookEndpoint(ctx, webhookID)
	if err != nil {
		return nil, "", err
	}
	secrets := []string{ep.Secret}
	if ep.OldSecret != "" && ep.OldSecretValidUntil != nil && v.now().Before(*ep.OldSecretValidUntil) {
		secrets = append(secrets, ep.OldSecret)
	}
	algorithm := ep.Algorithm
	if algorithm == "" {
		algorithm = "sha256"
	}
	return secrets, algorithm, nil
}

// RotateSecret replaces an endpoint's secret, keeping the previous one
// valid for the grace window. Returns the updated endpoint carrying the
// new secret.
func (v *Verifier) RotateSecret(ctx context.Context, webhookID string, grace time.Duration) (*types.WebhookEndpoint, error) {
	if grace <= 0 {
		grace = DefaultRotationGrace
	}
	ep, err := v.store.GetWebhookEndpoint(ctx, webhookID)
	if err != nil {
		return nil, fmt.Errorf("loading webhook endpoint: %w", err)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generating webhook secret: %w", err)
	}
	validUntil := v.now().Add(grace).UTC()

	ep.OldSecret = ep.Secret
	ep.OldSecretValidUntil = &validUntil
	ep.Secret = hex.EncodeToString(raw)
	if err := v.store.PutWebhookEndpoint(ctx, ep); err != nil {
		return nil, fmt.Errorf("storing rotated endpoint: %w", err)
	}

	v.log.WithFields(logrus.Fields{
		"webhook_id":  webhookID,
		"valid_until": validUntil,
	}).Info("webhook secret rotated")
	return ep, nil
}

// Sign computes the hex HMAC of "{timestamp}.{canonical-json}" under
// the given secret. Exported so senders and tests produce identical
// signatures.
func Sign(secret, algorithm string, timestamp int64, payload map[string]any) (string, error) {
	canonical, err := canonicalJSON(payload)
	if err != nil {
		return "", fmt.Errorf("canonicalizing payload: %w", err)
	}

	var newHash func() hash.Hash
	switch strings.ToLower(algorithm) {
	case "sha256", "":
		newHash = sha256.New
	case "sha512":
		newHash = sha512.New
	case "sha1":
		newHash = sha1.New
	default:
		return "", fmt.Errorf("unsupported webhook algorithm %q", algorithm)
	}

	mac := hmac.New(newHash, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", timestamp, canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// decodePayload parses the body preserving number text, so the
// canonical form round-trips exactly what the sender signed.
func decodePayload(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// canonicalJSON serializes with sorted keys and no whitespace.
func canonicalJSON(v any) (string, error) {
	var b strings.Builder
	if err := writeCanonical(&b, v); err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeCanonical(b *strings.Builder, v any) error {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			b.Write(kb)
			b.WriteByte(':')
			if err := writeCanonical(b, t[k]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
		return nil
	case []any:
		b.WriteByte('[')
		for i, el := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := writeCanonical(b, el); err != nil {
				return err
			}
		}
		b.WriteByte(']')
		return nil
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return err
		}
		b.Write(raw)
		return nil
	}
}

func lowerHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, val := range h {
		out[strings.ToLower(k)] = val
	}
	return out
}
