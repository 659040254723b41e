package calendar

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/schedcu/core/internal/storage"
	"github.com/schedcu/core/internal/types"
)

// ErrUnauthorized is returned for unknown, revoked, or expired tokens.
// Callers surface it as 401.
var ErrUnauthorized = errors.New("calendar: subscription token not authorized")

// tokenBytes is the entropy of a subscription token before encoding.
const tokenBytes = 32

// Service issues subscription tokens and renders per-person ICS feeds.
type Service struct {
	store storage.Storage
	log   *logrus.Logger
	now   func() time.Time
	loc   *time.Location
}

// NewService builds a calendar service over the given storage.
func NewService(store storage.Storage, log *logrus.Logger) (*Service, error) {
	loc, err := time.LoadLocation(TZID)
	if err != nil {
		return nil, fmt.Errorf("loading feed timezone: %w", err)
	}
	return &Service{store: store, log: log, now: time.Now, loc: loc}, nil
}

// SetClock overrides the time source. Test hook.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Subscribe creates a new subscription for a person and returns it with
// a freshly generated URL-safe token.
func (s *Service) Subscribe(ctx context.Context, personID uuid.UUID, label string, createdBy *uuid.UUID, expiresAt *time.Time) (*types.CalendarSubscription, error) {
	if _, err := s.store.GetPerson(ctx, personID); err != nil {
		return nil, fmt.Errorf("looking up person %s: %w", personID, err)
	}

	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generating subscription token: %w", err)
	}

	sub := &types.CalendarSubscription{
		Token:           base64.RawURLEncoding.EncodeToString(raw),
		PersonID:        personID,
		CreatedByUserID: createdBy,
		Label:           label,
		IsActive:        true,
		CreatedAt:       s.now().UTC(),
		ExpiresAt:       expiresAt,
	}
	if err := s.store.PutSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("storing subscription: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"person_id": personID,
		"label":     label,
	}).Info("calendar subscription created")
	return sub, nil
}

// Revoke deactivates a subscription by token. Revoking an already
// revoked token is a no-op.
func (s *Service) Revoke(ctx context.Context, token string) error {
	sub, err := s.store.GetSubscriptionByToken(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrUnauthorized
	}
	if err != nil {
		return fmt.Errorf("looking up subscription: %w", err)
	}
	if sub.RevokedAt != nil {
		return nil
	}
	sub.Revoke(s.now().UTC())
	return s.store.PutSubscription(ctx, sub)
}

// WebcalURL builds the subscription URL handed to calendar clients.
func WebcalURL(host, token string) string {
	return fmt.Sprintf("webcal://%s/api/calendar/subscribe/%s", host, token)
}

// Feed authenticates the token, stamps last access, and renders the
// person's assignments in [start, end] as an ICS document.
func (s *Service) Feed(ctx context.Context, token string, start, end time.Time) (string, error) {
	sub, err := s.store.GetSubscriptionByToken(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		return "", ErrUnauthorized
	}
	if err != nil {
		return "", fmt.Errorf("looking up subscription: %w", err)
	}

	now := s.now().UTC()
	if !sub.Usable(now) {
		return "", ErrUnauthorized
	}

	sub.LastAccessedAt = &now
	if err := s.store.PutSubscription(ctx, sub); err != nil {
		return "", fmt.Errorf("stamping subscription access: %w", err)
	}

	events, err := s.buildEvents(ctx, sub.PersonID, start, end)
	if err != nil {
		return "", err
	}
	return WriteICS(events, now), nil
}

// Export renders a person's assignments without a subscription token.
// Administrative use, e.g. one-off CLI exports.
func (s *Service) Export(ctx context.Context, personID uuid.UUID, start, end time.Time) (string, error) {
	events, err := s.buildEvents(ctx, personID, start, end)
	if err != nil {
		return "", err
	}
	return WriteICS(events, s.now().UTC()), nil
}

func (s *Service) buildEvents(ctx context.Context, personID uuid.UUID, start, end time.Time) ([]Event, error) {
	person, err := s.store.GetPerson(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("looking up person %s: %w", personID, err)
	}

	assigns, err := s.store.ListAssignmentsInRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("listing assignments: %w", err)
	}

	rotations := make(map[uuid.UUID]*types.RotationTemplate)
	var events []Event
	for _, a := range assigns {
		if a.PersonID != personID {
			continue
		}
		block, err := s.store.GetBlock(ctx, a.BlockID)
		if err != nil {
			return nil, fmt.Errorf("loading block %s: %w", a.BlockID, err)
		}

		summary := "Scheduled"
		location := ""
		if a.RotationTemplateID != nil {
			rot, ok := rotations[*a.RotationTemplateID]
			if !ok {
				rot, err = s.store.GetRotationTemplate(ctx, *a.RotationTemplateID)
				if err != nil {
					return nil, fmt.Errorf("loading rotation %s: %w", *a.RotationTemplateID, err)
				}
				rotations[*a.RotationTemplateID] = rot
			}
			summary = rot.Name
			location = rot.ClinicLocation
		}

		evStart, evEnd := block.StartEnd(s.loc)
		events = append(events, Event{
			UID:         fmt.Sprintf("%s@schedcu", a.ID),
			Start:       evStart,
			End:         evEnd,
			Summary:     summary,
			Location:    location,
			Description: fmt.Sprintf("%s, %s block", person.Name, block.TimeOfDay),
		})
	}
	return events, nil
}
