package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	inats "github.com/rsm-platform/rsm/internal/nats"
)

const maxSessionIDLen = 128

// ErrInvalidInput wraps every validation failure of the service.
var ErrInvalidInput = errors.New("conversation: invalid input")

// Publisher announces appended messages.
type Publisher interface {
	PublishConversationAppended(ctx context.Context, evt inats.ConversationAppended) error
}

type Service struct {
	store     Store
	publisher Publisher
	validate  *validator.Validate
	now       func() time.Time
}

// NewService builds a Service. publisher may be nil, in which case appends
// are not announced and nothing gets indexed.
func NewService(store Store, publisher Publisher) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		validate:  validator.New(),
		now:       time.Now,
	}
}

// Messages returns the whole log of a session.
func (s *Service) Messages(ctx context.Context, organizationID int64, sessionID string) ([]Message, error) {
	if err := checkSession(organizationID, sessionID); err != nil {
		return nil, err
	}
	return s.store.Messages(ctx, organizationID, sessionID)
}

// List returns one page of a session log along with its total length.
func (s *Service) List(ctx context.Context, organizationID int64, sessionID string, offset, limit int) ([]Message, int, error) {
	msgs, err := s.Messages(ctx, organizationID, sessionID)
	if err != nil {
		return nil, 0, err
	}
	total := len(msgs)
	if offset >= total {
		return []Message{}, total, nil
	}
	end := min(offset+limit, total)
	return msgs[offset:end], total, nil
}

// Append validates and stores msgs, stamping missing timestamps.
func (s *Service) Append(ctx context.Context, organizationID int64, sessionID string, msgs []Message) (int, error) {
	if err := checkSession(organizationID, sessionID); err != nil {
		return 0, err
	}
	if len(msgs) == 0 {
		return 0, fmt.Errorf("%w: no messages", ErrInvalidInput)
	}

	now := s.now().UTC()
	stamped := make([]Message, len(msgs))
	for i, m := range msgs {
		if err := s.validate.Struct(m); err != nil {
			return 0, fmt.Errorf("%w: message %d: %v", ErrInvalidInput, i, err)
		}
		if m.Timestamp == "" {
			m.Timestamp = now.Format(time.RFC3339Nano)
		}
		stamped[i] = m
	}

	length, err := s.store.Append(ctx, organizationID, sessionID, stamped...)
	if err != nil {
		return 0, fmt.Errorf("appending messages: %w", err)
	}

	if s.publisher != nil {
		evt := inats.ConversationAppended{
			OrganizationID: organizationID,
			SessionID:      sessionID,
			FirstIndex:     length - len(stamped),
			Length:         length,
			AppendedAt:     now,
		}
		if err := s.publisher.PublishConversationAppended(ctx, evt); err != nil {
			slog.Warn("publishing conversation appended event",
				"error", err, "org_id", organizationID, "session_id", sessionID)
		}
	}
	return length, nil
}

func checkSession(organizationID int64, sessionID string) error {
	if organizationID <= 0 {
		return fmt.Errorf("%w: organization id must be positive", ErrInvalidInput)
	}
	if sessionID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidInput, ErrEmptySession)
	}
	if len(sessionID) > maxSessionIDLen {
		return fmt.Errorf("%w: session id longer than %d", ErrInvalidInput, maxSessionIDLen)
	}
	return nil
}
