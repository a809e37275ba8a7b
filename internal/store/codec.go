package store

import (
	"encoding/json"
	"fmt"

	"github.com/ashureev/paradox-gate/internal/domain"
)

// encodeSession serializes a session as a versioned JSON document.
func encodeSession(s *domain.Session) ([]byte, error) {
	s.SchemaVersion = domain.SchemaVersion
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode session %s: %w", s.Token, err)
	}
	return b, nil
}

// decodeSession parses a stored document, rejecting unknown schema
// versions so corrupt or foreign data is never interpreted as state.
func decodeSession(b []byte) (*domain.Session, error) {
	var s domain.Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode session document: %w", err)
	}
	if s.SchemaVersion != domain.SchemaVersion {
		return nil, fmt.Errorf("unsupported session schema version %d", s.SchemaVersion)
	}
	return &s, nil
}
