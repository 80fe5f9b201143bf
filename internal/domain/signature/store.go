package signature

import (
	"golang.org/x/sync/singleflight"

	"github.com/soilSpoon/llmux/internal/domain/dialect"
	"github.com/soilSpoon/llmux/internal/domain/signature/storage"
)

// Store is the persistent, project-scoped signature admissibility registry
// (C6). SaveSignature dedupes concurrent identical-signature writes within
// one stream using a singleflight.Group keyed by the signature string.
type Store struct {
	backend storage.RecordStorage
	group   singleflight.Group
}

// NewStore wraps a storage.RecordStorage backend.
func NewStore(backend storage.RecordStorage) *Store {
	return &Store{backend: backend}
}

// SaveSignature persists r, deduplicating concurrent calls for the same
// signature string so a burst of identical SSE signature events (common
// when a provider repeats the signature across deltas) issues a single
// backend write.
func (s *Store) SaveSignature(r storage.Record) error {
	_, err, _ := s.group.Do(r.Signature, func() (interface{}, error) {
		return nil, s.backend.SaveRecord(r)
	})
	return err
}

// GetRecord returns the stored record for signature, if any.
func (s *Store) GetRecord(sig string) (storage.Record, bool, error) {
	return s.backend.GetRecord(sig)
}

// IsValidForProject reports whether a record exists for sig whose
// ProjectID equals targetProjectID.
func (s *Store) IsValidForProject(sig, targetProjectID string) (bool, error) {
	rec, ok, err := s.GetRecord(sig)
	if err != nil || !ok {
		return false, err
	}
	return rec.ProjectID == targetProjectID, nil
}

// Close releases the underlying backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// StripResult is validateAndStripSignatures' return value.
type StripResult struct {
	Conversation  dialect.Conversation
	StrippedCount int
}

// ValidateAndStripSignatures deep-walks conv, stripping the signature field
// from any thinking part whose signature is not admissible for
// targetProjectID per s.IsValidForProject. Non-signature content (the
// thinking text and its tagged kind) is preserved; a part that carries
// nothing but a signature is dropped entirely. Parts/messages with no
// signature are left untouched.
func (s *Store) ValidateAndStripSignatures(conv dialect.Conversation, targetProjectID string) (StripResult, error) {
	out := dialect.Conversation{System: conv.System, Tools: conv.Tools, Messages: make([]dialect.Message, len(conv.Messages))}
	stripped := 0

	for mi, msg := range conv.Messages {
		newParts := make([]dialect.Part, 0, len(msg.Parts))
		for _, part := range msg.Parts {
			if !part.HasSignature() {
				newParts = append(newParts, part)
				continue
			}

			valid, err := s.IsValidForProject(part.Signature, targetProjectID)
			if err != nil {
				return StripResult{}, err
			}
			if valid {
				newParts = append(newParts, part)
				continue
			}

			stripped++
			part.Signature = ""
			if part.ThinkingText == "" {
				// nothing but the signature remained: drop the part
				continue
			}
			newParts = append(newParts, part)
		}
		out.Messages[mi] = dialect.Message{Role: msg.Role, Parts: newParts}
	}

	return StripResult{Conversation: out, StrippedCount: stripped}, nil
}

// StripAllSignatures removes every thinking part's signature unconditionally
// (retaining the text), used by RetryDriver when the model or provider
// changed since the previous attempt.
func StripAllSignatures(conv dialect.Conversation) dialect.Conversation {
	out := dialect.Conversation{System: conv.System, Tools: conv.Tools, Messages: make([]dialect.Message, len(conv.Messages))}
	for mi, msg := range conv.Messages {
		newParts := make([]dialect.Part, 0, len(msg.Parts))
		for _, part := range msg.Parts {
			if part.Kind == dialect.PartThinking {
				part.Signature = ""
			}
			newParts = append(newParts, part)
		}
		out.Messages[mi] = dialect.Message{Role: msg.Role, Parts: newParts}
	}
	return out
}
