package remote

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pettrail/pettrail/pkg/models"
)

// Memory is an in-memory Store used by tests and the standalone serve mode.
// SetOffline simulates connectivity loss: every call fails with
// ErrUnavailable and nothing is applied.
type Memory struct {
	mu       sync.Mutex
	offline  bool
	docs     map[string]map[string]any
	sessions map[string]models.Session
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		docs:     make(map[string]map[string]any),
		sessions: make(map[string]models.Session),
	}
}

// SetOffline toggles simulated connectivity loss.
func (m *Memory) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = offline
}

// CommitBatch applies all writes or none.
func (m *Memory) CommitBatch(ctx context.Context, writes []Write) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.offline {
		return ErrUnavailable
	}

	for _, w := range writes {
		key := w.Collection + "/" + w.DocID
		switch {
		case w.Delete:
			delete(m.docs, key)
			if w.Collection == CollectionSessions {
				delete(m.sessions, w.DocID)
			}
		case w.Session != nil:
			m.sessions[w.DocID] = *w.Session
			m.docs[key] = map[string]any{"owner_id": w.Session.OwnerID, "subject_id": w.Session.SubjectID}
		default:
			doc := m.docs[key]
			if doc == nil {
				doc = make(map[string]any)
				m.docs[key] = doc
			}
			for field, value := range w.Set {
				doc[field] = value
			}
			for field, delta := range w.Increment {
				current, _ := doc[field].(float64)
				doc[field] = current + delta
			}
		}
	}
	return nil
}

// GetDocument returns a copy of a document's fields.
func (m *Memory) GetDocument(ctx context.Context, collection, docID string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.offline {
		return nil, ErrUnavailable
	}

	doc, ok := m.docs[collection+"/"+docID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out, nil
}

// SessionsInRange returns the subject's sessions in [from, to).
func (m *Memory) SessionsInRange(ctx context.Context, ownerID, subjectID string, from, to time.Time) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.offline {
		return nil, ErrUnavailable
	}

	var out []models.Session
	for _, s := range m.sessions {
		if s.OwnerID != ownerID || s.SubjectID != subjectID {
			continue
		}
		if s.Timestamp.Before(from) || !s.Timestamp.Before(to) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// SessionCount reports how many session records are stored.
func (m *Memory) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

var _ Store = (*Memory)(nil)
