package gateway

import (
	"sort"
	"sync"
	"time"

	"github.com/deplai/deplai-connector/models"
	"github.com/patrickmn/go-cache"
)

// sessionRegistry remembers the scans this gateway submitted so status
// polls can be attributed to a user and terminal transitions announced once.
// Entries expire after the configured TTL; the backend stays the source of
// truth for status.
type sessionRegistry struct {
	mu    sync.Mutex // serialises read-modify-write in update
	items *cache.Cache
	now   func() time.Time
}

func newSessionRegistry(ttl time.Duration) *sessionRegistry {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &sessionRegistry{items: cache.New(ttl, ttl/2), now: time.Now}
}

func (r *sessionRegistry) put(s models.ScanSession) {
	if s.ScanID == "" {
		return
	}
	r.items.SetDefault(s.ScanID, s)
}

func (r *sessionRegistry) get(scanID string) (models.ScanSession, bool) {
	v, ok := r.items.Get(scanID)
	if !ok {
		return models.ScanSession{}, false
	}
	return v.(models.ScanSession), true
}

// update records a freshly read status. It returns the stored session and
// whether this read moved it into a terminal status.
func (r *sessionRegistry) update(scanID string, status models.ScanStatus, phase string) (models.ScanSession, bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.get(scanID)
	if !ok {
		return models.ScanSession{}, false, false
	}
	becameTerminal := status.Terminal() && !s.Status.Terminal()
	if status != "" {
		s.Status = status
	}
	if phase != "" {
		s.Phase = phase
	}
	s.UpdatedAt = r.now().UTC()
	r.items.SetDefault(scanID, s)
	return s, becameTerminal, true
}

// forUser returns the user's sessions, newest first.
func (r *sessionRegistry) forUser(userID string) []models.ScanSession {
	out := make([]models.ScanSession, 0)
	for _, item := range r.items.Items() {
		s, ok := item.Object.(models.ScanSession)
		if ok && s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ScanID < out[j].ScanID
		}
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out
}

func (r *sessionRegistry) count() int { return r.items.ItemCount() }
