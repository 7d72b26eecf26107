package schedule

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"crosspost/internal/domain/entity"
)

// ErrCancelled is returned by Update when the stored post was cancelled
// after being claimed. The dispatch outcome is discarded, never written
// over the cancellation.
var ErrCancelled = errors.New("scheduled post cancelled")

// Store persists scheduled posts. The only implementation today is
// in-memory; the interface keeps a durable store wireable later.
type Store interface {
	// Save inserts or replaces a post by id.
	Save(post *entity.ScheduledPost) error

	// Get returns a copy of the post with the given id.
	Get(id string) (*entity.ScheduledPost, bool)

	// ClaimDue atomically moves every scheduled post due at or before now
	// to publishing and returns copies, ordered by scheduled time. A
	// claimed post is invisible to subsequent claims until written back.
	// A limit of zero means no limit.
	ClaimDue(now time.Time, limit int) []*entity.ScheduledPost

	// Update writes a mutated post back. Unknown ids are an error, and
	// a post cancelled since it was claimed stays cancelled: the write
	// is refused with ErrCancelled.
	Update(post *entity.ScheduledPost) error

	// Cancel moves a post to cancelled. A scheduled post is cancelled
	// outright; a publishing post is marked cancelled so Update discards
	// its in-flight dispatch outcome. Returns false when the post is
	// unknown or already terminal.
	Cancel(id string) bool

	// List returns copies of every stored post.
	List() []*entity.ScheduledPost
}

// MemoryStore is a mutex-guarded in-memory Store. A process restart loses
// every pending post.
type MemoryStore struct {
	mu    sync.Mutex
	posts map[string]*entity.ScheduledPost
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{posts: make(map[string]*entity.ScheduledPost)}
}

// Save implements Store.Save.
func (s *MemoryStore) Save(post *entity.ScheduledPost) error {
	if post == nil || post.ID == "" {
		return fmt.Errorf("scheduled post must have an id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *post
	s.posts[post.ID] = &clone
	return nil
}

// Get implements Store.Get.
func (s *MemoryStore) Get(id string) (*entity.ScheduledPost, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, false
	}
	clone := *post
	return &clone, true
}

// ClaimDue implements Store.ClaimDue.
func (s *MemoryStore) ClaimDue(now time.Time, limit int) []*entity.ScheduledPost {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*entity.ScheduledPost
	for _, post := range s.posts {
		if post.Status == entity.PostStatusScheduled && !post.ScheduledAt.After(now) {
			due = append(due, post)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].ScheduledAt.Before(due[j].ScheduledAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*entity.ScheduledPost, 0, len(due))
	for _, post := range due {
		if err := post.TransitionTo(entity.PostStatusPublishing); err != nil {
			continue
		}
		clone := *post
		claimed = append(claimed, &clone)
	}
	return claimed
}

// Update implements Store.Update.
func (s *MemoryStore) Update(post *entity.ScheduledPost) error {
	if post == nil || post.ID == "" {
		return fmt.Errorf("scheduled post must have an id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.posts[post.ID]
	if !ok {
		return fmt.Errorf("update scheduled post %q: %w", post.ID, entity.ErrNotFound)
	}
	if stored.Status == entity.PostStatusCancelled {
		return fmt.Errorf("update scheduled post %q: %w", post.ID, ErrCancelled)
	}
	clone := *post
	s.posts[post.ID] = &clone
	return nil
}

// Cancel implements Store.Cancel.
func (s *MemoryStore) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	if !ok {
		return false
	}
	if post.Status != entity.PostStatusScheduled && post.Status != entity.PostStatusPublishing {
		return false
	}
	return post.TransitionTo(entity.PostStatusCancelled) == nil
}

// List implements Store.List.
func (s *MemoryStore) List() []*entity.ScheduledPost {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*entity.ScheduledPost, 0, len(s.posts))
	for _, post := range s.posts {
		clone := *post
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out
}
