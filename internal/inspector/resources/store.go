package resources

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownResource is returned for identifiers the store never saw.
var ErrUnknownResource = errors.New("unknown resource")

// Store holds the resources of the current page load, in creation order.
type Store struct {
	byID  map[uint64]*Resource
	order []uint64
	now   func() time.Time
}

// NewStore creates an empty store. A nil clock selects time.Now.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{byID: make(map[uint64]*Resource), now: now}
}

// Create starts tracking a resource. An existing resource with the same
// identifier is replaced.
func (s *Store) Create(id uint64, url, documentURL string, main bool) *Resource {
	r := &Resource{
		ID:           id,
		URL:          url,
		DocumentURL:  documentURL,
		MainResource: main,
		Kind:         TypeOther,
		StartTime:    seconds(s.now()),
	}
	if main {
		r.Kind = TypeDoc
	}
	if _, ok := s.byID[id]; !ok {
		s.order = append(s.order, id)
	}
	s.byID[id] = r
	return r
}

// CreateCached tracks a resource served from the memory cache. It is
// complete as soon as it is created.
func (s *Store) CreateCached(id uint64, documentURL string, resp Response, length int) *Resource {
	r := s.Create(id, resp.URL, documentURL, false)
	r.UpdateResponse(resp, s.now())
	r.Cached = true
	r.Finished = true
	r.Length = length
	r.ResponseReceivedTime = r.StartTime
	r.EndTime = r.StartTime
	return r
}

// CreateWebSocket tracks a websocket connection.
func (s *Store) CreateWebSocket(id uint64, url, documentURL string) *Resource {
	r := s.Create(id, url, documentURL, false)
	r.Kind = TypeWebSocket
	return r
}

// Get returns the resource with the given identifier.
func (s *Store) Get(id uint64) (*Resource, error) {
	r, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("resource %d: %w", id, ErrUnknownResource)
	}
	return r, nil
}

// Finish marks a resource as completely loaded.
func (s *Store) Finish(id uint64) (*Resource, error) {
	r, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	r.Finished = true
	r.EndTime = seconds(s.now())
	return r, nil
}

// Fail marks a resource as failed.
func (s *Store) Fail(id uint64, description string) (*Resource, error) {
	r, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	r.Failed = true
	r.Finished = true
	r.FailDescription = description
	r.EndTime = seconds(s.now())
	return r, nil
}

// ReceiveResponse records a response for id.
func (s *Store) ReceiveResponse(id uint64, resp Response) (*Resource, error) {
	r, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	r.UpdateResponse(resp, s.now())
	return r, nil
}

// Remove stops tracking id.
func (s *Store) Remove(id uint64) {
	if _, ok := s.byID[id]; !ok {
		return
	}
	delete(s.byID, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Retain drops every resource for which keep returns false.
func (s *Store) Retain(keep func(*Resource) bool) {
	kept := s.order[:0]
	for _, id := range s.order {
		if keep(s.byID[id]) {
			kept = append(kept, id)
			continue
		}
		delete(s.byID, id)
	}
	s.order = kept
}

// All returns every tracked resource in creation order.
func (s *Store) All() []*Resource {
	out := make([]*Resource, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Len returns the number of tracked resources.
func (s *Store) Len() int { return len(s.order) }

// Clear drops every resource.
func (s *Store) Clear() {
	s.byID = make(map[uint64]*Resource)
	s.order = nil
}
