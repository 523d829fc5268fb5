package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/FCE-Intelligence/internal/application/reporting"
	"github.com/turtacn/FCE-Intelligence/internal/domain/citation"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Job repository
// ─────────────────────────────────────────────────────────────────────────────

// JobStore is an in-memory reporting.JobRepository. Stored jobs are copied
// on the way in and out so callers cannot mutate them behind its back.
type JobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]reporting.Job

	// UpdateErr, when set, is returned by Update.
	UpdateErr error
	updates   int
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[uuid.UUID]reporting.Job)}
}

func (s *JobStore) Create(_ context.Context, job *reporting.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return errors.Conflict("report job already exists").WithDetail("id=" + job.ID.String())
	}
	s.jobs[job.ID] = *job
	return nil
}

func (s *JobStore) Get(_ context.Context, id uuid.UUID) (*reporting.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeReportJobNotFound, "report job not found").WithDetail("id=" + id.String())
	}
	return &job, nil
}

func (s *JobStore) Update(_ context.Context, job *reporting.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	if _, ok := s.jobs[job.ID]; !ok {
		return errors.New(errors.ErrCodeReportJobNotFound, "report job not found").WithDetail("id=" + job.ID.String())
	}
	s.jobs[job.ID] = *job
	return nil
}

// Updates is the number of Update calls so far.
func (s *JobStore) Updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

// ─────────────────────────────────────────────────────────────────────────────
// Publisher
// ─────────────────────────────────────────────────────────────────────────────

// Publisher records published messages. Err fails every publish.
type Publisher struct {
	mu       sync.Mutex
	messages []reporting.ReportRequested
	Err      error
}

func (p *Publisher) PublishReportRequested(_ context.Context, msg reporting.ReportRequested) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *Publisher) Messages() []reporting.ReportRequested {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]reporting.ReportRequested(nil), p.messages...)
}

// ─────────────────────────────────────────────────────────────────────────────
// Artefact store
// ─────────────────────────────────────────────────────────────────────────────

// ArtifactStore is an in-memory reporting.ArtifactStore.
type ArtifactStore struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
	PutErr       error
}

func NewArtifactStore() *ArtifactStore {
	return &ArtifactStore{objects: make(map[string][]byte), contentTypes: make(map[string]string)}
}

func (s *ArtifactStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PutErr != nil {
		return s.PutErr
	}
	s.objects[key] = append([]byte(nil), data...)
	s.contentTypes[key] = contentType
	return nil
}

func (s *ArtifactStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, errors.NotFound("object not found").WithDetail("key=" + key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Object returns the stored bytes and content type of key.
func (s *ArtifactStore) Object(key string) ([]byte, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	return data, s.contentTypes[key], ok
}

// Keys lists stored keys in lexical order.
func (s *ArtifactStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ─────────────────────────────────────────────────────────────────────────────
// Indexer
// ─────────────────────────────────────────────────────────────────────────────

// Indexer records indexed jobs. Err fails every call.
type Indexer struct {
	mu      sync.Mutex
	indexed []uuid.UUID
	Err     error
}

func (ix *Indexer) IndexReport(_ context.Context, job *reporting.Job, _ *reporting.Report) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.Err != nil {
		return ix.Err
	}
	ix.indexed = append(ix.indexed, job.ID)
	return nil
}

func (ix *Indexer) Indexed() []uuid.UUID {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return append([]uuid.UUID(nil), ix.indexed...)
}

// ─────────────────────────────────────────────────────────────────────────────
// Cache
// ─────────────────────────────────────────────────────────────────────────────

// Cache is an in-memory reporting.Cache storing JSON, like the Redis cache.
// Err fails every call.
type Cache struct {
	mu    sync.Mutex
	items map[string][]byte
	ttls  map[string]time.Duration
	Err   error
}

func NewCache() *Cache {
	return &Cache{items: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (c *Cache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	data, ok := c.items[key]
	if !ok {
		return errors.New(errors.ErrCodeNotFound, "cache miss").WithDetail("key=" + key)
	}
	return json.Unmarshal(data, dest)
}

func (c *Cache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.items[key] = data
	c.ttls[key] = ttl
	return nil
}

// TTL returns the ttl key was last stored with.
func (c *Cache) TTL(key string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ttl, ok := c.ttls[key]
	return ttl, ok
}

// ─────────────────────────────────────────────────────────────────────────────
// Resolver
// ─────────────────────────────────────────────────────────────────────────────

// CountingResolver wraps a resolver and counts lookups.
type CountingResolver struct {
	Next  citation.Resolver
	calls atomic.Int64
}

func (r *CountingResolver) Resolve(ctx context.Context, testID string) ([]*citation.Citation, error) {
	r.calls.Add(1)
	return r.Next.Resolve(ctx, testID)
}

func (r *CountingResolver) Calls() int { return int(r.calls.Load()) }
