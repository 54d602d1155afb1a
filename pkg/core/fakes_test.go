package core_test

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/muika-lab/memekeeper/pkg/blob"
	"github.com/muika-lab/memekeeper/pkg/llm"
	"github.com/muika-lab/memekeeper/pkg/storage"
)

// fakeStore is an in-memory storage.Store for tests. It mirrors the SQL
// backends' semantics: soft deletes, FIFO eviction by CreatedAt then ID, and
// most-recent-first listing.
type fakeStore struct {
	mu    sync.Mutex
	memes map[int64]*storage.Meme

	countErr  error
	insertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{memes: make(map[int64]*storage.Meme)}
}

func (s *fakeStore) Insert(ctx context.Context, meme *storage.Meme) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	clone := *meme
	s.memes[meme.ID] = &clone
	return nil
}

func (s *fakeStore) Get(ctx context.Context, id int64) (*storage.Meme, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meme, ok := s.memes[id]
	if !ok || !meme.Valid {
		return nil, storage.ErrNotFound
	}
	clone := *meme
	return &clone, nil
}

func (s *fakeStore) GetAll(ctx context.Context, limit int) ([]*storage.Meme, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*storage.Meme
	for _, meme := range s.memes {
		if meme.Valid {
			clone := *meme
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countErr != nil {
		return 0, s.countErr
	}
	count := 0
	for _, meme := range s.memes {
		if meme.Valid {
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	meme, ok := s.memes[id]
	if !ok || !meme.Valid {
		return storage.ErrNotFound
	}
	meme.Valid = false
	return nil
}

func (s *fakeStore) EvictOldest(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var oldest *storage.Meme
	for _, meme := range s.memes {
		if !meme.Valid {
			continue
		}
		if oldest == nil ||
			meme.CreatedAt.Before(oldest.CreatedAt) ||
			(meme.CreatedAt.Equal(oldest.CreatedAt) && meme.ID < oldest.ID) {
			oldest = meme
		}
	}
	if oldest == nil {
		return 0, storage.ErrNotFound
	}
	oldest.Valid = false
	return oldest.ID, nil
}

func (s *fakeStore) FindByHash(ctx context.Context, hash string) (*storage.Meme, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *storage.Meme
	for _, meme := range s.memes {
		if meme.Valid && meme.Hash == hash {
			if found == nil || meme.ID < found.ID {
				found = meme
			}
		}
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	clone := *found
	return &clone, nil
}

func (s *fakeStore) Touch(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	meme, ok := s.memes[id]
	if !ok || !meme.Valid {
		return storage.ErrNotFound
	}
	meme.UseCount++
	return nil
}

func (s *fakeStore) Close() error { return nil }

// fakeBlobStore keeps blobs in a map keyed by digest.
type fakeBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{blobs: make(map[string][]byte)}
}

func (b *fakeBlobStore) Put(ctx context.Context, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ref := blob.Digest(data)
	b.blobs[ref] = append([]byte(nil), data...)
	return ref, nil
}

func (b *fakeBlobStore) Get(ctx context.Context, ref string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.blobs[ref]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

func (b *fakeBlobStore) Exists(ctx context.Context, ref string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.blobs[ref]
	return ok, nil
}

func (b *fakeBlobStore) Remove(ctx context.Context, ref string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, ref)
	return nil
}

// fakeLLM replies with scripted responses.
type fakeLLM struct {
	mu sync.Mutex

	// describeResponse answers tagging calls (messages carrying images and
	// the labelling system prompt).
	describeResponse string

	// verdictResponse answers security-check calls.
	verdictResponse string

	// err fails every call when set.
	err error

	calls int
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return f.GenerateWithMessages(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
}

func (f *fakeLLM) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	for _, message := range messages {
		if message.Role == "system" && containsSafetyPrompt(message.Content) {
			return f.verdictResponse, nil
		}
	}
	return f.describeResponse, nil
}

func (f *fakeLLM) Close() error { return nil }

func containsSafetyPrompt(content string) bool {
	return strings.Contains(content, "content-safety")
}
