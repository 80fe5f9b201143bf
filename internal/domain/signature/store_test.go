package signature

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soilSpoon/llmux/internal/domain/dialect"
	"github.com/soilSpoon/llmux/internal/domain/signature/storage"
)

// fakeRecordStorage is an in-memory storage.RecordStorage counting writes per
// signature so SaveSignature's singleflight dedup can be asserted directly.
type fakeRecordStorage struct {
	mu      sync.Mutex
	records map[string]storage.Record
	writes  int32
}

func newFakeRecordStorage() *fakeRecordStorage {
	return &fakeRecordStorage{records: make(map[string]storage.Record)}
}

func (f *fakeRecordStorage) SaveRecord(r storage.Record) error {
	atomic.AddInt32(&f.writes, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[r.Signature] = r
	return nil
}

func (f *fakeRecordStorage) GetRecord(sig string) (storage.Record, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[sig]
	return r, ok, nil
}

func (f *fakeRecordStorage) Close() error { return nil }

func TestSaveSignature_DedupesConcurrentIdenticalWrites(t *testing.T) {
	backend := newFakeRecordStorage()
	store := NewStore(backend)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_ = store.SaveSignature(storage.Record{Signature: "sig-shared", ProjectID: "proj-1"})
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&backend.writes))
}

func TestIsValidForProject(t *testing.T) {
	backend := newFakeRecordStorage()
	store := NewStore(backend)
	require.NoError(t, store.SaveSignature(storage.Record{Signature: "sig-1", ProjectID: "proj-a"}))

	ok, err := store.IsValidForProject("sig-1", "proj-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.IsValidForProject("sig-1", "proj-b")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.IsValidForProject("missing", "proj-a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateAndStripSignatures_StripsInvalidSignaturesOnly(t *testing.T) {
	backend := newFakeRecordStorage()
	store := NewStore(backend)
	require.NoError(t, store.SaveSignature(storage.Record{Signature: "valid-sig", ProjectID: "proj-a"}))

	conv := dialect.Conversation{Messages: []dialect.Message{
		{Role: dialect.RoleAssistant, Parts: []dialect.Part{
			{Kind: dialect.PartThinking, ThinkingText: "keep", Signature: "valid-sig"},
			{Kind: dialect.PartThinking, ThinkingText: "drop text kept", Signature: "invalid-sig"},
			{Kind: dialect.PartThinking, Signature: "invalid-sig-bare"},
			{Kind: dialect.PartText, Text: "hello"},
		}},
	}}

	result, err := store.ValidateAndStripSignatures(conv, "proj-a")
	require.NoError(t, err)
	assert.Equal(t, 2, result.StrippedCount)

	parts := result.Conversation.Messages[0].Parts
	require.Len(t, parts, 3)
	assert.Equal(t, "valid-sig", parts[0].Signature)
	assert.Equal(t, "drop text kept", parts[1].ThinkingText)
	assert.Empty(t, parts[1].Signature)
	assert.Equal(t, dialect.PartText, parts[2].Kind)
}

func TestStripAllSignatures_ClearsEverySignatureRegardlessOfValidity(t *testing.T) {
	conv := dialect.Conversation{Messages: []dialect.Message{
		{Role: dialect.RoleAssistant, Parts: []dialect.Part{
			{Kind: dialect.PartThinking, ThinkingText: "a", Signature: "sig-a"},
			{Kind: dialect.PartThinking, ThinkingText: "b", Signature: "sig-b"},
		}},
	}}

	out := StripAllSignatures(conv)
	for _, part := range out.Messages[0].Parts {
		assert.Empty(t, part.Signature)
	}
	assert.Equal(t, "a", out.Messages[0].Parts[0].ThinkingText)
}
