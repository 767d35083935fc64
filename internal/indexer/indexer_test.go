package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsm-platform/rsm/internal/chunker"
	"github.com/rsm-platform/rsm/internal/conversation"
	inats "github.com/rsm-platform/rsm/internal/nats"
	"github.com/rsm-platform/rsm/internal/vectorstore"
)

type fakeHistory struct {
	msgs []conversation.Message
	err  error
}

func (f *fakeHistory) Messages(context.Context, int64, string) ([]conversation.Message, error) {
	return f.msgs, f.err
}

type fakeWriter struct {
	calls [][]vectorstore.Document
	err   error
}

func (f *fakeWriter) AddDocuments(_ context.Context, docs []vectorstore.Document) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.calls = append(f.calls, docs)
	return len(docs), nil
}

type fakePublisher struct {
	events []inats.ConversationIndexed
	err    error
}

func (f *fakePublisher) PublishConversationIndexed(_ context.Context, evt inats.ConversationIndexed) error {
	f.events = append(f.events, evt)
	return f.err
}

func messages(n int) []conversation.Message {
	msgs := make([]conversation.Message, n)
	for i := range msgs {
		msgs[i] = conversation.Message{Role: conversation.RoleUser, Content: "message"}
	}
	return msgs
}

func event(t *testing.T, org int64, session string) []byte {
	t.Helper()
	data, err := json.Marshal(inats.ConversationAppended{OrganizationID: org, SessionID: session, Length: 1})
	require.NoError(t, err)
	return data
}

type fixture struct {
	ix        *Indexer
	history   *fakeHistory
	writer    *fakeWriter
	publisher *fakePublisher
	mr        *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	c, err := chunker.New(400, 50)
	require.NoError(t, err)

	f := &fixture{
		history:   &fakeHistory{},
		writer:    &fakeWriter{},
		publisher: &fakePublisher{},
		mr:        mr,
	}
	f.ix = New(f.history, f.writer, c, rdb, f.publisher)
	f.ix.now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }
	return f
}

func TestHandle_IndexesOnlyNewMessages(t *testing.T) {
	f := newFixture(t)
	f.history.msgs = messages(3)

	require.NoError(t, f.ix.handle(context.Background(), event(t, 7, "s1")))
	require.Len(t, f.writer.calls, 1)
	assert.Len(t, f.writer.calls[0], 3)

	got, err := f.mr.Get(WatermarkKey(7, "s1"))
	require.NoError(t, err)
	assert.Equal(t, "3", got)

	f.history.msgs = messages(5)
	require.NoError(t, f.ix.handle(context.Background(), event(t, 7, "s1")))
	require.Len(t, f.writer.calls, 2)
	require.Len(t, f.writer.calls[1], 2)
	assert.Equal(t, 3, f.writer.calls[1][0].Metadata.MessageIndex)
	assert.Equal(t, 4, f.writer.calls[1][1].Metadata.MessageIndex)

	require.Len(t, f.publisher.events, 2)
	assert.Equal(t, inats.ConversationIndexed{
		OrganizationID: 7, SessionID: "s1", IndexedUpTo: 5, Chunks: 2,
		IndexedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}, f.publisher.events[1])
}

func TestHandle_AlreadyIndexedIsNoop(t *testing.T) {
	f := newFixture(t)
	f.history.msgs = messages(2)
	require.NoError(t, f.mr.Set(WatermarkKey(7, "s1"), "2"))

	require.NoError(t, f.ix.handle(context.Background(), event(t, 7, "s1")))
	assert.Empty(t, f.writer.calls)
	assert.Empty(t, f.publisher.events)
}

func TestHandle_CorruptWatermarkReindexesFromStart(t *testing.T) {
	f := newFixture(t)
	f.history.msgs = messages(2)
	require.NoError(t, f.mr.Set(WatermarkKey(7, "s1"), "garbage"))

	require.NoError(t, f.ix.handle(context.Background(), event(t, 7, "s1")))
	require.Len(t, f.writer.calls, 1)
	assert.Len(t, f.writer.calls[0], 2)
}

func TestHandle_MalformedEventsAreDropped(t *testing.T) {
	f := newFixture(t)

	err := f.ix.handle(context.Background(), []byte("{not json"))
	assert.ErrorIs(t, err, errMalformed)

	err = f.ix.handle(context.Background(), event(t, 0, "s1"))
	assert.ErrorIs(t, err, errMalformed)

	err = f.ix.handle(context.Background(), event(t, 7, ""))
	assert.ErrorIs(t, err, errMalformed)

	assert.Empty(t, f.writer.calls)
}

func TestHandle_StoreFailureKeepsWatermark(t *testing.T) {
	f := newFixture(t)
	f.history.msgs = messages(2)
	f.writer.err = errors.New("embedding provider down")

	err := f.ix.handle(context.Background(), event(t, 7, "s1"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, errMalformed)
	assert.False(t, f.mr.Exists(WatermarkKey(7, "s1")))
	assert.Empty(t, f.publisher.events)
}

func TestHandle_HistoryFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.history.err = errors.New("tenant db unavailable")

	err := f.ix.handle(context.Background(), event(t, 7, "s1"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, errMalformed)
}

func TestHandle_PublishFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.history.msgs = messages(1)
	f.publisher.err = errors.New("nats down")

	require.NoError(t, f.ix.handle(context.Background(), event(t, 7, "s1")))
	assert.True(t, f.mr.Exists(WatermarkKey(7, "s1")))
}

func TestIndexSession_WatermarksAreTenantScoped(t *testing.T) {
	f := newFixture(t)
	f.history.msgs = messages(1)

	require.NoError(t, f.ix.IndexSession(context.Background(), 1, "shared"))
	require.NoError(t, f.ix.IndexSession(context.Background(), 2, "shared"))

	require.Len(t, f.writer.calls, 2)
	assert.Equal(t, int64(1), f.writer.calls[0][0].Metadata.OrganizationID)
	assert.Equal(t, int64(2), f.writer.calls[1][0].Metadata.OrganizationID)
	assert.NotEqual(t, f.writer.calls[0][0].ID, f.writer.calls[1][0].ID)
}
