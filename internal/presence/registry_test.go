package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkOnline_LastConnectWins(t *testing.T) {
	r := NewMemoryRegistry(DefaultGraceWindow)
	t.Cleanup(func() { _ = r.Close() })
	ctx := context.Background()

	replaced, err := r.MarkOnline(ctx, 1, "conn-a")
	require.NoError(t, err)
	assert.Empty(t, replaced, "first connection replaces nothing")

	replaced, err = r.MarkOnline(ctx, 1, "conn-b")
	require.NoError(t, err)
	assert.Equal(t, "conn-a", replaced, "newer connection supersedes the previous one")

	entry, err := r.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "conn-b", entry.ConnID)
	assert.Equal(t, StatusOnline, entry.Status)

	online, err := r.IsOnline(ctx, 1)
	require.NoError(t, err)
	assert.True(t, online)
}

func TestMarkOffline_StaleConnIsIgnored(t *testing.T) {
	r := NewMemoryRegistry(DefaultGraceWindow)
	t.Cleanup(func() { _ = r.Close() })
	ctx := context.Background()

	_, err := r.MarkOnline(ctx, 1, "conn-a")
	require.NoError(t, err)
	_, err = r.MarkOnline(ctx, 1, "conn-b")
	require.NoError(t, err)

	// The disconnect of the superseded connection arrives late.
	require.NoError(t, r.MarkOffline(ctx, 1, "conn-a"))

	online, err := r.IsOnline(ctx, 1)
	require.NoError(t, err)
	assert.True(t, online, "stale disconnect must not knock the newer connection offline")
}

func TestMarkOffline_EntryLingersThroughGraceWindow(t *testing.T) {
	r := NewMemoryRegistry(20 * time.Millisecond)
	t.Cleanup(func() { _ = r.Close() })
	ctx := context.Background()

	_, err := r.MarkOnline(ctx, 1, "conn-a")
	require.NoError(t, err)
	require.NoError(t, r.MarkOffline(ctx, 1, "conn-a"))

	entry, err := r.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, entry, "entry lingers during the grace window")
	assert.Equal(t, StatusOffline, entry.Status)
	assert.False(t, entry.LastSeen.IsZero())

	online, err := r.IsOnline(ctx, 1)
	require.NoError(t, err)
	assert.False(t, online)

	assert.Eventually(t, func() bool {
		entry, err := r.Get(ctx, 1)
		return err == nil && entry == nil
	}, time.Second, 5*time.Millisecond, "entry evicted after the grace window")
}

func TestMarkOnline_CancelsPendingEviction(t *testing.T) {
	r := NewMemoryRegistry(30 * time.Millisecond)
	t.Cleanup(func() { _ = r.Close() })
	ctx := context.Background()

	_, err := r.MarkOnline(ctx, 1, "conn-a")
	require.NoError(t, err)
	require.NoError(t, r.MarkOffline(ctx, 1, "conn-a"))

	// Reconnect inside the grace window.
	_, err = r.MarkOnline(ctx, 1, "conn-b")
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	entry, err := r.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, entry, "reconnect must cancel the pending eviction")
	assert.Equal(t, StatusOnline, entry.Status)
	assert.Equal(t, "conn-b", entry.ConnID)
}

func TestGet_UnknownUser(t *testing.T) {
	r := NewMemoryRegistry(DefaultGraceWindow)
	t.Cleanup(func() { _ = r.Close() })

	entry, err := r.Get(context.Background(), 404)
	require.NoError(t, err)
	assert.Nil(t, entry)

	online, err := r.IsOnline(context.Background(), 404)
	require.NoError(t, err)
	assert.False(t, online)
}

func TestMarkOffline_UnknownUserIsNoop(t *testing.T) {
	r := NewMemoryRegistry(DefaultGraceWindow)
	t.Cleanup(func() { _ = r.Close() })

	require.NoError(t, r.MarkOffline(context.Background(), 404, "conn-x"))
}

func TestEntryEncoding_RoundTrip(t *testing.T) {
	now := time.Now()
	raw := encodeEntry(StatusOnline, "conn-a", now)

	entry := decodeEntry(7, raw)
	require.NotNil(t, entry)
	assert.Equal(t, int64(7), entry.UserID)
	assert.Equal(t, "conn-a", entry.ConnID)
	assert.Equal(t, StatusOnline, entry.Status)
	assert.Equal(t, now.UnixNano(), entry.LastSeen.UnixNano())
}

func TestDecodeEntry_Malformed(t *testing.T) {
	assert.Nil(t, decodeEntry(1, "not-a-presence-entry"))
	assert.Nil(t, decodeEntry(1, "online|conn|not-a-number"))
}
