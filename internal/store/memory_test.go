package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetSet(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(context.Background(), "k", []byte("v1")))
	val, err := s.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), val)

	require.NoError(t, s.Set(context.Background(), "k", []byte("v2")))
	val, err = s.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), val, "expected set to overwrite")
}

func TestMemoryStore_Append(t *testing.T) {
	s := NewMemoryStore()

	elements, err := s.GetList(context.Background(), "list")
	require.NoError(t, err)
	assert.Empty(t, elements, "expected unknown list to read as empty")

	require.NoError(t, s.Append(context.Background(), "list", []byte("a")))
	require.NoError(t, s.Append(context.Background(), "list", []byte("b")))

	elements, err = s.GetList(context.Background(), "list")
	require.NoError(t, err)
	require.Len(t, elements, 2)
	assert.Equal(t, []byte("a"), elements[0])
	assert.Equal(t, []byte("b"), elements[1])
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	s := NewMemoryStore()

	buf := []byte("original")
	require.NoError(t, s.Set(context.Background(), "k", buf))
	buf[0] = 'X'

	val, err := s.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), val, "expected stored value to be isolated from caller buffer")
}

func TestConversationMeta(t *testing.T) {
	meta := ConversationMeta{
		Id:           "c1",
		Participants: [2]string{"alice", "bob"},
	}

	assert.True(t, meta.HasParticipant("alice"))
	assert.True(t, meta.HasParticipant("bob"))
	assert.False(t, meta.HasParticipant("mallory"))

	assert.Equal(t, "bob", meta.Other("alice"))
	assert.Equal(t, "alice", meta.Other("bob"))
}
