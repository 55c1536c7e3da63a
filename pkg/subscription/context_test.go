package subscription

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingleReply(t *testing.T) {
	c := NewSingle[string]("7")
	assert.True(t, c.IsSingle())
	assert.Nil(t, c.RequestedKeys())
	assert.False(t, c.IsComplete())
	assert.Equal(t, []string{""}, c.Missing())

	complete, err := c.SetReply("", "ok")
	require.NoError(t, err)
	assert.True(t, complete)
	assert.True(t, c.IsComplete())
	assert.True(t, c.Terminated())

	replies, err := c.Stream().Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Reply[string]{{Key: "", Value: "ok"}}, replies)

	complete, err = c.SetReply("", "again")
	assert.True(t, complete)
	assert.ErrorIs(t, err, ErrTerminated)
}

func TestMultiReplyScenario(t *testing.T) {
	c, err := NewMulti[int]("42", []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, c.RequestedKeys())

	complete, err := c.SetReply("A", 1)
	require.NoError(t, err)
	assert.False(t, complete)
	assert.False(t, c.IsComplete())

	r, err := c.Stream().Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Reply[int]{Key: "A", Value: 1}, r)
	assert.False(t, c.Stream().Finished())

	complete, err = c.SetReply("B", 2)
	require.NoError(t, err)
	assert.True(t, complete)

	rest, err := c.Stream().Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Reply[int]{{Key: "B", Value: 2}}, rest)
}

func TestMultiReplyDuplicateKeyDoesNotComplete(t *testing.T) {
	c, err := NewMulti[int]("1", []string{"A", "B"})
	require.NoError(t, err)

	c.SetReply("A", 1)
	complete, err := c.SetReply("A", 99)
	require.NoError(t, err)
	assert.False(t, complete)
	assert.Equal(t, 1, c.Received())
	assert.Equal(t, 1, c.Replies()["A"])
	assert.Equal(t, 2, c.Stream().Pushed())
	assert.Equal(t, []string{"B"}, c.Missing())
}

func TestMultiReplyRejectsUnexpectedKey(t *testing.T) {
	c, err := NewMulti[int]("1", []string{"A"})
	require.NoError(t, err)

	_, err = c.SetReply("Z", 1)
	assert.ErrorIs(t, err, ErrUnexpectedKey)
	assert.Equal(t, 0, c.Stream().Pushed())
	assert.False(t, c.Expects("Z"))
	assert.True(t, c.Expects("A"))
}

func TestNewMultiValidation(t *testing.T) {
	_, err := NewMulti[int]("1", nil)
	assert.ErrorIs(t, err, ErrNoKeys)

	_, err = NewMulti[int]("1", []string{"A", "A"})
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestRequestedKeysImmutable(t *testing.T) {
	keys := []string{"A", "B"}
	c, err := NewMulti[int]("1", keys)
	require.NoError(t, err)

	keys[0] = "X"
	got := c.RequestedKeys()
	got[1] = "Y"
	assert.Equal(t, []string{"A", "B"}, c.RequestedKeys())
}

func TestFail(t *testing.T) {
	c := NewSingle[int]("1")
	boom := errors.New("channel disconnected")
	assert.True(t, c.Fail(boom))
	assert.False(t, c.Fail(errors.New("other")))

	_, err := c.SetReply("", 1)
	assert.ErrorIs(t, err, ErrTerminated)
	_, err = c.Stream().Collect(context.Background())
	assert.ErrorIs(t, err, boom)
}

// Completion is monotone and becomes true exactly when all N distinct keys
// have been recorded, regardless of order or duplicates.
func TestMultiReplyCompletionProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.Intn(6)
		keys := make([]string, n)
		for i := range keys {
			keys[i] = string(rune('a' + i))
		}
		c, err := NewMulti[int]("p", keys)
		require.NoError(t, err)

		seen := map[string]bool{}
		wasComplete := false
		for step := 0; step < 4*n && !wasComplete; step++ {
			k := keys[rng.Intn(n)]
			complete, err := c.SetReply(k, step)
			require.NoError(t, err)
			seen[k] = true

			assert.Equal(t, len(seen) == n, complete)
			assert.Equal(t, len(seen), c.Received())
			wasComplete = complete
		}
		if wasComplete {
			assert.True(t, c.IsComplete())
			assert.True(t, c.Stream().Finished())
		}
	}
}
