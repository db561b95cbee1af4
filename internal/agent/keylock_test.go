package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyLock_SameKeyBlocks(t *testing.T) {
	k := newKeyLock()

	release, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		r, err := k.Lock(context.Background(), "a")
		if err == nil {
			close(acquired)
			r()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired")
	}

	assert.Eventually(t, func() bool { return k.size() == 0 }, time.Second, time.Millisecond)
}

func TestKeyLock_DifferentKeysIndependent(t *testing.T) {
	k := newKeyLock()

	ra, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer ra()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	rb, err := k.Lock(ctx, "b")
	require.NoError(t, err)
	rb()

	assert.Equal(t, 1, k.size())
}

func TestKeyLock_ContextCancel(t *testing.T) {
	k := newKeyLock()
	release, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	assert.Equal(t, 0, k.size())
}
