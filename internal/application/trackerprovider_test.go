package application_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/jiradl/internal/application"
	"github.com/ericfisherdev/jiradl/internal/domain/port/driven"
)

func TestTrackerProvider_BuildsOnce(t *testing.T) {
	var builds atomic.Int32
	client := &mockTracker{}
	provider := application.NewTrackerProvider(func(_ context.Context) (driven.TrackerClient, error) {
		builds.Add(1)
		return client, nil
	})

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := provider.Get(context.Background())
			assert.NoError(t, err)
			assert.Same(t, client, got)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load())
}

func TestTrackerProvider_ErrorIsNotCached(t *testing.T) {
	fail := true
	provider := application.NewTrackerProvider(func(_ context.Context) (driven.TrackerClient, error) {
		if fail {
			return nil, application.ErrNotLoggedIn
		}
		return &mockTracker{}, nil
	})

	_, err := provider.Get(context.Background())
	require.ErrorIs(t, err, application.ErrNotLoggedIn)

	fail = false
	got, err := provider.Get(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestTrackerProvider_ResetRebuilds(t *testing.T) {
	var builds atomic.Int32
	provider := application.NewTrackerProvider(func(_ context.Context) (driven.TrackerClient, error) {
		builds.Add(1)
		return &mockTracker{}, nil
	})

	first, err := provider.Get(context.Background())
	require.NoError(t, err)
	provider.Reset()
	second, err := provider.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), builds.Load())
	assert.NotSame(t, first, second)
}

func TestTrackerProvider_StaticAndReplace(t *testing.T) {
	original := &mockTracker{}
	replacement := &mockTracker{}
	provider := application.NewStaticTrackerProvider(original)

	provider.Reset()
	got, err := provider.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, original, got)

	provider.Replace(replacement)
	got, err = provider.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, replacement, got)
}

func TestTrackerProvider_NoFactoryNoClient(t *testing.T) {
	provider := application.NewStaticTrackerProvider(nil)

	_, err := provider.Get(context.Background())

	assert.True(t, errors.Is(err, application.ErrNotLoggedIn))
}
