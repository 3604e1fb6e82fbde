package watch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type revisioned struct {
	id       int
	revision uint64
}

func (r revisioned) GetRevision() uint64 { return r.revision }

// TestWatchTaskSequence drives S-4: Ok(Some(v1)), Ok(None), Err(X),
// Ok(Some(v2)), asserting immediate re-poll after None, a backoff delay
// after the error, and in-order delivery of v1/v2.
func TestWatchTaskSequence(t *testing.T) {
	orig := BackoffDelay
	BackoffDelay = 20 * time.Millisecond
	defer func() { BackoffDelay = orig }()

	v1 := revisioned{id: 1, revision: 10}
	v2 := revisioned{id: 2, revision: 11}

	type step struct {
		result *revisioned
		err    error
	}
	steps := []step{
		{result: &v1},
		{result: nil}, // Ok(None)
		{err: errors.New("boom")},
		{result: &v2},
	}

	var mu sync.Mutex
	var seenRevisions []*uint64
	idx := 0
	pollTimes := make([]time.Time, 0, len(steps))

	fn := func(ctx context.Context, lastRevision *uint64) (*revisioned, error) {
		mu.Lock()
		pollTimes = append(pollTimes, time.Now())
		if lastRevision == nil {
			seenRevisions = append(seenRevisions, nil)
		} else {
			r := *lastRevision
			seenRevisions = append(seenRevisions, &r)
		}
		if idx >= len(steps) {
			mu.Unlock()
			<-ctx.Done() // stall once the scripted steps are exhausted
			return nil, ctx.Err()
		}
		s := steps[idx]
		idx++
		mu.Unlock()
		return s.result, s.err
	}

	stream := Spawn[revisioned](context.Background(), nil, fn)
	defer stream.Close()

	got := make([]revisioned, 0, 2)
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case v := <-stream.Values:
			got = append(got, v)
		case <-timeout:
			t.Fatal("timed out waiting for watch values")
		}
	}

	require.Len(t, got, 2)
	assert.Equal(t, v1, got[0])
	assert.Equal(t, v2, got[1])

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(pollTimes), 4)
	// poll after Ok(None) (index 1->2) happens promptly.
	gapAfterNone := pollTimes[2].Sub(pollTimes[1])
	assert.Less(t, gapAfterNone, BackoffDelay)
	// poll after Err (index 2->3) respects the backoff delay.
	gapAfterErr := pollTimes[3].Sub(pollTimes[2])
	assert.GreaterOrEqual(t, gapAfterErr, BackoffDelay)
}

// TestRevisionNeverDecreases covers P-1: a zero revision result must
// never move the stored last-seen revision backward (or at all), while
// a positive revision always advances it.
func TestRevisionNeverDecreases(t *testing.T) {
	first := revisioned{id: 1, revision: 5}
	zero := revisioned{id: 2, revision: 0}
	second := revisioned{id: 3, revision: 6}

	var mu sync.Mutex
	var observed []*uint64
	results := []*revisioned{&first, &zero, &second}
	idx := 0

	fn := func(ctx context.Context, lastRevision *uint64) (*revisioned, error) {
		mu.Lock()
		if lastRevision == nil {
			observed = append(observed, nil)
		} else {
			r := *lastRevision
			observed = append(observed, &r)
		}
		mu.Unlock()

		if idx >= len(results) {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		v := results[idx]
		idx++
		return v, nil
	}

	stream := Spawn[revisioned](context.Background(), nil, fn)
	defer stream.Close()

	got := make([]revisioned, 0, 3)
	timeout := time.After(2 * time.Second)
	for len(got) < 3 {
		select {
		case v := <-stream.Values:
			got = append(got, v)
		case <-timeout:
			t.Fatal("timed out waiting for watch values")
		}
	}

	// the poll following the third delivery may still be starting.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(observed) >= 4
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, observed, 4)
	assert.Nil(t, observed[0])            // before v1: nothing observed yet
	assert.Equal(t, uint64(5), *observed[1]) // after v1(rev=5)
	assert.Equal(t, uint64(5), *observed[2]) // after zero(rev=0): unchanged
	assert.Equal(t, uint64(6), *observed[3]) // after second(rev=6): advanced
}

func TestCloseStopsTask(t *testing.T) {
	release := make(chan struct{})
	fn := func(ctx context.Context, _ *uint64) (*revisioned, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
			return nil, nil
		}
	}

	stream := Spawn[revisioned](context.Background(), nil, fn)
	stream.Close()
	close(release)

	_, ok := <-stream.Values
	assert.False(t, ok, "Values channel should be closed once the task stops")
}
