//
// Tencent is pleased to support the open source community by making craftgen-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// craftgen-go is licensed under the Apache License Version 2.0.
//
//

package actor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendOrdering(t *testing.T) {
	var got []int
	done := NewFuture[struct{}]()

	ref := Spawn(context.Background(), "ordering", BehaviorFunc(
		func(_ context.Context, msg Message) {
			n := msg.(int)
			got = append(got, n)
			if n == 99 {
				done.Resolve(struct{}{})
			}
		}))
	defer ref.Stop()

	for i := 0; i < 100; i++ {
		ref.Send(i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := done.Wait(ctx)
	require.NoError(t, err)

	require.Len(t, got, 100)
	for i, n := range got {
		assert.Equal(t, i, n)
	}
}

func TestSendAfterStopIsDropped(t *testing.T) {
	received := make(chan Message, 1)
	ref := Spawn(context.Background(), "stopped", BehaviorFunc(
		func(_ context.Context, msg Message) {
			received <- msg
		}))

	ref.Stop()
	<-ref.Done()
	ref.Send("late")

	select {
	case msg := <-received:
		t.Fatalf("message processed after stop: %v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPanicDoesNotKillActor(t *testing.T) {
	done := NewFuture[string]()
	ref := Spawn(context.Background(), "panicky", BehaviorFunc(
		func(_ context.Context, msg Message) {
			if msg == "boom" {
				panic("boom")
			}
			done.Resolve(msg.(string))
		}))
	defer ref.Stop()

	ref.Send("boom")
	ref.Send("still alive")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := done.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "still alive", got)
}

func TestContextCancelStopsActor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ref := Spawn(ctx, "cancelled", BehaviorFunc(
		func(_ context.Context, _ Message) {}))

	cancel()
	select {
	case <-ref.Done():
	case <-time.After(time.Second):
		t.Fatal("actor did not stop on context cancel")
	}
}

func TestFutureResolveOnce(t *testing.T) {
	f := NewFuture[int]()
	f.Resolve(1)
	f.Resolve(2)

	got, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestFutureWaitCancelled(t *testing.T) {
	f := NewFuture[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
