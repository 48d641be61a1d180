package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeClient_DefaultPayload(t *testing.T) {
	f := NewFakeClient()

	body, err := f.Network(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))
	assert.Equal(t, 1, f.Calls(OpNetwork))
}

func TestFakeClient_PayloadAndError(t *testing.T) {
	f := NewFakeClient()
	f.SetPayload(CandidateOp("mentors"), `[{"id":1}]`)

	body, err := f.CandidatePool(context.Background(), "mentors")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1}]`, string(body))

	boom := errors.New("boom")
	f.SetError(OpSend, boom)
	assert.ErrorIs(t, f.SendFriendRequest(context.Background(), 1, "a@x.com"), boom)

	f.SetError(OpSend, nil)
	assert.NoError(t, f.SendFriendRequest(context.Background(), 1, "a@x.com"))
	assert.Equal(t, 2, f.Calls(OpSend))
}

func TestFakeClient_HoldCapturesPayloadOnArrival(t *testing.T) {
	f := NewFakeClient()
	f.SetPayload(OpFriendRequests, `["old"]`)
	release := f.Hold(OpFriendRequests)

	done := make(chan []byte, 1)
	go func() {
		body, _ := f.FriendRequests(context.Background(), 1)
		done <- body
	}()

	require.Eventually(t, func() bool { return f.Calls(OpFriendRequests) == 1 }, time.Second, time.Millisecond)
	f.SetPayload(OpFriendRequests, `["new"]`)

	select {
	case <-done:
		t.Fatal("held call returned before release")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	release()
	assert.Equal(t, `["old"]`, string(<-done))
}

func TestFakeClient_HoldRespectsContext(t *testing.T) {
	f := NewFakeClient()
	f.Hold(OpAccept)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := f.AcceptFriendRequest(ctx, "a@x.com", 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFakeClient_OnSuccessHook(t *testing.T) {
	f := NewFakeClient()
	var got []Request
	f.OnSuccess(func(r Request) { got = append(got, r) })

	require.NoError(t, f.DeclineFriendRequest(context.Background(), "a@x.com", 7))
	f.SetError(OpAccept, errors.New("nope"))
	require.Error(t, f.AcceptFriendRequest(context.Background(), "a@x.com", 7))

	require.Len(t, got, 1)
	assert.Equal(t, Request{Op: OpDecline, UserID: 7, Email: "a@x.com"}, got[0])
	assert.Len(t, f.Requests(), 2)
}

func TestSequentialIDs(t *testing.T) {
	g := NewSequentialIDs("")
	assert.Equal(t, "m-1", g.Generate())
	assert.Equal(t, "m-2", g.Generate())
}
