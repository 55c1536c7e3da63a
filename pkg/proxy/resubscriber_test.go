package proxy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/channelize/channelize-go/internal/hubtest"
	"github.com/channelize/channelize-go/pkg/channel"
	"github.com/channelize/channelize-go/pkg/connection"
	"github.com/channelize/channelize-go/pkg/rest"
	"github.com/channelize/channelize-go/pkg/subscription"
	"github.com/channelize/channelize-go/pkg/wire"
)

const waitTimeout = 2 * time.Second

type mockRequester struct {
	mock.Mock
	subs chan rest.SubscribeCall
}

func (r *mockRequester) Subscribe(_ context.Context, call rest.SubscribeCall) error {
	args := r.Called(call)
	r.subs <- call
	return args.Error(0)
}

func (r *mockRequester) Unsubscribe(_ context.Context, call rest.UnsubscribeCall) error {
	return r.Called(call).Error(0)
}

type resubFixture struct {
	dialer *hubtest.MemDialer
	conn   *connection.Connection
	req    *mockRequester
	resub  *Resubscriber[SystemsArgs, Confirmation]
}

func newResubFixture(t *testing.T) *resubFixture {
	t.Helper()
	dialer := hubtest.NewMemDialer(wire.JSON)
	conn := connection.New(connection.Config{Dialer: dialer, DisableReconnect: true})
	req := &mockRequester{subs: make(chan rest.SubscribeCall, 8)}

	mgr, err := channel.New(SystemsDomain(), channel.Config{Conn: conn, Requester: req})
	require.NoError(t, err)
	r := NewResubscriber(mgr, conn, nil)

	t.Cleanup(func() {
		r.Close()
		_ = mgr.Close()
		_ = conn.Close()
	})
	return &resubFixture{dialer: dialer, conn: conn, req: req, resub: r}
}

func (f *resubFixture) nextCall(t *testing.T) rest.SubscribeCall {
	t.Helper()
	select {
	case c := <-f.req.subs:
		return c
	case <-time.After(waitTimeout):
		t.Fatal("no subscribe call")
		return rest.SubscribeCall{}
	}
}

func (f *resubFixture) confirm(t *testing.T, call rest.SubscribeCall) {
	t.Helper()
	require.NoError(t, f.dialer.Current().PushEvent(EventSystems, Confirmation{
		Header: wire.Header{RequestID: call.RequestID, RequestFor: TagSystems},
	}))
}

func collect(t *testing.T, s *subscription.Stream[subscription.Reply[Confirmation]]) ([]subscription.Reply[Confirmation], error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	return s.Collect(ctx)
}

func TestResubscriberReissuesAfterReconnect(t *testing.T) {
	f := newResubFixture(t)
	f.req.On("Subscribe", mock.Anything).Return(nil)

	reissued := make(chan *subscription.Stream[subscription.Reply[Confirmation]], 1)
	f.resub.OnReissue(func(s *subscription.Stream[subscription.Reply[Confirmation]]) { reissued <- s })

	s := f.resub.Subscribe(context.Background(), SystemsArgs{})
	first := f.nextCall(t)
	assert.Equal(t, "conn-1", first.ConnectionID)
	f.confirm(t, first)

	replies, err := collect(t, s)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	require.Eventually(t, f.resub.Active, waitTimeout, 5*time.Millisecond)

	f.dialer.Current().Drop(errors.New("reset"))
	require.Eventually(t, func() bool { return !f.conn.IsConnected() }, waitTimeout, 5*time.Millisecond)
	require.NoError(t, f.conn.Start(context.Background()))

	second := f.nextCall(t)
	assert.Equal(t, "conn-2", second.ConnectionID)
	assert.NotEqual(t, first.RequestID, second.RequestID)
	assert.Equal(t, uint64(1), f.resub.Reissued())

	var rs *subscription.Stream[subscription.Reply[Confirmation]]
	select {
	case rs = <-reissued:
	case <-time.After(waitTimeout):
		t.Fatal("no reissue stream")
	}
	f.confirm(t, second)
	_, err = collect(t, rs)
	require.NoError(t, err)
}

func TestResubscriberSkipsFailedSubscription(t *testing.T) {
	f := newResubFixture(t)
	f.req.On("Subscribe", mock.Anything).Return(&rest.StatusError{Status: 500}).Once()

	s := f.resub.Subscribe(context.Background(), SystemsArgs{})
	f.nextCall(t)
	_, err := collect(t, s)
	require.Error(t, err)
	assert.False(t, f.resub.Active())

	f.dialer.Current().Drop(nil)
	require.Eventually(t, func() bool { return !f.conn.IsConnected() }, waitTimeout, 5*time.Millisecond)
	require.NoError(t, f.conn.Start(context.Background()))

	select {
	case c := <-f.req.subs:
		t.Fatalf("unexpected re-issue %+v", c)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Zero(t, f.resub.Reissued())
}

func TestResubscriberForget(t *testing.T) {
	f := newResubFixture(t)
	f.req.On("Subscribe", mock.Anything).Return(nil)

	s := f.resub.Subscribe(context.Background(), SystemsArgs{})
	f.confirm(t, f.nextCall(t))
	_, err := collect(t, s)
	require.NoError(t, err)
	require.Eventually(t, f.resub.Active, waitTimeout, 5*time.Millisecond)

	f.resub.Forget()
	assert.False(t, f.resub.Active())

	f.dialer.Current().Drop(nil)
	require.Eventually(t, func() bool { return !f.conn.IsConnected() }, waitTimeout, 5*time.Millisecond)
	require.NoError(t, f.conn.Start(context.Background()))

	select {
	case c := <-f.req.subs:
		t.Fatalf("unexpected re-issue %+v", c)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestResubscriberNoReissueWithoutDisconnect(t *testing.T) {
	f := newResubFixture(t)
	f.req.On("Subscribe", mock.Anything).Return(nil)

	s := f.resub.Subscribe(context.Background(), SystemsArgs{})
	f.confirm(t, f.nextCall(t))
	_, err := collect(t, s)
	require.NoError(t, err)
	require.Eventually(t, f.resub.Active, waitTimeout, 5*time.Millisecond)

	// Already connected: Start is a no-op and fires no connected pulse.
	require.NoError(t, f.conn.Start(context.Background()))
	assert.Zero(t, f.resub.Reissued())
}

func TestResubscriberOnReissueWhileReconnecting(t *testing.T) {
	f := newResubFixture(t)
	f.req.On("Subscribe", mock.Anything).Return(nil)

	s := f.resub.Subscribe(context.Background(), SystemsArgs{})
	f.confirm(t, f.nextCall(t))
	_, err := collect(t, s)
	require.NoError(t, err)
	require.Eventually(t, f.resub.Active, waitTimeout, 5*time.Millisecond)

	f.dialer.Current().Drop(errors.New("reset"))
	require.Eventually(t, func() bool { return !f.conn.IsConnected() }, waitTimeout, 5*time.Millisecond)

	// Registering from another goroutine races with the connected listener.
	started := make(chan error, 1)
	go func() { started <- f.conn.Start(context.Background()) }()
	f.resub.OnReissue(func(*subscription.Stream[subscription.Reply[Confirmation]]) {})
	require.NoError(t, <-started)

	second := f.nextCall(t)
	assert.Equal(t, "conn-2", second.ConnectionID)
	assert.Equal(t, uint64(1), f.resub.Reissued())
}

func TestResubscriberOnReissueReplacesHook(t *testing.T) {
	f := newResubFixture(t)
	f.req.On("Subscribe", mock.Anything).Return(nil)

	first := make(chan struct{}, 1)
	second := make(chan struct{}, 1)
	f.resub.OnReissue(func(*subscription.Stream[subscription.Reply[Confirmation]]) { first <- struct{}{} })
	f.resub.OnReissue(func(*subscription.Stream[subscription.Reply[Confirmation]]) { second <- struct{}{} })

	s := f.resub.Subscribe(context.Background(), SystemsArgs{})
	f.confirm(t, f.nextCall(t))
	_, err := collect(t, s)
	require.NoError(t, err)
	require.Eventually(t, f.resub.Active, waitTimeout, 5*time.Millisecond)

	f.dialer.Current().Drop(errors.New("reset"))
	require.Eventually(t, func() bool { return !f.conn.IsConnected() }, waitTimeout, 5*time.Millisecond)
	require.NoError(t, f.conn.Start(context.Background()))
	f.nextCall(t)

	select {
	case <-second:
	case <-time.After(waitTimeout):
		t.Fatal("replacement hook not called")
	}
	assert.Empty(t, first)
}
