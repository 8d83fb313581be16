package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestReconcileRepairsBothDirections(t *testing.T) {
	req := require.New(t)
	st := newFakeStore(human("A"), human("B"), bot("bot"), human("C"))
	g, _ := newTestGateway(t, st)
	ctx := context.Background()

	// Given A is connected but its online write was lost
	a := connect(g, "conn-a")
	req.NoError(g.Online(ctx, a, "A"))
	st.setFlag("A", false)

	// And B is flagged online with no connection (crash leftover)
	st.setFlag("B", true)

	// And a bot is connected and flagged online
	botConn := connect(g, "conn-bot")
	req.NoError(g.Online(ctx, botConn, "bot"))
	st.setFlag("bot", true)

	observer := connect(g, "conn-observer")

	// When a tick runs
	result := g.Reconcile(ctx)

	// Then
	req.Equal([]string{"B"}, result.MarkedOffline)
	req.Equal([]string{"A"}, result.MarkedOnline)
	req.Empty(result.Failed)
	req.Equal([]bool{true, true}, st.writesFor("A"))
	req.Equal([]bool{false}, st.writesFor("B"))
	req.Empty(st.writesFor("bot"))
	req.Empty(st.writesFor("C"))

	status := named(drain(observer), EventStatusChanged)
	req.ElementsMatch([]any{
		UserStatus{UserID: "B", IsOnline: false},
		UserStatus{UserID: "A", IsOnline: true},
	}, []any{status[0].Data, status[1].Data})

	// Corrections go to every connection, the affected user's included.
	req.Len(named(drain(a), EventStatusChanged), 2)

	req.Equal(1.0, testutil.ToFloat64(g.metrics.Corrections.WithLabelValues("offline")))
	req.Equal(1.0, testutil.ToFloat64(g.metrics.Corrections.WithLabelValues("online")))
}

func TestReconcileIsIdempotent(t *testing.T) {
	req := require.New(t)
	st := newFakeStore(human("A"), human("B"), bot("bot"))
	g, _ := newTestGateway(t, st)
	ctx := context.Background()

	a := connect(g, "conn-a")
	req.NoError(g.Online(ctx, a, "A"))
	st.setFlag("A", false)
	st.setFlag("B", true)
	req.NoError(g.Online(ctx, connect(g, "conn-bot"), "bot"))

	first := g.Reconcile(ctx)
	req.Equal(2, first.Corrections())

	writes := st.writeCount()
	second := g.Reconcile(ctx)
	req.Zero(second.Corrections())
	req.Empty(second.Failed)
	req.Equal(writes, st.writeCount())
}

func TestReconcileFailureDoesNotBlockOthers(t *testing.T) {
	req := require.New(t)
	st := newFakeStore(human("B"), human("C"), human("D"))
	st.setFlag("B", true)
	st.setFlag("C", true)
	st.setFlag("D", true)
	st.failWrites("C", errors.New("locked"))
	g, _ := newTestGateway(t, st)

	result := g.Reconcile(context.Background())

	req.Equal([]string{"B", "D"}, result.MarkedOffline)
	req.Equal([]string{"C"}, result.Failed)
}

func TestReconcileListFailure(t *testing.T) {
	st := newFakeStore(human("A"))
	st.listErr = errors.New("connection reset")
	g, _ := newTestGateway(t, st)

	result := g.Reconcile(context.Background())
	require.Zero(t, result.Corrections())
	require.Zero(t, st.writeCount())
}

func TestReconcileTreatsGracePeriodAsOffline(t *testing.T) {
	req := require.New(t)
	st := newFakeStore(human("A"))
	g, _ := newTestGateway(t, st)
	ctx := context.Background()

	a := connect(g, "conn-a")
	req.NoError(g.Online(ctx, a, "A"))
	g.Disconnect(a)
	req.Equal(1, g.PendingCount())

	result := g.Reconcile(ctx)
	req.Equal([]string{"A"}, result.MarkedOffline)
	// The pending timer itself is untouched.
	req.Equal(1, g.PendingCount())
}

func TestRunTicksReconciliation(t *testing.T) {
	req := require.New(t)
	st := newFakeStore(human("B"))
	st.setFlag("B", true)
	g, mock := newTestGateway(t, st)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		g.Run(ctx)
		close(done)
	}()

	req.Eventually(func() bool {
		mock.Add(30 * time.Second)
		return len(st.writesFor("B")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// A second loop on the same gateway refuses to start.
	second := make(chan struct{})
	go func() {
		g.Run(ctx)
		close(second)
	}()
	select {
	case <-second:
	case <-time.After(time.Second):
		t.Fatal("second Run did not return")
	}

	cancel()
	<-done
}
