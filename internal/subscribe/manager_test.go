package subscribe

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/leapstack-labs/livegate/internal/advance"
	"github.com/leapstack-labs/livegate/internal/catalog"
	"github.com/leapstack-labs/livegate/internal/paginate"
	"github.com/leapstack-labs/livegate/internal/session"
	"github.com/leapstack-labs/livegate/internal/validate"
	"github.com/leapstack-labs/livegate/pkg/adapter"
	sqliteadapter "github.com/leapstack-labs/livegate/pkg/adapters/sqlite"
	"github.com/leapstack-labs/livegate/pkg/parser"
)

type testGateway struct {
	manager *Manager
	bus     *advance.Bus
	writer  *sql.DB
	seq     uint64
}

// advance commits nothing itself; callers mutate through writer first.
func (g *testGateway) advance() {
	g.seq++
	g.bus.Publish(advance.Advance{Source: "test", Seq: g.seq})
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()

	path := filepath.Join(t.TempDir(), "dataset.db")

	writer, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })
	_, err = writer.Exec(`
		CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, age INTEGER);
		INSERT INTO users (id, name, age) VALUES (1, 'ada', 57), (2, 'grace', 32);
	`)
	require.NoError(t, err)

	a := sqliteadapter.New(nil)
	require.NoError(t, a.Connect(context.Background(), adapter.Config{Type: "sqlite", Path: path}))
	t.Cleanup(func() { _ = a.Close() })

	cat := catalog.New("app", nil)
	require.NoError(t, cat.Load(context.Background(), a))

	bus := advance.NewBus()
	sessions := session.NewManager(a, session.Limits{}, nil)
	resolver := paginate.NewResolver(sessions, cat, nil, nil)
	validator := validate.New("app", cat.TableNames())

	m, err := NewManager(validator, resolver, bus, Options{PoolSize: 4}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = m.Run(ctx) }()

	return &testGateway{manager: m, bus: bus, writer: writer}
}

func subscribeTo(t *testing.T, g *testGateway, ch *Channel, query string) (*Subscription, Push) {
	t.Helper()

	stmt, err := parser.Parse(query)
	require.NoError(t, err)

	sub, err := g.manager.Subscribe(context.Background(), ch.ClientID(), paginate.Request{
		SQL: query, Query: stmt, Limit: 10,
	})
	require.NoError(t, err)
	return sub, waitPush(t, ch)
}

func waitPush(t *testing.T, ch *Channel) Push {
	t.Helper()
	select {
	case p := <-ch.C():
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("expected a push")
		return Push{}
	}
}

func assertNoPush(t *testing.T, ch *Channel) {
	t.Helper()
	select {
	case p := <-ch.C():
		t.Fatalf("unexpected push: %+v", p)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestSubscribePushesInitialPage(t *testing.T) {
	g := newTestGateway(t)
	ch := g.manager.AttachChannel("client-1")

	sub, push := subscribeTo(t, g, ch, "SELECT * FROM users ORDER BY age")
	assert.Equal(t, sub.ID(), push.SubscriptionID)
	require.NotNil(t, push.Page)
	assert.Len(t, push.Page.Items, 2)
	assert.Equal(t, StateIdle, sub.State())
}

func TestAdvancePushesOnlyOnChange(t *testing.T) {
	g := newTestGateway(t)
	ch := g.manager.AttachChannel("client-1")
	_, _ = subscribeTo(t, g, ch, "SELECT * FROM users ORDER BY age")

	// Advance without a data change recomputes but pushes nothing.
	g.advance()
	assertNoPush(t, ch)

	_, err := g.writer.Exec(`INSERT INTO users (id, name, age) VALUES (3, 'edsger', 22)`)
	require.NoError(t, err)
	g.advance()

	push := waitPush(t, ch)
	assert.Len(t, push.Page.Items, 3)
}

func TestBurstOfAdvancesCoalesces(t *testing.T) {
	g := newTestGateway(t)
	ch := g.manager.AttachChannel("client-1")
	_, _ = subscribeTo(t, g, ch, "SELECT * FROM users ORDER BY age")

	_, err := g.writer.Exec(`INSERT INTO users (id, name, age) VALUES (3, 'edsger', 22)`)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		g.advance()
	}

	push := waitPush(t, ch)
	assert.Len(t, push.Page.Items, 3)
	assertNoPush(t, ch)
}

func TestEmptyResultStaysQuietUntilMatch(t *testing.T) {
	g := newTestGateway(t)
	ch := g.manager.AttachChannel("client-1")

	_, initial := subscribeTo(t, g, ch, "SELECT * FROM users WHERE age > 100")
	assert.Empty(t, initial.Page.Items)

	// Non-matching change: no push.
	_, err := g.writer.Exec(`INSERT INTO users (id, name, age) VALUES (3, 'edsger', 22)`)
	require.NoError(t, err)
	g.advance()
	assertNoPush(t, ch)

	// Matching change: push.
	_, err = g.writer.Exec(`INSERT INTO users (id, name, age) VALUES (4, 'methuselah', 969)`)
	require.NoError(t, err)
	g.advance()
	push := waitPush(t, ch)
	assert.Len(t, push.Page.Items, 1)
}

func TestAdvanceDuringRecomputationIsApplied(t *testing.T) {
	g := newTestGateway(t)
	ch := g.manager.AttachChannel("client-1")
	sub, _ := subscribeTo(t, g, ch, "SELECT * FROM users ORDER BY age")

	// An advance landing while a pass is in flight (the initial page
	// included) is latched; the worker runs one more pass against the
	// data as of the latched advance.
	require.True(t, sub.markDirty(1))
	require.False(t, sub.markDirty(2))

	_, err := g.writer.Exec(`INSERT INTO users (id, name, age) VALUES (3, 'edsger', 22)`)
	require.NoError(t, err)

	g.manager.recompute(sub)

	push := waitPush(t, ch)
	assert.Len(t, push.Page.Items, 3)
	assert.Equal(t, StateIdle, sub.State())
}

func TestSubscribeFailureLeavesNothingRegistered(t *testing.T) {
	g := newTestGateway(t)
	ch := g.manager.AttachChannel("client-1")

	// Sorting on a column outside the projection fails the first page;
	// the half-registered subscription must not linger.
	stmt, err := parser.Parse("SELECT name FROM users ORDER BY age")
	require.NoError(t, err)
	_, err = g.manager.Subscribe(context.Background(), ch.ClientID(), paginate.Request{
		SQL: "SELECT name FROM users ORDER BY age", Query: stmt, Limit: 10,
	})
	require.Error(t, err)
	assert.Zero(t, g.manager.Subscriptions())
}

func TestSubscribeRequiresChannel(t *testing.T) {
	g := newTestGateway(t)

	stmt, err := parser.Parse("SELECT * FROM users")
	require.NoError(t, err)

	_, err = g.manager.Subscribe(context.Background(), "ghost", paginate.Request{
		SQL: "SELECT * FROM users", Query: stmt, Limit: 10,
	})
	var cde *ChannelDisconnectedError
	assert.ErrorAs(t, err, &cde)
}

func TestAttachReplacesExistingChannel(t *testing.T) {
	g := newTestGateway(t)
	old := g.manager.AttachChannel("client-1")
	sub, _ := subscribeTo(t, g, old, "SELECT * FROM users")

	replacement := g.manager.AttachChannel("client-1")
	defer g.manager.DetachChannel(replacement)

	select {
	case <-old.Done():
	case <-time.After(time.Second):
		t.Fatal("old channel was not closed")
	}
	assert.Equal(t, StateClosed, sub.State())
	assert.Zero(t, g.manager.Subscriptions())
}

func TestUnsubscribe(t *testing.T) {
	g := newTestGateway(t)
	ch := g.manager.AttachChannel("client-1")
	sub, _ := subscribeTo(t, g, ch, "SELECT * FROM users")

	require.Error(t, g.manager.Unsubscribe("someone-else", sub.ID()))
	require.NoError(t, g.manager.Unsubscribe("client-1", sub.ID()))
	assert.Equal(t, StateClosed, sub.State())
	assert.Zero(t, g.manager.Subscriptions())

	// Further advances are no-ops for the removed subscription.
	_, err := g.writer.Exec(`INSERT INTO users (id, name, age) VALUES (3, 'edsger', 22)`)
	require.NoError(t, err)
	g.advance()
	assertNoPush(t, ch)
}
