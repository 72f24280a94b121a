package relay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	output string
	err    error
}

func (f fakeExecutor) Run(_ context.Context, language, code string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.output + "|" + language + "|" + code, nil
}

func newTestService(exec Executor) *Service {
	svc := NewService(NewMemoryBroker(), exec)
	svc.now = func() time.Time { return time.Date(2024, 1, 1, 9, 5, 0, 0, time.UTC) }
	return svc
}

func next(t *testing.T, p *Peer) map[string]any {
	t.Helper()
	select {
	case frame := <-p.Outbound():
		var out map[string]any
		require.NoError(t, json.Unmarshal(frame, &out))
		return out
	case <-time.After(2 * time.Second):
		t.Fatalf("peer %s received nothing", p.Username)
		return nil
	}
}

func quiet(t *testing.T, p *Peer) {
	t.Helper()
	select {
	case frame := <-p.Outbound():
		t.Fatalf("peer %s received unexpected frame %s", p.Username, frame)
	case <-time.After(50 * time.Millisecond):
	}
}

// joinPair joins ann then bob and drains the join notices.
func joinPair(t *testing.T, svc *Service) (*Peer, *Peer) {
	t.Helper()
	ctx := context.Background()
	ann, err := svc.Join(ctx, "ROOM01", "ann")
	require.NoError(t, err)
	assert.Equal(t, "ann joined the room", next(t, ann)["message"])

	bob, err := svc.Join(ctx, "ROOM01", "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob joined the room", next(t, ann)["message"])
	assert.Equal(t, "bob joined the room", next(t, bob)["message"])
	return ann, bob
}

func TestCodeUpdateExcludesSender(t *testing.T) {
	svc := newTestService(nil)
	defer svc.Close()
	ann, bob := joinPair(t, svc)

	require.NoError(t, svc.HandleFrame(context.Background(), ann, []byte(`{"type":"code_update","code":"x=1"}`)))

	got := next(t, bob)
	assert.Equal(t, "code_update", got["type"])
	assert.Equal(t, "x=1", got["code"])
	quiet(t, ann)
}

func TestCursorUpdateStampsUsername(t *testing.T) {
	svc := newTestService(nil)
	defer svc.Close()
	ann, bob := joinPair(t, svc)

	frame := `{"type":"cursor_update","username":"mallory","position":{"index":3,"coords":{"top":20,"left":8}}}`
	require.NoError(t, svc.HandleFrame(context.Background(), ann, []byte(frame)))

	got := next(t, bob)
	assert.Equal(t, "ann", got["username"])
	assert.Equal(t, float64(3), got["position"].(map[string]any)["index"])
	quiet(t, ann)
}

func TestChatReachesEveryoneWithRelayTimestamp(t *testing.T) {
	svc := newTestService(nil)
	defer svc.Close()
	ann, bob := joinPair(t, svc)

	require.NoError(t, svc.HandleFrame(context.Background(), bob, []byte(`{"type":"chat_message","message":"hi","timestamp":"forged"}`)))

	for _, p := range []*Peer{ann, bob} {
		got := next(t, p)
		assert.Equal(t, "chat_message", got["type"])
		assert.Equal(t, "bob", got["username"])
		assert.Equal(t, "hi", got["message"])
		assert.Equal(t, "09:05 AM", got["timestamp"])
	}
}

func TestExecuteRepliesOnlyToRequester(t *testing.T) {
	svc := newTestService(fakeExecutor{output: "ran"})
	defer svc.Close()
	ann, bob := joinPair(t, svc)

	require.NoError(t, svc.HandleFrame(context.Background(), ann, []byte(`{"type":"execute_code","code":"print(1)","language":"python"}`)))

	got := next(t, ann)
	assert.Equal(t, "execution_result", got["type"])
	assert.Equal(t, "ran|python|print(1)", got["output"])
	quiet(t, bob)
}

func TestExecuteFailureIsExecutionError(t *testing.T) {
	svc := newTestService(fakeExecutor{err: errors.New("no interpreter")})
	defer svc.Close()
	ann, _ := joinPair(t, svc)

	require.NoError(t, svc.HandleFrame(context.Background(), ann, []byte(`{"type":"execute_code","code":"x"}`)))

	got := next(t, ann)
	assert.Equal(t, "execution_error", got["type"])
	assert.Equal(t, "no interpreter", got["error"])
}

func TestMalformedAndUnknownFrames(t *testing.T) {
	svc := newTestService(nil)
	defer svc.Close()
	ann, bob := joinPair(t, svc)

	assert.Error(t, svc.HandleFrame(context.Background(), ann, []byte(`not json`)))
	assert.NoError(t, svc.HandleFrame(context.Background(), ann, []byte(`{"type":"shrug"}`)))
	assert.NoError(t, svc.HandleFrame(context.Background(), ann, []byte(`{"type":"execution_result","output":"spoof"}`)))

	quiet(t, bob)
}

func TestLeaveAnnouncesAndCleansUp(t *testing.T) {
	svc := newTestService(nil)
	defer svc.Close()
	ann, bob := joinPair(t, svc)

	svc.Leave(context.Background(), bob)

	assert.Equal(t, "bob left the room", next(t, ann)["message"])
	assert.Equal(t, 1, svc.Peers("ROOM01"))
	select {
	case <-bob.Done():
	default:
		t.Fatal("left peer not closed")
	}

	svc.Leave(context.Background(), bob)
	svc.Leave(context.Background(), ann)
	assert.Equal(t, 0, svc.Peers("ROOM01"))
}

func TestRoomsAreIsolated(t *testing.T) {
	svc := newTestService(nil)
	defer svc.Close()
	ctx := context.Background()
	ann, err := svc.Join(ctx, "ROOM01", "ann")
	require.NoError(t, err)
	next(t, ann)
	eve, err := svc.Join(ctx, "OTHER1", "eve")
	require.NoError(t, err)
	next(t, eve)

	require.NoError(t, svc.HandleFrame(ctx, eve, []byte(`{"type":"chat_message","message":"psst"}`)))

	next(t, eve)
	quiet(t, ann)
}

func TestJoinDefaultsUsername(t *testing.T) {
	svc := newTestService(nil)
	defer svc.Close()

	p, err := svc.Join(context.Background(), "ROOM01", "  ")

	require.NoError(t, err)
	assert.Equal(t, AnonymousUser, p.Username)
	assert.Equal(t, "Anonymous joined the room", next(t, p)["message"])
}

func TestJoinAfterClose(t *testing.T) {
	svc := newTestService(nil)
	svc.Close()

	_, err := svc.Join(context.Background(), "ROOM01", "ann")

	assert.ErrorIs(t, err, ErrServiceClosed)
}

// gatedBroker blocks Subscribe for one room until release is closed.
type gatedBroker struct {
	*MemoryBroker
	room    string
	entered chan struct{}
	release chan struct{}
}

func (b *gatedBroker) Subscribe(ctx context.Context, room string) (Subscription, error) {
	if room == b.room {
		close(b.entered)
		<-b.release
	}
	return b.MemoryBroker.Subscribe(ctx, room)
}

func TestSlowSubscribeDoesNotBlockOtherRooms(t *testing.T) {
	broker := &gatedBroker{
		MemoryBroker: NewMemoryBroker(),
		room:         "SLOW01",
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	svc := NewService(broker, nil)
	defer svc.Close()
	ctx := context.Background()

	slowJoined := make(chan error, 1)
	go func() {
		_, err := svc.Join(ctx, "SLOW01", "ann")
		slowJoined <- err
	}()
	<-broker.entered

	fastJoined := make(chan error, 1)
	go func() {
		_, err := svc.Join(ctx, "FAST01", "bob")
		fastJoined <- err
	}()

	select {
	case err := <-fastJoined:
		require.NoError(t, err)
	case <-time.After(500 * time.Millisecond):
		close(broker.release)
		t.Fatal("join of another room waited on a pending subscribe")
	}
	assert.Equal(t, 1, svc.Peers("FAST01"))
	assert.Equal(t, 0, svc.Peers("SLOW01"))

	close(broker.release)
	require.NoError(t, <-slowJoined)
	assert.Equal(t, 1, svc.Peers("SLOW01"))
}

func TestConcurrentFirstJoinsShareOneRoom(t *testing.T) {
	svc := newTestService(nil)
	defer svc.Close()
	ctx := context.Background()

	const n = 8
	peers := make(chan *Peer, n)
	for i := 0; i < n; i++ {
		go func() {
			p, err := svc.Join(ctx, "ROOM01", "ann")
			assert.NoError(t, err)
			peers <- p
		}()
	}
	for i := 0; i < n; i++ {
		<-peers
	}

	assert.Equal(t, n, svc.Peers("ROOM01"))
	svc.mu.Lock()
	defer svc.mu.Unlock()
	assert.Len(t, svc.rooms, 1)
}
