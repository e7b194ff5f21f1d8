package socket

import (
	"reflect"
	"slices"
	"testing"
)

// recordingHost records EmitInternal fanout calls.
type recordingHost struct {
	calls []emitCall
}

type emitCall struct {
	sid       string
	event     string
	data      any
	namespace string
	id        *uint64
}

func (h *recordingHost) EmitInternal(sid, event string, data any, namespace string, id *uint64) error {
	h.calls = append(h.calls, emitCall{sid, event, data, namespace, id})
	return nil
}

func (h *recordingHost) sids() []string {
	sids := make([]string, 0, len(h.calls))
	for _, c := range h.calls {
		sids = append(sids, c.sid)
	}
	slices.Sort(sids)
	return sids
}

func newTestManager() (*MemoryManager, *recordingHost) {
	m := NewMemoryManager()
	host := &recordingHost{}
	m.SetHost(host)
	m.Initialize()
	return m, host
}

func TestManagerConnect(t *testing.T) {
	m, _ := newTestManager()
	m.Connect("123", "/foo")
	if !m.IsConnected("123", "/foo") {
		t.Errorf("123 should be connected to /foo")
	}
	if got := m.GetParticipants("/foo", RoomAll); !reflect.DeepEqual(got, []string{"123"}) {
		t.Errorf("Unexpected broadcast room %v", got)
	}
	if got := m.GetParticipants("/foo", "123"); !reflect.DeepEqual(got, []string{"123"}) {
		t.Errorf("Unexpected personal room %v", got)
	}
	// idempotent
	m.Connect("123", "/foo")
	if got := m.GetParticipants("/foo", RoomAll); !reflect.DeepEqual(got, []string{"123"}) {
		t.Errorf("Connect is not idempotent: %v", got)
	}
}

func TestManagerPreDisconnect(t *testing.T) {
	m, _ := newTestManager()
	m.Connect("123", "/foo")
	m.Connect("456", "/foo")

	m.PreDisconnect("123", "/foo")
	if m.IsConnected("123", "/foo") {
		t.Errorf("123 should not count as connected while pending")
	}
	m.PreDisconnect("456", "/foo")
	if m.IsConnected("456", "/foo") {
		t.Errorf("456 should not count as connected while pending")
	}

	m.Disconnect("123", "/foo")
	m.Disconnect("456", "/foo")
	if len(m.pendingDisconnect) != 0 {
		t.Errorf("Pending disconnects not cleared: %v", m.pendingDisconnect)
	}
}

func TestManagerPreDisconnectReturnsAckIDs(t *testing.T) {
	m, _ := newTestManager()
	m.Connect("123", "/foo")
	m.GenerateAckID("123", "/foo", func(...any) {})
	m.GenerateAckID("123", "/foo", func(...any) {})
	m.GenerateAckID("123", "/", func(...any) {})

	ids := m.PreDisconnect("123", "/foo")
	if !reflect.DeepEqual(ids, []uint64{1, 2}) {
		t.Errorf("Expected outstanding ids [1 2], got %v", ids)
	}
}

func TestManagerDisconnect(t *testing.T) {
	m, _ := newTestManager()
	m.Connect("123", "/foo")
	m.Connect("456", "/foo")
	m.EnterRoom("123", "/foo", "bar")
	m.EnterRoom("456", "/foo", "baz")

	m.Disconnect("123", "/foo")
	if got := m.GetParticipants("/foo", RoomAll); !reflect.DeepEqual(got, []string{"456"}) {
		t.Errorf("Unexpected broadcast room %v", got)
	}
	if got := m.GetParticipants("/foo", "bar"); len(got) != 0 {
		t.Errorf("Room bar should be gone, got %v", got)
	}
	if got := m.GetRooms("456", "/foo"); !reflect.DeepEqual(got, []string{"456", "baz"}) {
		t.Errorf("Unexpected rooms for 456: %v", got)
	}
}

func TestManagerDisconnectDefaultNamespaceIsIndependent(t *testing.T) {
	m, _ := newTestManager()
	for _, sid := range []string{"123", "456"} {
		m.Connect(sid, "/")
		m.Connect(sid, "/foo")
	}
	m.Disconnect("123", "/")
	if m.IsConnected("123", "/") {
		t.Errorf("123 should be gone from /")
	}
	if !m.IsConnected("123", "/foo") {
		t.Errorf("123 should still be connected to /foo")
	}
}

func TestManagerDisconnectTwice(t *testing.T) {
	m, _ := newTestManager()
	m.Connect("123", "/")
	m.Connect("456", "/")
	m.Disconnect("123", "/")
	m.Disconnect("123", "/")
	if got := m.GetParticipants("/", RoomAll); !reflect.DeepEqual(got, []string{"456"}) {
		t.Errorf("Unexpected broadcast room %v", got)
	}
}

func TestManagerDisconnectAllPrunesNamespace(t *testing.T) {
	m, _ := newTestManager()
	m.Connect("123", "/foo")
	m.Connect("456", "/foo")
	m.EnterRoom("123", "/foo", "bar")
	m.Disconnect("123", "/foo")
	m.Disconnect("456", "/foo")
	if got := m.GetNamespaces(); len(got) != 0 {
		t.Errorf("Namespace should be pruned, got %v", got)
	}
}

func TestManagerDisconnectClearsCallbacks(t *testing.T) {
	m, _ := newTestManager()
	m.Connect("123", "/")
	m.Connect("123", "/foo")
	m.GenerateAckID("123", "/", func(...any) {})
	m.GenerateAckID("123", "/foo", func(...any) {})

	m.Disconnect("123", "/foo")
	if _, ok := m.callbacks["123"]["/foo"]; ok {
		t.Errorf("Callbacks for /foo should be gone")
	}
	m.Disconnect("123", "/")
	if _, ok := m.callbacks["123"]; ok {
		t.Errorf("Callback table for 123 should be gone")
	}
}

func TestManagerAckIDsPerPair(t *testing.T) {
	m, _ := newTestManager()
	m.Connect("123", "/")
	m.Connect("123", "/foo")
	m.Connect("456", "/")

	if id := m.GenerateAckID("123", "/", nil); id != 1 {
		t.Errorf("Expected first id 1, got %d", id)
	}
	if id := m.GenerateAckID("123", "/", nil); id != 2 {
		t.Errorf("Expected second id 2, got %d", id)
	}
	// independent per (sid, namespace)
	if id := m.GenerateAckID("123", "/foo", nil); id != 1 {
		t.Errorf("Expected independent id space for /foo, got %d", id)
	}
	if id := m.GenerateAckID("456", "/", nil); id != 1 {
		t.Errorf("Expected independent id space for 456, got %d", id)
	}
}

func TestManagerTriggerCallback(t *testing.T) {
	m, _ := newTestManager()
	m.Connect("123", "/")
	m.Connect("123", "/foo")

	var got [][]any
	cb := func(args ...any) { got = append(got, args) }
	id1 := m.GenerateAckID("123", "/", cb)
	id2 := m.GenerateAckID("123", "/foo", cb)

	m.TriggerCallback("123", "/", id1, []any{"foo"})
	m.TriggerCallback("123", "/foo", id2, []any{"bar", "baz"})
	want := [][]any{{"foo"}, {"bar", "baz"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	// already consumed
	m.TriggerCallback("123", "/", id1, []any{"again"})
	if len(got) != 2 {
		t.Errorf("Callback fired after being consumed")
	}
}

func TestManagerTriggerUnknownCallback(t *testing.T) {
	m, _ := newTestManager()
	m.Connect("123", "/")
	calls := 0
	id := m.GenerateAckID("123", "/", func(...any) { calls++ })

	// none of these may panic or fire the callback
	m.TriggerCallback("124", "/", id, []any{"foo"})
	m.TriggerCallback("123", "/foo", id, []any{"foo"})
	m.TriggerCallback("123", "/", id+1, []any{"foo"})
	if calls != 0 {
		t.Errorf("Callback fired for a mismatched key")
	}
}

func TestManagerGetNamespaces(t *testing.T) {
	m, _ := newTestManager()
	if got := m.GetNamespaces(); len(got) != 0 {
		t.Errorf("Expected no namespaces, got %v", got)
	}
	m.Connect("123", "/")
	m.Connect("123", "/foo")
	if got := m.GetNamespaces(); !reflect.DeepEqual(got, []string{"/", "/foo"}) {
		t.Errorf("Unexpected namespaces %v", got)
	}
}

func TestManagerGetParticipantsSkipsPending(t *testing.T) {
	m, _ := newTestManager()
	m.Connect("123", "/")
	m.Connect("456", "/")
	m.Connect("789", "/")
	m.PreDisconnect("789", "/")
	if got := m.GetParticipants("/", RoomAll); !reflect.DeepEqual(got, []string{"123", "456"}) {
		t.Errorf("Unexpected participants %v", got)
	}
}

func TestManagerRooms(t *testing.T) {
	m, _ := newTestManager()
	m.Connect("123", "/foo")
	if err := m.EnterRoom("123", "/foo", "bar"); err != nil {
		t.Fatalf("EnterRoom failed: %v", err)
	}
	if got := m.GetRooms("123", "/foo"); !reflect.DeepEqual(got, []string{"123", "bar"}) {
		t.Errorf("Unexpected rooms %v", got)
	}
}

func TestManagerEnterRoomNotConnected(t *testing.T) {
	m, _ := newTestManager()
	if err := m.EnterRoom("123", "/foo", "bar"); err != ErrNotConnected {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
}

func TestManagerLeaveInvalidRoom(t *testing.T) {
	m, _ := newTestManager()
	m.Connect("123", "/foo")
	// both must be silent no-ops
	m.LeaveRoom("123", "/foo", "baz")
	m.LeaveRoom("123", "/bar", "baz")
}

func TestManagerNoRooms(t *testing.T) {
	m, _ := newTestManager()
	if got := m.GetRooms("123", "/foo"); len(got) != 0 {
		t.Errorf("Expected no rooms, got %v", got)
	}
}

func TestManagerCloseRoom(t *testing.T) {
	m, _ := newTestManager()
	m.Connect("123", "/foo")
	m.Connect("456", "/foo")
	m.EnterRoom("123", "/foo", "bar")
	m.CloseRoom("bar", "/foo")
	if got := m.GetRooms("123", "/foo"); !reflect.DeepEqual(got, []string{"123"}) {
		t.Errorf("Room bar should be closed, got %v", got)
	}
	// closing an absent room is a no-op
	m.CloseRoom("bar", "/foo")
	m.CloseRoom("bar", "/nowhere")
}

func TestManagerBroadcastRoomSupersetInvariant(t *testing.T) {
	m, _ := newTestManager()
	m.Connect("123", "/foo")
	m.Connect("456", "/foo")
	m.EnterRoom("123", "/foo", "bar")
	m.EnterRoom("456", "/foo", "baz")

	broadcast := m.GetParticipants("/foo", RoomAll)
	for _, room := range []string{"bar", "baz", "123", "456"} {
		for _, sid := range m.GetParticipants("/foo", room) {
			if !slices.Contains(broadcast, sid) {
				t.Errorf("sid %s in room %s missing from the broadcast room", sid, room)
			}
		}
	}
}

func TestManagerEmitToSid(t *testing.T) {
	m, host := newTestManager()
	m.Connect("123", "/foo")
	m.Connect("456", "/foo")
	m.Emit("my event", map[string]any{"foo": "bar"}, "/foo", "123", nil, nil)
	if len(host.calls) != 1 || host.calls[0].sid != "123" {
		t.Fatalf("Unexpected fanout %v", host.calls)
	}
	call := host.calls[0]
	if call.event != "my event" || call.namespace != "/foo" || call.id != nil {
		t.Errorf("Unexpected call %+v", call)
	}
}

func TestManagerEmitToRoom(t *testing.T) {
	m, host := newTestManager()
	m.Connect("123", "/foo")
	m.EnterRoom("123", "/foo", "bar")
	m.Connect("456", "/foo")
	m.EnterRoom("456", "/foo", "bar")
	m.Connect("789", "/foo")
	m.Emit("my event", "data", "/foo", "bar", nil, nil)
	if got := host.sids(); !reflect.DeepEqual(got, []string{"123", "456"}) {
		t.Errorf("Unexpected fanout %v", got)
	}
}

func TestManagerEmitToAll(t *testing.T) {
	m, host := newTestManager()
	m.Connect("123", "/foo")
	m.Connect("456", "/foo")
	m.Connect("789", "/foo")
	m.Connect("abc", "/bar")
	m.Emit("my event", "data", "/foo", RoomAll, nil, nil)
	if got := host.sids(); !reflect.DeepEqual(got, []string{"123", "456", "789"}) {
		t.Errorf("Unexpected fanout %v", got)
	}
}

func TestManagerEmitSkipOne(t *testing.T) {
	m, host := newTestManager()
	m.Connect("123", "/foo")
	m.Connect("456", "/foo")
	m.Connect("789", "/foo")
	m.Emit("my event", "data", "/foo", RoomAll, []string{"456"}, nil)
	if got := host.sids(); !reflect.DeepEqual(got, []string{"123", "789"}) {
		t.Errorf("Unexpected fanout %v", got)
	}
}

func TestManagerEmitSkipTwo(t *testing.T) {
	m, host := newTestManager()
	m.Connect("123", "/foo")
	m.Connect("456", "/foo")
	m.Connect("789", "/foo")
	m.Emit("my event", "data", "/foo", RoomAll, []string{"123", "789"}, nil)
	if got := host.sids(); !reflect.DeepEqual(got, []string{"456"}) {
		t.Errorf("Unexpected fanout %v", got)
	}
}

func TestManagerEmitUnknownRoomIsSilent(t *testing.T) {
	m, host := newTestManager()
	m.Connect("123", "/foo")
	if err := m.Emit("my event", "data", "/foo", "nowhere", nil, nil); err != nil {
		t.Errorf("Expected a silent no-op, got %v", err)
	}
	if err := m.Emit("my event", "data", "/nowhere", RoomAll, nil, nil); err != nil {
		t.Errorf("Expected a silent no-op, got %v", err)
	}
	if len(host.calls) != 0 {
		t.Errorf("Unexpected fanout %v", host.calls)
	}
}

func TestManagerEmitWithCallback(t *testing.T) {
	m, host := newTestManager()
	m.Connect("123", "/foo")
	cb := func(...any) {}
	m.Emit("my event", "data", "/foo", "123", nil, cb)
	if len(host.calls) != 1 {
		t.Fatalf("Unexpected fanout %v", host.calls)
	}
	if host.calls[0].id == nil || *host.calls[0].id != 1 {
		t.Errorf("Expected ack id 1, got %v", host.calls[0].id)
	}
	if m.callbacks["123"]["/foo"][1] == nil {
		t.Errorf("Callback not registered")
	}
}

func TestManagerEmitCallbackToBroadcast(t *testing.T) {
	m, _ := newTestManager()
	m.Connect("123", "/foo")
	m.Connect("456", "/foo")
	err := m.Emit("my event", "data", "/foo", RoomAll, nil, func(...any) {})
	if err != ErrBroadcastCallback {
		t.Errorf("Expected ErrBroadcastCallback, got %v", err)
	}
}
