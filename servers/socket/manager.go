package socket

// RoomAll is the sentinel room holding every session connected to a
// namespace; emits with no room target it.
const RoomAll = ""

// AckCallback receives the arguments of an acknowledgement reply.
type AckCallback func(args ...any)

// ManagerHost is the non-owning back-reference a Manager holds to the
// server (or any other host) driving it. The manager never serializes
// packets itself; it hands each fanout target to EmitInternal.
type ManagerHost interface {
	EmitInternal(sid, event string, data any, namespace string, id *uint64) error
}

// Manager maintains the namespace/room membership table and the
// pending acknowledgement callbacks of every session. The default
// in-process implementation is NewMemoryManager; a subclassed manager
// may delegate the mutating operations and EmitInternal fanout to a
// cross-process message bus.
type Manager interface {
	// SetHost installs the back-reference used for fanout. Close drops
	// it again so the host can be released.
	SetHost(host ManagerHost)
	// Initialize is called once before the first connection.
	Initialize()
	// Close drops the host back-reference.
	Close()

	// Connect joins sid to namespace. Idempotent; the sid becomes a
	// member of the broadcast room and of its personal room.
	Connect(sid, namespace string)
	// IsConnected reports whether sid is connected to namespace and
	// not pending disconnect.
	IsConnected(sid, namespace string) bool
	// PreDisconnect marks sid's disconnect from namespace as
	// in-flight: membership queries treat it as gone, but callback
	// dispatch still reaches it. It returns the ack ids outstanding
	// for (sid, namespace).
	PreDisconnect(sid, namespace string) []uint64
	// Disconnect removes sid from every room of namespace, prunes
	// empty rooms and namespaces, and clears the ack callbacks scoped
	// to (sid, namespace). Disconnecting twice is a no-op.
	Disconnect(sid, namespace string)

	// EnterRoom adds sid to a room of a namespace it is connected to.
	EnterRoom(sid, namespace, room string) error
	// LeaveRoom removes sid from a room; leaving an absent room is
	// silent.
	LeaveRoom(sid, namespace, room string)
	// CloseRoom removes a room and every member reference to it.
	// Idempotent.
	CloseRoom(room, namespace string)
	// GetRooms returns the rooms containing sid, personal room
	// included, broadcast room excluded.
	GetRooms(sid, namespace string) []string
	// GetParticipants returns the sids in a room, skipping any whose
	// disconnect is pending.
	GetParticipants(namespace, room string) []string
	// GetNamespaces returns the namespaces known to the manager.
	GetNamespaces() []string

	// Emit fans an event out to the members of a room (the broadcast
	// room when room is RoomAll), skipping skipSid. A callback may
	// only be supplied when the fanout resolves to a single session.
	Emit(event string, data any, namespace, room string, skipSid []string, callback AckCallback) error

	// GenerateAckID allocates the next ack id for (sid, namespace) —
	// ids start at 1 and increase monotonically per pair — and
	// registers the callback under it.
	GenerateAckID(sid, namespace string, callback AckCallback) uint64
	// TriggerCallback invokes and discards the pending callback.
	// Unknown ids, namespaces and sids are silent no-ops.
	TriggerCallback(sid, namespace string, id uint64, args []any)
}
