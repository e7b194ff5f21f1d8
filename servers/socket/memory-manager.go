package socket

import (
	"slices"
	"sort"
	"sync"

	"github.com/sockmesh/socketio/pkg/log"
)

var managerLog = log.NewLog("socket.io:manager")

// MemoryManager is the default single-process Manager. All state
// lives in nested maps guarded by one reader/writer lock; fanout
// snapshots its target list under the read lock and emits outside it.
type MemoryManager struct {
	mu   sync.RWMutex
	host ManagerHost

	// rooms[namespace][room][sid]
	rooms map[string]map[string]map[string]bool
	// namespaces preserves connect order for iteration
	namespaces []string
	// callbacks[sid][namespace][ackID]
	callbacks map[string]map[string]map[uint64]AckCallback
	// ackIDs[sid][namespace] is the last id handed out for the pair
	ackIDs map[string]map[string]uint64
	// pendingDisconnect[namespace] lists sids whose disconnect is in-flight
	pendingDisconnect map[string][]string
}

// NewMemoryManager creates an empty in-process manager.
func NewMemoryManager() *MemoryManager {
	return &MemoryManager{
		rooms:             map[string]map[string]map[string]bool{},
		callbacks:         map[string]map[string]map[uint64]AckCallback{},
		ackIDs:            map[string]map[string]uint64{},
		pendingDisconnect: map[string][]string{},
	}
}

func (m *MemoryManager) SetHost(host ManagerHost) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.host = host
}

func (m *MemoryManager) Initialize() {}

func (m *MemoryManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.host = nil
}

func (m *MemoryManager) Connect(sid, namespace string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enterRoom(sid, namespace, RoomAll)
	m.enterRoom(sid, namespace, sid)
}

func (m *MemoryManager) IsConnected(sid, namespace string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.isConnected(sid, namespace)
}

func (m *MemoryManager) isConnected(sid, namespace string) bool {
	if slices.Contains(m.pendingDisconnect[namespace], sid) {
		return false
	}
	return m.rooms[namespace][RoomAll][sid]
}

func (m *MemoryManager) PreDisconnect(sid, namespace string) []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(m.pendingDisconnect[namespace], sid) {
		m.pendingDisconnect[namespace] = append(m.pendingDisconnect[namespace], sid)
	}

	ids := make([]uint64, 0, len(m.callbacks[sid][namespace]))
	for id := range m.callbacks[sid][namespace] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (m *MemoryManager) Disconnect(sid, namespace string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for room := range m.rooms[namespace] {
		m.leaveRoom(sid, namespace, room)
	}

	if callbacks, ok := m.callbacks[sid]; ok {
		delete(callbacks, namespace)
		if len(callbacks) == 0 {
			delete(m.callbacks, sid)
		}
	}
	if ackIDs, ok := m.ackIDs[sid]; ok {
		delete(ackIDs, namespace)
		if len(ackIDs) == 0 {
			delete(m.ackIDs, sid)
		}
	}

	if pending := m.pendingDisconnect[namespace]; len(pending) > 0 {
		if i := slices.Index(pending, sid); i != -1 {
			pending = slices.Delete(pending, i, i+1)
		}
		if len(pending) == 0 {
			delete(m.pendingDisconnect, namespace)
		} else {
			m.pendingDisconnect[namespace] = pending
		}
	}
}

func (m *MemoryManager) EnterRoom(sid, namespace, room string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isConnected(sid, namespace) {
		return ErrNotConnected
	}
	m.enterRoom(sid, namespace, room)
	return nil
}

func (m *MemoryManager) enterRoom(sid, namespace, room string) {
	rooms, ok := m.rooms[namespace]
	if !ok {
		rooms = map[string]map[string]bool{}
		m.rooms[namespace] = rooms
		m.namespaces = append(m.namespaces, namespace)
	}
	members, ok := rooms[room]
	if !ok {
		members = map[string]bool{}
		rooms[room] = members
	}
	members[sid] = true
}

func (m *MemoryManager) LeaveRoom(sid, namespace, room string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.leaveRoom(sid, namespace, room)
}

func (m *MemoryManager) leaveRoom(sid, namespace, room string) {
	rooms, ok := m.rooms[namespace]
	if !ok {
		return
	}
	members, ok := rooms[room]
	if !ok {
		return
	}
	delete(members, sid)
	if len(members) == 0 {
		delete(rooms, room)
	}
	if len(rooms) == 0 {
		m.dropNamespace(namespace)
	}
}

func (m *MemoryManager) dropNamespace(namespace string) {
	delete(m.rooms, namespace)
	if i := slices.Index(m.namespaces, namespace); i != -1 {
		m.namespaces = slices.Delete(m.namespaces, i, i+1)
	}
}

func (m *MemoryManager) CloseRoom(room, namespace string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rooms, ok := m.rooms[namespace]
	if !ok {
		return
	}
	delete(rooms, room)
	if len(rooms) == 0 {
		m.dropNamespace(namespace)
	}
}

func (m *MemoryManager) GetRooms(sid, namespace string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []string{}
	for room, members := range m.rooms[namespace] {
		if room != RoomAll && members[sid] {
			result = append(result, room)
		}
	}
	sort.Strings(result)
	return result
}

func (m *MemoryManager) GetParticipants(namespace, room string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.getParticipants(namespace, room)
}

func (m *MemoryManager) getParticipants(namespace, room string) []string {
	members := m.rooms[namespace][room]
	result := make([]string, 0, len(members))
	for sid := range members {
		if !slices.Contains(m.pendingDisconnect[namespace], sid) {
			result = append(result, sid)
		}
	}
	sort.Strings(result)
	return result
}

func (m *MemoryManager) GetNamespaces() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.namespaces)
}

func (m *MemoryManager) Emit(event string, data any, namespace, room string, skipSid []string, callback AckCallback) error {
	m.mu.RLock()
	host := m.host
	targets := []string{}
	if _, ok := m.rooms[namespace][room]; ok {
		for _, sid := range m.getParticipants(namespace, room) {
			if !slices.Contains(skipSid, sid) {
				targets = append(targets, sid)
			}
		}
	}
	m.mu.RUnlock()

	if host == nil {
		return nil
	}
	if callback != nil && len(targets) > 1 {
		return ErrBroadcastCallback
	}

	for _, sid := range targets {
		var id *uint64
		if callback != nil {
			ackID := m.GenerateAckID(sid, namespace, callback)
			id = &ackID
		}
		if err := host.EmitInternal(sid, event, data, namespace, id); err != nil {
			managerLog.Error("emit to %s failed: %v", sid, err)
		}
	}
	return nil
}

func (m *MemoryManager) GenerateAckID(sid, namespace string, callback AckCallback) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	ackIDs, ok := m.ackIDs[sid]
	if !ok {
		ackIDs = map[string]uint64{}
		m.ackIDs[sid] = ackIDs
	}
	ackIDs[namespace]++
	id := ackIDs[namespace]

	if callback != nil {
		callbacks, ok := m.callbacks[sid]
		if !ok {
			callbacks = map[string]map[uint64]AckCallback{}
			m.callbacks[sid] = callbacks
		}
		pending, ok := callbacks[namespace]
		if !ok {
			pending = map[uint64]AckCallback{}
			callbacks[namespace] = pending
		}
		pending[id] = callback
	}
	return id
}

func (m *MemoryManager) TriggerCallback(sid, namespace string, id uint64, args []any) {
	m.mu.Lock()
	callback, ok := m.callbacks[sid][namespace][id]
	if ok {
		delete(m.callbacks[sid][namespace], id)
		if len(m.callbacks[sid][namespace]) == 0 {
			delete(m.callbacks[sid], namespace)
			if len(m.callbacks[sid]) == 0 {
				delete(m.callbacks, sid)
			}
		}
	}
	m.mu.Unlock()

	if !ok {
		managerLog.Debug("unknown callback %d for %s on %s", id, sid, namespace)
		return
	}
	callback(args...)
}
