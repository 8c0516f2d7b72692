package registry

import (
	"fmt"
	"sync"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/vidstream/feedrelay/common"
)

// ConnectionState liveness state of one client connection
type ConnectionState int

const (
	// StateConnecting connection accepted, client not yet identified
	StateConnecting ConnectionState = iota
	// StateOpen client identified, connection in its delivery groups
	StateOpen
	// StateClosed connection discarded
	StateClosed
)

// String implements toString for ConnectionState
func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Connection is one open bidirectional channel to a client process.
//
// Owned exclusively by the ConnectionRegistry for its lifetime. Created on
// client connect, destroyed on disconnect or instance shutdown. Never
// persisted.
type Connection struct {
	// ID is the unique connection identifier
	ID string

	lock          sync.Mutex
	state         ConnectionState
	personalGroup string
	send          chan []byte
}

// State fetch the current liveness state
func (c *Connection) State() ConnectionState {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state
}

// SendQueue fetch the outbound payload channel. The channel is closed when
// the connection is discarded.
func (c *Connection) SendQueue() <-chan []byte {
	return c.send
}

// Deliver queue one payload for transmission to the client. Never blocks: a
// closed connection returns ErrConnectionGone, a full buffer drops the
// payload with an error. A slow client must never stall delivery to others.
func (c *Connection) Deliver(payload []byte) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.state == StateClosed {
		return common.ErrConnectionGone
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return fmt.Errorf("connection %s send buffer full", c.ID)
	}
}

// markClosed transition to closed and release the send queue. Caller must
// hold the registry lock.
func (c *Connection) markClosed() {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.state == StateClosed {
		return
	}
	c.state = StateClosed
	close(c.send)
}

// ========================================================================================

// ConnectionRegistry tracks live client connections of this instance and the
// delivery groups each belongs to.
//
// Membership is per-instance state, intentionally not synchronized across
// instances. Each instance only needs to know which of its own connections
// should receive an event; cross-instance reach is the relay backplane's job.
type ConnectionRegistry interface {
	// OnConnect allocate a new connection in state connecting, with no
	// group memberships yet
	OnConnect() *Connection
	// Identify open the connection and place it in its personal group and
	// the shared trending group. Calling again with a different user ID
	// re-targets the personal membership. Unknown connections are logged
	// and ignored.
	Identify(connID, userID string)
	// OnDisconnect remove the connection from all groups and discard it.
	// Safe to call for never-identified connections.
	OnDisconnect(connID string)
	// MembersOf fetch the current local connection set of a group. Read
	// only; callers must not mutate connections through it.
	MembersOf(groupName string) []*Connection
	// Drain close all remaining connections on instance shutdown
	Drain()
}

// connectionRegistryImpl implements ConnectionRegistry
type connectionRegistryImpl struct {
	common.Component
	lock          sync.RWMutex
	connections   map[string]*Connection
	groups        map[string]map[string]*Connection
	sendBufferLen int
}

// GetConnectionRegistry define a new connection registry
func GetConnectionRegistry(instance string, sendBufferLen int) (ConnectionRegistry, error) {
	if sendBufferLen < 1 {
		return nil, fmt.Errorf("connection send buffer must hold at least one payload")
	}
	logTags := log.Fields{
		"module": "registry", "component": "connection-registry", "instance": instance,
	}
	return &connectionRegistryImpl{
		Component:     common.Component{LogTags: logTags},
		connections:   make(map[string]*Connection),
		groups:        make(map[string]map[string]*Connection),
		sendBufferLen: sendBufferLen,
	}, nil
}

// OnConnect allocate a new connection
func (r *connectionRegistryImpl) OnConnect() *Connection {
	newConn := &Connection{
		ID:    uuid.New().String(),
		state: StateConnecting,
		send:  make(chan []byte, r.sendBufferLen),
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	r.connections[newConn.ID] = newConn
	log.WithFields(r.LogTags).Debugf("Accepted connection %s", newConn.ID)
	return newConn
}

// Identify place the connection in its delivery groups
func (r *connectionRegistryImpl) Identify(connID, userID string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	conn, ok := r.connections[connID]
	if !ok {
		log.WithFields(r.LogTags).Warnf(
			"Identify for unknown connection %s as user %s", connID, userID,
		)
		return
	}
	newGroup := common.PersonalGroup(userID)
	conn.lock.Lock()
	oldGroup := conn.personalGroup
	conn.personalGroup = newGroup
	conn.state = StateOpen
	conn.lock.Unlock()
	// A connection belongs to at most one personal group. A re-identify
	// with a different user moves the membership.
	if oldGroup != "" && oldGroup != newGroup {
		r.removeFromGroup(oldGroup, connID)
	}
	r.addToGroup(newGroup, conn)
	r.addToGroup(common.TrendingGroup, conn)
	log.WithFields(r.LogTags).Infof("Connection %s identified into %s", connID, newGroup)
}

// OnDisconnect discard a connection
func (r *connectionRegistryImpl) OnDisconnect(connID string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	conn, ok := r.connections[connID]
	if !ok {
		log.WithFields(r.LogTags).Debugf("Disconnect for unknown connection %s", connID)
		return
	}
	conn.lock.Lock()
	personal := conn.personalGroup
	conn.lock.Unlock()
	if personal != "" {
		r.removeFromGroup(personal, connID)
	}
	r.removeFromGroup(common.TrendingGroup, connID)
	conn.markClosed()
	delete(r.connections, connID)
	log.WithFields(r.LogTags).Debugf("Discarded connection %s", connID)
}

// MembersOf fetch the local connection set of a group
func (r *connectionRegistryImpl) MembersOf(groupName string) []*Connection {
	r.lock.RLock()
	defer r.lock.RUnlock()
	members := r.groups[groupName]
	result := make([]*Connection, 0, len(members))
	for _, conn := range members {
		result = append(result, conn)
	}
	return result
}

// Drain close all remaining connections
func (r *connectionRegistryImpl) Drain() {
	r.lock.Lock()
	defer r.lock.Unlock()
	for id, conn := range r.connections {
		conn.markClosed()
		delete(r.connections, id)
	}
	r.groups = make(map[string]map[string]*Connection)
	log.WithFields(r.LogTags).Info("Drained all connections")
}

// addToGroup caller must hold the registry lock
func (r *connectionRegistryImpl) addToGroup(groupName string, conn *Connection) {
	members, ok := r.groups[groupName]
	if !ok {
		members = make(map[string]*Connection)
		r.groups[groupName] = members
	}
	members[conn.ID] = conn
}

// removeFromGroup caller must hold the registry lock
func (r *connectionRegistryImpl) removeFromGroup(groupName, connID string) {
	members, ok := r.groups[groupName]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.groups, groupName)
	}
}
