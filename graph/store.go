// Package graph is an in-process replicated graph store. Nodes are
// addressed by slash separated paths and merged field by field with
// last-writer-wins semantics. A tombstone hides every field that is not
// newer than itself, which is how deletion is expressed in a merge-only
// store. Changes are pushed to the subscribers of the parent path.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/YasiruR/mule-sync/domain/models"
	"github.com/YasiruR/mule-sync/domain/services"
	"github.com/YasiruR/mule-sync/graph/paths"
	"github.com/google/uuid"
	"github.com/tryfix/log"
)

var ErrInvalidPath = errors.New(`invalid graph path`)

type node struct {
	fields    map[string]Field
	tombstone int64
}

// view returns the visible fields of the node or nil if the node is
// deleted or was never written
func (n *node) view() models.Node {
	if n == nil {
		return nil
	}

	v := models.Node{}
	for k, f := range n.fields {
		if f.State > n.tombstone {
			v[k] = f.Value
		}
	}

	if len(v) == 0 {
		return nil
	}
	return v
}

type subscription struct {
	path string
	l    services.Listener
}

type Store struct {
	id        string
	nodes     map[string]*node
	children  map[string]map[string]struct{} // keyed by parent path
	subs      map[string][]subscription
	peers     []string
	state     int64
	transport Transport
	disp      *dispatcher
	log       log.Logger
	*sync.RWMutex
}

func NewStore(l log.Logger) *Store {
	return &Store{
		id:       uuid.New().String(),
		nodes:    map[string]*node{},
		children: map[string]map[string]struct{}{},
		subs:     map[string][]subscription{},
		disp:     newDispatcher(l),
		log:      l,
		RWMutex:  &sync.RWMutex{},
	}
}

// Id identifies this store instance in replicated updates
func (s *Store) Id() string {
	return s.id
}

// SetTransport attaches a replication transport and connects it to the
// peers registered so far
func (s *Store) SetTransport(t Transport) {
	s.Lock()
	s.transport = t
	peers := append([]string{}, s.peers...)
	s.Unlock()

	for _, p := range peers {
		if err := t.Connect(p); err != nil {
			s.log.Error(fmt.Sprintf(`connecting store peer %s failed - %v`, p, err))
		}
	}
}

func (s *Store) Get(_ context.Context, path string) (models.Node, error) {
	if !paths.Valid(path) {
		return nil, ErrInvalidPath
	}

	s.RLock()
	defer s.RUnlock()
	return s.nodes[path].view(), nil
}

// Children returns the keys of the visible children of path
func (s *Store) Children(path string) []string {
	s.RLock()
	defer s.RUnlock()

	var keys []string
	for k := range s.children[path] {
		if s.nodes[paths.Join(path, k)].view() != nil {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) Put(path string, n models.Node) error {
	if !paths.Valid(path) {
		return ErrInvalidPath
	}

	s.Lock()
	st := s.nextState()
	u := Update{Id: uuid.New().String(), Origin: s.id, Path: path}
	if n == nil {
		u.Tombstone = st
	} else {
		u.Fields = make(map[string]Field, len(n))
		for k, v := range n {
			u.Fields[k] = Field{Value: v, State: st}
		}
	}
	s.apply(u)
	t := s.transport
	s.Unlock()

	if t != nil {
		if err := t.Broadcast(u); err != nil {
			s.log.Error(fmt.Sprintf(`broadcasting update for %s failed - %v`, path, err))
		}
	}

	return nil
}

// Merge applies an update received from another store. Updates that do
// not change the local state are not delivered again.
func (s *Store) Merge(u Update) error {
	if !paths.Valid(u.Path) {
		return ErrInvalidPath
	}

	s.Lock()
	defer s.Unlock()
	s.observe(u)
	s.apply(u)
	return nil
}

// Map replays the visible children of path in key order and then delivers
// every change of a child
func (s *Store) Map(path string, l services.Listener) {
	s.Lock()
	defer s.Unlock()

	sub := subscription{path: path, l: l}
	s.subs[path] = append(s.subs[path], sub)

	keys := make([]string, 0, len(s.children[path]))
	for k := range s.children[path] {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := s.nodes[paths.Join(path, k)].view()
		if v == nil {
			continue
		}
		s.deliver(sub, k, v)
	}
}

// AddPeer registers a store endpoint once, later registrations are ignored
func (s *Store) AddPeer(endpoint string) error {
	if endpoint == `` {
		return fmt.Errorf(`empty store peer endpoint`)
	}

	s.Lock()
	for _, p := range s.peers {
		if p == endpoint {
			s.Unlock()
			return nil
		}
	}
	s.peers = append(s.peers, endpoint)
	t := s.transport
	s.Unlock()

	if t != nil {
		if err := t.Connect(endpoint); err != nil {
			return fmt.Errorf(`connecting to store peer %s failed - %v`, endpoint, err)
		}
	}

	s.log.Debug(fmt.Sprintf(`added store peer %s`, endpoint))
	return nil
}

func (s *Store) Peers() []string {
	s.RLock()
	defer s.RUnlock()
	return append([]string{}, s.peers...)
}

func (s *Store) Defer(fn func()) {
	s.disp.enqueue(fn)
}

// Settle blocks until every pending delivery has been handled. It must
// not be called from a subscription callback.
func (s *Store) Settle() {
	s.disp.settle()
}

func (s *Store) Close() {
	s.disp.close()
}

// apply merges u into the local state and queues a delivery when the
// visible value changed. Must be called with the write lock held.
func (s *Store) apply(u Update) {
	n, ok := s.nodes[u.Path]
	if !ok {
		n = &node{fields: map[string]Field{}}
		s.nodes[u.Path] = n
	}

	changed := false
	if u.Tombstone > n.tombstone {
		n.tombstone = u.Tombstone
		changed = true
	}

	for k, f := range u.Fields {
		cur, exists := n.fields[k]
		if exists && !wins(f, cur) {
			continue
		}
		n.fields[k] = f
		if f.State > n.tombstone {
			changed = true
		}
	}

	s.link(u.Path)
	if !changed {
		return
	}

	parent, key := paths.Split(u.Path)
	v := n.view()
	for _, sub := range s.subs[parent] {
		s.deliver(sub, key, v)
	}
}

// link registers path and all its ancestors in the children index
func (s *Store) link(path string) {
	for path != `` {
		parent, key := paths.Split(path)
		if parent == `` {
			return
		}
		if s.children[parent] == nil {
			s.children[parent] = map[string]struct{}{}
		}
		s.children[parent][key] = struct{}{}
		path = parent
	}
}

func (s *Store) deliver(sub subscription, key string, v models.Node) {
	// each listener gets its own copy
	var cp models.Node
	if v != nil {
		cp = make(models.Node, len(v))
		for k, val := range v {
			cp[k] = val
		}
	}

	s.disp.enqueue(func() { sub.l(key, cp) })
}

// nextState issues a state greater than every state seen so far, close
// to wall clock microseconds
func (s *Store) nextState() int64 {
	st := time.Now().UnixMicro()
	if st <= s.state {
		st = s.state + 1
	}
	s.state = st
	return st
}

// observe advances the local state past the states of a remote update
func (s *Store) observe(u Update) {
	if u.Tombstone > s.state {
		s.state = u.Tombstone
	}
	for _, f := range u.Fields {
		if f.State > s.state {
			s.state = f.State
		}
	}
}
