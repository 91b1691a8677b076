package netplay

import "sync"

// peerRegistry tracks the peers whose connection was accepted. A peer leaves
// the registry exactly once, which is what makes OnPeerDisconnected fire
// exactly once.
type peerRegistry struct {
	mu    sync.RWMutex
	peers map[Peer]struct{}
}

func newPeerRegistry() *peerRegistry {
	return &peerRegistry{
		peers: make(map[Peer]struct{}),
	}
}

func (r *peerRegistry) add(p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[p] = struct{}{}
}

// remove reports whether p was registered.
func (r *peerRegistry) remove(p Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[p]; !ok {
		return false
	}
	delete(r.peers, p)
	return true
}

func (r *peerRegistry) contains(p Peer) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.peers[p]
	return ok
}

func (r *peerRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// snapshot returns the registered peers in no particular order.
func (r *peerRegistry) snapshot() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	peers := make([]Peer, 0, len(r.peers))
	for p := range r.peers {
		peers = append(peers, p)
	}
	return peers
}

// clear empties the registry and returns the peers it held.
func (r *peerRegistry) clear() []Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	peers := make([]Peer, 0, len(r.peers))
	for p := range r.peers {
		peers = append(peers, p)
	}
	r.peers = make(map[Peer]struct{})
	return peers
}
