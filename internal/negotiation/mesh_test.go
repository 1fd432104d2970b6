package negotiation

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// meshCall parks every loop in its role probe and records who was probed.
type meshCall struct {
	mu      sync.Mutex
	members domain.Members
	changed chan struct{}
	done    chan struct{}
	probed  map[domain.UserID]int
}

func newMeshCall(m domain.Members) *meshCall {
	return &meshCall{
		members: m,
		changed: make(chan struct{}),
		done:    make(chan struct{}),
		probed:  map[domain.UserID]int{},
	}
}

func (c *meshCall) setMembers(m domain.Members) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.members = m
	close(c.changed)
	c.changed = make(chan struct{})
}

func (c *meshCall) Self() domain.UserID { return "a" }

func (c *meshCall) UpdateSDPData(ctx context.Context, peer domain.UserID, sdp string, forced bool) (domain.SDPKind, error) {
	c.mu.Lock()
	c.probed[peer]++
	c.mu.Unlock()
	<-ctx.Done()
	return "", ctx.Err()
}

func (c *meshCall) SendIceCandidate(context.Context, domain.UserID, json.RawMessage) error {
	return nil
}

func (c *meshCall) SDP(domain.UserID) (domain.SDPView, bool) { return domain.SDPView{}, false }
func (c *meshCall) TakeForced(domain.UserID) bool { return false }

func (c *meshCall) PeerLeft(peer domain.UserID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.ContainsUser(c.members.Rejected, peer)
}

func (c *meshCall) Watch(domain.UserID) (<-chan struct{}, <-chan json.RawMessage, func()) {
	return make(chan struct{}), make(chan json.RawMessage), func() {}
}

func (c *meshCall) Done() <-chan struct{} { return c.done }

func (c *meshCall) Members() domain.Members {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.members.Clone()
}

func (c *meshCall) MembersChanged() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed
}

func (c *meshCall) probes(peer domain.UserID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.probed[peer]
}

func sortedPeers(m *Mesh) []domain.UserID {
	out := m.Peers()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestMesh_FollowsMembers(t *testing.T) {
	call := newMeshCall(domain.Members{
		Invited:      []domain.UserID{"a", "b", "c", "d"},
		Acknowledged: []domain.UserID{"a", "b", "c"},
	})
	mesh := NewMesh(call, (&peers{}).factory, WithTimings(fastTimings()))

	done := make(chan error, 1)
	go func() { done <- mesh.Run(context.Background()) }()

	eventually(t, "loops for b and c", func() bool {
		return call.probes("b") == 1 && call.probes("c") == 1
	})
	if call.probes("a") != 0 || call.probes("d") != 0 {
		t.Error("loop started for self or for a member who never joined")
	}

	call.setMembers(domain.Members{
		Invited:      []domain.UserID{"a", "b", "c", "d"},
		Acknowledged: []domain.UserID{"a", "b", "c", "d"},
		Rejected:     []domain.UserID{"c"},
	})
	eventually(t, "loop for d only after c left", func() bool {
		peers := sortedPeers(mesh)
		return call.probes("d") == 1 && len(peers) == 2 && peers[0] == "b" && peers[1] == "d"
	})

	close(call.done)
	if err := <-done; err != nil {
		t.Errorf("Run = %v, want nil", err)
	}
}
