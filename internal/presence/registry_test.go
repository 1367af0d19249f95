package presence

import (
	"fmt"
	"sync"
	"testing"
)

type fakeConn struct {
	id   string
	fail bool

	mu   sync.Mutex
	last []byte
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(frame []byte) bool {
	if f.fail {
		return false
	}
	f.mu.Lock()
	f.last = frame
	f.mu.Unlock()
	return true
}

func TestRegistry_RegisterAndSend(t *testing.T) {
	reg := NewRegistry()

	connA := &fakeConn{id: "a"}
	connB := &fakeConn{id: "b"}

	reg.Register("alice", connA)
	reg.Register("alice", connB) // second tab

	if sent, failed := reg.SendToUser("alice", []byte("m1")); sent != 2 || failed != 0 {
		t.Fatalf("expected 2 deliveries, got sent=%d failed=%d", sent, failed)
	}
	if string(connA.last) != "m1" || string(connB.last) != "m1" {
		t.Fatalf("both connections should have received m1")
	}

	reg.Unregister(connA)

	reg.SendToUser("alice", []byte("m2"))
	if string(connA.last) == "m2" {
		t.Fatalf("connection A should not receive frames after unregister")
	}
	if string(connB.last) != "m2" {
		t.Fatalf("connection B did not receive m2")
	}
}

func TestRegistry_SendToOffline(t *testing.T) {
	reg := NewRegistry()

	if sent, failed := reg.SendToUser("nobody", []byte("x")); sent != 0 || failed != 0 {
		t.Fatalf("expected no delivery to offline user, got sent=%d failed=%d", sent, failed)
	}
	if reg.Online("nobody") {
		t.Fatalf("nobody should be offline")
	}
}

func TestRegistry_SendPartialFailure(t *testing.T) {
	reg := NewRegistry()

	ok := &fakeConn{id: "ok"}
	bad := &fakeConn{id: "bad", fail: true}

	reg.Register("dave", ok)
	reg.Register("dave", bad)

	if _, failed := reg.SendToUser("dave", []byte("x")); failed != 1 {
		t.Fatalf("expected one failed delivery, got %d", failed)
	}

	// the refusing connection was dropped; the healthy one keeps receiving
	if reg.Count() != 1 {
		t.Fatalf("expected 1 connection after cleanup, got %d", reg.Count())
	}
	if sent, failed := reg.SendToUser("dave", []byte("y")); sent != 1 || failed != 0 {
		t.Fatalf("expected clean delivery after cleanup, got sent=%d failed=%d", sent, failed)
	}
	if string(ok.last) != "y" {
		t.Fatalf("healthy connection did not receive y")
	}
}

func TestRegistry_UnregisterRemovesIdentity(t *testing.T) {
	reg := NewRegistry()
	c := &fakeConn{id: "c1"}

	reg.Register("alice", c)
	if !reg.Online("alice") {
		t.Fatalf("alice should be online")
	}

	if !reg.Unregister(c) {
		t.Fatalf("first Unregister should report removal")
	}
	if reg.Unregister(c) {
		t.Fatalf("second Unregister should be a no-op")
	}
	if reg.Online("alice") || reg.Count() != 0 {
		t.Fatalf("alice should be offline with no connections left")
	}
	if len(reg.ConnectionsFor("alice")) != 0 {
		t.Fatalf("expected empty snapshot")
	}
}

func TestRegistry_ReRegisterMovesConnection(t *testing.T) {
	reg := NewRegistry()
	c := &fakeConn{id: "c1"}

	reg.Register("alice", c)
	reg.Register("bob", c)

	if reg.Online("alice") {
		t.Fatalf("connection should have moved away from alice")
	}
	if !reg.Online("bob") || reg.Count() != 1 {
		t.Fatalf("expected bob online with a single connection")
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	reg := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := &fakeConn{id: fmt.Sprintf("c%d", i)}
			identity := fmt.Sprintf("user%d", i%5)
			reg.Register(identity, c)
			reg.SendToUser(identity, []byte("hi"))
			reg.Unregister(c)
		}(i)
	}
	wg.Wait()

	if reg.Count() != 0 {
		t.Fatalf("expected empty registry, got %d connections", reg.Count())
	}
}
