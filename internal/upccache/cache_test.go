package upccache

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeKV is an in-memory kv with injectable failures.
type fakeKV struct {
	data    map[string][]byte
	ttls    map[string]time.Duration
	failSet bool
	failGet bool
	failDel bool
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeKV) set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if f.failSet {
		return errors.New("connection refused")
	}
	f.data[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeKV) get(_ context.Context, key string) ([]byte, error) {
	if f.failGet {
		return nil, errors.New("connection refused")
	}
	return f.data[key], nil
}

func (f *fakeKV) del(_ context.Context, key string) error {
	if f.failDel {
		return errors.New("connection refused")
	}
	delete(f.data, key)
	return nil
}

func testEntry() Entry {
	return Entry{
		PackID:      "3f6c2a1e-0000-0000-0000-000000000001",
		StoreID:     "store-1",
		GameCode:    "0042",
		GameName:    "Lucky 7s",
		PackNumber:  "1002003",
		TicketPrice: 20,
		UPCs:        []string{"004220030005", "004220030016"},
	}
}

func TestStoreAndGet(t *testing.T) {
	kv := newFakeKV()
	c := newCache(kv, time.Hour)

	e := testEntry()
	if !c.Store(context.Background(), e) {
		t.Fatal("Store returned false")
	}

	got, ok := c.Get(context.Background(), e.PackID)
	if !ok {
		t.Fatal("Get returned ok=false for a stored entry")
	}
	if got.GameCode != e.GameCode || len(got.UPCs) != 2 {
		t.Errorf("entry round-trip mangled: %+v", got)
	}
	if got.ExpiresAt.Sub(got.GeneratedAt) != time.Hour {
		t.Errorf("expiry window = %v, want 1h", got.ExpiresAt.Sub(got.GeneratedAt))
	}
	if kv.ttls[Key(e.PackID)] != time.Hour {
		t.Errorf("redis ttl hint = %v, want 1h", kv.ttls[Key(e.PackID)])
	}
}

func TestGetMissing(t *testing.T) {
	c := newCache(newFakeKV(), time.Hour)
	if _, ok := c.Get(context.Background(), "nope"); ok {
		t.Error("Get returned ok=true for a missing entry")
	}
}

func TestGetExpiredTreatedAsAbsent(t *testing.T) {
	kv := newFakeKV()
	c := newCache(kv, time.Hour)

	e := testEntry()
	c.Store(context.Background(), e)

	// Move the clock past the advisory expiry.
	c.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, ok := c.Get(context.Background(), e.PackID); ok {
		t.Error("expired entry must read as absent")
	}
}

func TestDelete(t *testing.T) {
	kv := newFakeKV()
	c := newCache(kv, time.Hour)

	e := testEntry()
	c.Store(context.Background(), e)
	if !c.Delete(context.Background(), e.PackID) {
		t.Fatal("Delete returned false")
	}
	if _, ok := c.Get(context.Background(), e.PackID); ok {
		t.Error("entry still readable after delete")
	}
}

func TestFailuresAreBooleanNotFatal(t *testing.T) {
	kv := newFakeKV()
	kv.failSet = true
	kv.failGet = true
	kv.failDel = true
	c := newCache(kv, time.Hour)

	if c.Store(context.Background(), testEntry()) {
		t.Error("Store must return false on backend failure")
	}
	if _, ok := c.Get(context.Background(), "any"); ok {
		t.Error("Get must return ok=false on backend failure")
	}
	if c.Delete(context.Background(), "any") {
		t.Error("Delete must return false on backend failure")
	}
}

func TestKey(t *testing.T) {
	if got := Key("abc"); got != "lottery:pack:upcs:abc" {
		t.Errorf("Key = %q", got)
	}
}
