package hdkey_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/evetabi/wagerbot/internal/hdkey"
)

// Well-known development mnemonic; its first accounts are published test
// vectors.
const testMnemonic = "test test test test test test test test test test test junk"

func newDeriver(t *testing.T) *hdkey.Deriver {
	t.Helper()
	d, err := hdkey.NewDeriver(testMnemonic, "")
	if err != nil {
		t.Fatalf("NewDeriver: %v", err)
	}
	return d
}

// ── Deriver ──────────────────────────────────────────────────────────────────

func TestDerive_KnownVectors(t *testing.T) {
	d := newDeriver(t)
	cases := []struct {
		index uint32
		addr  string
	}{
		{0, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"},
		{1, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"},
	}
	for _, tc := range cases {
		k, err := d.Derive(tc.index)
		if err != nil {
			t.Fatalf("Derive(%d): %v", tc.index, err)
		}
		if got := k.Address.Hex(); got != tc.addr {
			t.Errorf("Derive(%d).Address = %s, want %s", tc.index, got, tc.addr)
		}
		if want := hdkey.Path(tc.index); k.Path != want {
			t.Errorf("Derive(%d).Path = %s, want %s", tc.index, k.Path, want)
		}
		if crypto.PubkeyToAddress(k.PrivateKey.PublicKey) != k.Address {
			t.Errorf("Derive(%d): private key does not match address", tc.index)
		}
	}
}

func TestDerive_Deterministic(t *testing.T) {
	a := newDeriver(t)
	b := newDeriver(t)
	for _, idx := range []uint32{0, 7, 96354, hdkey.MaxIndex} {
		ka, err := a.Derive(idx)
		if err != nil {
			t.Fatalf("Derive(%d): %v", idx, err)
		}
		kb, err := b.Derive(idx)
		if err != nil {
			t.Fatalf("Derive(%d) on second deriver: %v", idx, err)
		}
		if ka.Address != kb.Address {
			t.Errorf("index %d: %s != %s across derivers", idx, ka.Address, kb.Address)
		}
	}
}

func TestDerive_ConcurrentSafe(t *testing.T) {
	d := newDeriver(t)
	want, _ := d.Derive(42)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k, err := d.Derive(42)
			if err != nil || k.Address != want.Address {
				t.Errorf("concurrent Derive(42) = %s, %v", k.Address, err)
			}
		}()
	}
	wg.Wait()
}

func TestDerive_HardenedIndexRejected(t *testing.T) {
	d := newDeriver(t)
	_, err := d.Derive(hdkey.MaxIndex + 1)
	if !errors.Is(err, hdkey.ErrIndexOutOfRange) {
		t.Errorf("Derive(2^31) err = %v, want ErrIndexOutOfRange", err)
	}
}

func TestMasterKey_SeparateBranch(t *testing.T) {
	d := newDeriver(t)
	m, err := d.MasterKey()
	if err != nil {
		t.Fatalf("MasterKey: %v", err)
	}
	if m.Path != hdkey.MasterPath {
		t.Errorf("MasterKey.Path = %s, want %s", m.Path, hdkey.MasterPath)
	}
	for _, idx := range []uint32{0, 1} {
		k, _ := d.Derive(idx)
		if k.Address == m.Address {
			t.Errorf("master key collides with identifier index %d", idx)
		}
	}
}

func TestNewDeriver_InvalidMnemonic(t *testing.T) {
	for _, m := range []string{"", "not a mnemonic", "test test test"} {
		if _, err := hdkey.NewDeriver(m, ""); !errors.Is(err, hdkey.ErrInvalidMnemonic) {
			t.Errorf("NewDeriver(%q) err = %v, want ErrInvalidMnemonic", m, err)
		}
	}
}

func TestNewDeriver_PassphraseChangesTree(t *testing.T) {
	plain := newDeriver(t)
	salted, err := hdkey.NewDeriver(testMnemonic, "extra")
	if err != nil {
		t.Fatalf("NewDeriver: %v", err)
	}
	a, _ := plain.Derive(0)
	b, _ := salted.Derive(0)
	if a.Address == b.Address {
		t.Error("passphrase should change derived addresses")
	}
}

// ── IndexFor ─────────────────────────────────────────────────────────────────

func TestIndexFor(t *testing.T) {
	cases := []struct {
		id   string
		want uint32
	}{
		{"", 0},
		{"a", 97},
		{"abc", 96354},
		{"hello", 99162322},
		// hashes to math.MinInt32; abs overflows 31 bits and wraps to 0
		{"polygenelubricants", 0},
		// negative hash folds to its absolute value
		{"1234567890123", 869565001},
	}
	for _, tc := range cases {
		if got := hdkey.IndexFor(tc.id); got != tc.want {
			t.Errorf("IndexFor(%q) = %d, want %d", tc.id, got, tc.want)
		}
	}
}

func TestIndexFor_InRange(t *testing.T) {
	for _, id := range []string{"1234567890123", "1445678901234567890", "ünïcødé-😀"} {
		if got := hdkey.IndexFor(id); got > hdkey.MaxIndex {
			t.Errorf("IndexFor(%q) = %d, outside non-hardened range", id, got)
		}
		if hdkey.IndexFor(id) != hdkey.IndexFor(id) {
			t.Errorf("IndexFor(%q) not stable", id)
		}
	}
}

func TestIndexFor_KnownCollision(t *testing.T) {
	// "Aa" and "BB" share a polynomial hash; custody must probe past this.
	if hdkey.IndexFor("Aa") != hdkey.IndexFor("BB") {
		t.Error("expected IndexFor(Aa) == IndexFor(BB)")
	}
}

func TestNextIndex_Wraps(t *testing.T) {
	if got := hdkey.NextIndex(5); got != 6 {
		t.Errorf("NextIndex(5) = %d, want 6", got)
	}
	if got := hdkey.NextIndex(hdkey.MaxIndex); got != 0 {
		t.Errorf("NextIndex(MaxIndex) = %d, want 0", got)
	}
}
