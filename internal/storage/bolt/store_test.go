package bolt

import (
	"testing"

	"github.com/davebekker/signal-budget-bot/internal/interfaces"
	"github.com/davebekker/signal-budget-bot/internal/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T, path string) interfaces.StateStore {
		s, err := Open(path + ".db")
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	}, false)
}

func TestOpenIsExclusive(t *testing.T) {
	path := t.TempDir() + "/pot.db"
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if second, err := Open(path); err == nil {
		second.Close()
		t.Fatal("second Open of a locked database succeeded")
	}
}
