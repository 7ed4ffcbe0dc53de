package snowflake

import (
	"sync"
	"testing"
	"time"
)

func TestNewGenerator(t *testing.T) {
	tests := []struct {
		name    string
		nodeID  int64
		wantErr bool
	}{
		{"valid node 0", 0, false},
		{"valid node 1", 1, false},
		{"valid node max", 1023, false},
		{"invalid node -1", -1, true},
		{"invalid node 1024", 1024, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGenerator(tt.nodeID)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewGenerator(%d) error = %v, wantErr %v", tt.nodeID, err, tt.wantErr)
			}
		})
	}
}

func TestGenerate_Unique(t *testing.T) {
	gen, err := NewGenerator(1)
	if err != nil {
		t.Fatal(err)
	}

	ids := make(map[int64]bool)
	count := 10000

	for i := 0; i < count; i++ {
		id, err := gen.Generate()
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}

		if ids[id] {
			t.Fatalf("duplicate ID generated: %d", id)
		}
		ids[id] = true
	}
}

func TestGenerate_Concurrent(t *testing.T) {
	gen, err := NewGenerator(1)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	ids := make(map[int64]bool)

	workers := 8
	perWorker := 1000

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := gen.MustGenerate()
				mu.Lock()
				if ids[id] {
					t.Errorf("duplicate ID generated: %d", id)
				}
				ids[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(ids) != workers*perWorker {
		t.Errorf("expected %d unique IDs, got %d", workers*perWorker, len(ids))
	}
}

func TestGenerate_Monotonic(t *testing.T) {
	gen, err := NewGenerator(2)
	if err != nil {
		t.Fatal(err)
	}

	prev := int64(0)
	for i := 0; i < 5000; i++ {
		id := gen.MustGenerate()
		if id <= prev {
			t.Fatalf("IDs not monotonically increasing: %d after %d", id, prev)
		}
		prev = id
	}
}

func TestParse(t *testing.T) {
	gen, err := NewGenerator(42)
	if err != nil {
		t.Fatal(err)
	}

	before := time.Now().Add(-time.Second)
	id := gen.MustGenerate()
	after := time.Now().Add(time.Second)

	ts, nodeID, _ := Parse(id)
	if nodeID != 42 {
		t.Errorf("Parse() nodeID = %d, want 42", nodeID)
	}
	if ts.Before(before) || ts.After(after) {
		t.Errorf("Parse() timestamp %v outside [%v, %v]", ts, before, after)
	}

	if got := Timestamp(id); !got.Equal(ts) {
		t.Errorf("Timestamp() = %v, want %v", got, ts)
	}
}
