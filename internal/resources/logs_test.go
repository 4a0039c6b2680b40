package resources

import (
	"context"
	"errors"
	"testing"

	"github.com/flydevtools/flyserve/internal/logstore"
	"github.com/flydevtools/flyserve/internal/protocol"
)

func TestLogStrategy_RequiresStore(t *testing.T) {
	if _, err := NewRunLogStrategy(nil); err == nil {
		t.Error("nil store must be rejected at construction")
	}
	if _, err := NewBuildLogStrategy(nil); err == nil {
		t.Error("nil store must be rejected at construction")
	}
}

func TestLogStrategy_ReadAndRange(t *testing.T) {
	store := logstore.NewStore()
	store.Append("run-7", "hello")
	strategy, err := NewRunLogStrategy(store)
	if err != nil {
		t.Fatal(err)
	}

	result, err := strategy.Read(context.Background(), protocol.ReadResourceParams{
		URI: "logs://run/run-7",
	})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if result.Content != "hello\n" || result.Total != 6 {
		t.Errorf("result = %+v", result)
	}

	result, err = strategy.Read(context.Background(), protocol.ReadResourceParams{
		URI:    "logs://run/run-7",
		Start:  1,
		Length: 3,
	})
	if err != nil {
		t.Fatalf("Read with range: %v", err)
	}
	if result.Content != "ell" || result.Start != 1 || result.Length != 3 {
		t.Errorf("ranged result = %+v", result)
	}
}

func TestLogStrategy_UnknownID(t *testing.T) {
	strategy, err := NewRunLogStrategy(logstore.NewStore())
	if err != nil {
		t.Fatal(err)
	}
	_, err = strategy.Read(context.Background(), protocol.ReadResourceParams{
		URI: "logs://run/missing",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestLogStrategy_ListWithPrefixFilter(t *testing.T) {
	store := logstore.NewStore()
	store.Append("app-1", "a")
	store.Append("app-2", "b")
	store.Append("web-1", "c")
	strategy, err := NewBuildLogStrategy(store)
	if err != nil {
		t.Fatal(err)
	}

	result, err := strategy.List(context.Background(), protocol.ListResourcesParams{
		URI: "logs://build/app-",
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if result.Total != 2 || len(result.Items) != 2 {
		t.Fatalf("result = %+v", result)
	}
	if result.Items[0].URI != "logs://build/app-1" {
		t.Errorf("item URI = %s", result.Items[0].URI)
	}
}
