package core

import "testing"

func TestRegistrySetAndLookup(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Lookup(1); ok {
		t.Fatal("expected lookup miss on empty registry")
	}

	r.Set(1, func(args []any) (any, error) { return len(args), nil })

	fn, ok := r.Lookup(1)
	if !ok {
		t.Fatal("expected lookup hit after Set")
	}
	got, err := fn([]any{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 2 {
		t.Fatalf("got %v, want 2", got)
	}
}

func TestRegistrySetReplacesExisting(t *testing.T) {
	r := NewRegistry()
	r.Set(1, func(args []any) (any, error) { return "first", nil })
	r.Set(1, func(args []any) (any, error) { return "second", nil })

	fn, ok := r.Lookup(1)
	if !ok {
		t.Fatal("expected lookup hit")
	}
	got, _ := fn(nil)
	if got != "second" {
		t.Fatalf("got %v, want second", got)
	}
}

func TestCallableFuncAdapter(t *testing.T) {
	var c Callable = CallableFunc(func(args []any) (any, error) { return len(args), nil })
	got, err := c.Call([]any{1, 2, 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 3 {
		t.Fatalf("got %v, want 3", got)
	}
}
