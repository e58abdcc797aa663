package slashcmd

import "testing"

func TestOnChangeFiresAtMostOncePerMutation(t *testing.T) {
	r := New()
	calls := 0
	r.OnChange(func(cmds []Command) { calls++ })

	r.Register(Command{Name: "model", Description: "switch model"})
	r.Register(Command{Name: "help", Description: "show help"})
	r.Remove("help")

	if calls != 3 {
		t.Fatalf("expected 3 callback invocations, got %d", calls)
	}
}

func TestListPreservesInsertionOrder(t *testing.T) {
	r := New()
	r.Register(Command{Name: "b"})
	r.Register(Command{Name: "a"})
	r.Register(Command{Name: "c"})

	list := r.List()
	if len(list) != 3 || list[0].Name != "b" || list[1].Name != "a" || list[2].Name != "c" {
		t.Fatalf("unexpected order: %+v", list)
	}
}

func TestOverwritePreservesOriginalPosition(t *testing.T) {
	r := New()
	r.Register(Command{Name: "b", Description: "first"})
	r.Register(Command{Name: "a"})
	r.Register(Command{Name: "b", Description: "second"})

	list := r.List()
	if list[0].Name != "b" || list[0].Description != "second" {
		t.Fatalf("expected overwritten b to keep its original slot: %+v", list)
	}
}
