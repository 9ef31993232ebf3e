package brickz

import "testing"

func TestDeps(t *testing.T) {
	t.Run("Get Present", func(t *testing.T) {
		deps := Deps{"db": "connection"}
		v, ok := deps.Get("db")
		if !ok {
			t.Fatal("expected key to be present")
		}
		if v != "connection" {
			t.Errorf("expected 'connection', got %v", v)
		}
	})

	t.Run("Get Missing", func(t *testing.T) {
		deps := Deps{}
		if _, ok := deps.Get("db"); ok {
			t.Error("expected key to be absent")
		}
	})

	t.Run("Nil Bag Behaves As Empty", func(t *testing.T) {
		var deps Deps
		if _, ok := deps.Get("anything"); ok {
			t.Error("expected nil bag to report absence")
		}
	})

	t.Run("Derive Does Not Mutate Original", func(t *testing.T) {
		original := Deps{"a": 1}
		derived := original.Derive("b", 2)

		if _, ok := original.Get("b"); ok {
			t.Error("expected original to be unchanged")
		}
		if v, _ := derived.Get("b"); v != 2 {
			t.Errorf("expected derived to hold 2, got %v", v)
		}
		if v, _ := derived.Get("a"); v != 1 {
			t.Errorf("expected derived to keep existing keys, got %v", v)
		}
	})

	t.Run("Derive Overwrites In Copy", func(t *testing.T) {
		original := Deps{"a": 1}
		derived := original.Derive("a", 99)

		if v, _ := original.Get("a"); v != 1 {
			t.Errorf("expected original to keep 1, got %v", v)
		}
		if v, _ := derived.Get("a"); v != 99 {
			t.Errorf("expected derived to hold 99, got %v", v)
		}
	})

	t.Run("Without", func(t *testing.T) {
		original := Deps{"a": 1, "b": 2}
		narrowed := original.Without("b")

		if _, ok := narrowed.Get("b"); ok {
			t.Error("expected key to be removed in copy")
		}
		if _, ok := original.Get("b"); !ok {
			t.Error("expected original to be unchanged")
		}
	})
}
