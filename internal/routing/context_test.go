package routing

import (
	"context"
	"errors"
	"testing"
)

func TestPushPopRoundTrip(t *testing.T) {
	starts := []struct {
		name      string
		readOnly  bool
		overrides int
	}{
		{"read-only", true, 0},
		{"read-write", false, 0},
		{"read-only inside override", true, 1},
		{"read-write inside override", false, 2},
	}

	for _, st := range starts {
		t.Run(st.name, func(t *testing.T) {
			rc := New(st.readOnly)
			for i := 0; i < st.overrides; i++ {
				if err := rc.PushOverride(); err != nil {
					t.Fatalf("PushOverride() error = %v", err)
				}
			}

			before := rc.CurrentIntent()
			depth := rc.Depth()

			if err := rc.PushOverride(); err != nil {
				t.Fatalf("PushOverride() error = %v", err)
			}
			if got := rc.CurrentIntent(); got != ReadWrite {
				t.Errorf("CurrentIntent() during override = %s, want %s", got, ReadWrite)
			}
			if err := rc.PopOverride(); err != nil {
				t.Fatalf("PopOverride() error = %v", err)
			}

			if got := rc.CurrentIntent(); got != before {
				t.Errorf("CurrentIntent() after round trip = %s, want %s", got, before)
			}
			if got := rc.Depth(); got != depth {
				t.Errorf("Depth() after round trip = %d, want %d", got, depth)
			}
		})
	}
}

func TestNestedOverrides(t *testing.T) {
	single := New(true)
	if err := single.PushOverride(); err != nil {
		t.Fatalf("PushOverride() error = %v", err)
	}

	nested := New(true)
	for i := 0; i < 2; i++ {
		if err := nested.PushOverride(); err != nil {
			t.Fatalf("PushOverride() error = %v", err)
		}
	}
	if err := nested.PopOverride(); err != nil {
		t.Fatalf("PopOverride() error = %v", err)
	}

	if nested.Depth() != single.Depth() {
		t.Errorf("Depth() = %d, want %d", nested.Depth(), single.Depth())
	}
	if nested.CurrentIntent() != single.CurrentIntent() {
		t.Errorf("CurrentIntent() = %s, want %s", nested.CurrentIntent(), single.CurrentIntent())
	}
	if Resolve(nested) != Primary {
		t.Errorf("Resolve() at depth 1 = %s, want %s", Resolve(nested), Primary)
	}
}

func TestPopEmptyStack(t *testing.T) {
	rc := New(true)

	err := rc.PopOverride()
	if !errors.Is(err, ErrStateCorruption) {
		t.Fatalf("PopOverride() error = %v, want ErrStateCorruption", err)
	}

	var sce *StateCorruptionError
	if !errors.As(err, &sce) {
		t.Fatalf("PopOverride() error type = %T, want *StateCorruptionError", err)
	}
	if sce.Op != "pop override" {
		t.Errorf("Op = %q, want %q", sce.Op, "pop override")
	}
}

func TestPin(t *testing.T) {
	rc := New(true)

	if _, ok := rc.Pinned(); ok {
		t.Fatal("new context should not be pinned")
	}
	if err := rc.Pin(Replica); err != nil {
		t.Fatalf("Pin() error = %v", err)
	}
	role, ok := rc.Pinned()
	if !ok || role != Replica {
		t.Errorf("Pinned() = %s, %v, want %s, true", role, ok, Replica)
	}

	if err := rc.Pin(Primary); !errors.Is(err, ErrStateCorruption) {
		t.Errorf("second Pin() error = %v, want ErrStateCorruption", err)
	}
	if role, _ := rc.Pinned(); role != Replica {
		t.Errorf("Pinned() after rejected pin = %s, want %s", role, Replica)
	}
}

func TestPushAfterReplicaPin(t *testing.T) {
	rc := New(true)
	if err := rc.Pin(Replica); err != nil {
		t.Fatalf("Pin() error = %v", err)
	}

	if err := rc.PushOverride(); !errors.Is(err, ErrStateCorruption) {
		t.Fatalf("PushOverride() error = %v, want ErrStateCorruption", err)
	}
	if rc.Depth() != 0 {
		t.Errorf("Depth() = %d, want 0", rc.Depth())
	}
}

func TestPushAfterPrimaryPin(t *testing.T) {
	rc := New(false)
	if err := rc.Pin(Primary); err != nil {
		t.Fatalf("Pin() error = %v", err)
	}

	// Forcing primary on a primary-pinned unit changes nothing it can observe.
	if err := rc.PushOverride(); err != nil {
		t.Fatalf("PushOverride() error = %v", err)
	}
	if err := rc.PopOverride(); err != nil {
		t.Fatalf("PopOverride() error = %v", err)
	}
}

func TestBegin(t *testing.T) {
	t.Run("root", func(t *testing.T) {
		ctx, rc := Begin(context.Background(), true)
		got, ok := FromContext(ctx)
		if !ok || got != rc {
			t.Fatal("FromContext() did not return the begun context")
		}
		if Resolve(rc) != Replica {
			t.Errorf("Resolve() = %s, want %s", Resolve(rc), Replica)
		}
	})

	t.Run("derived from override scope", func(t *testing.T) {
		scope := New(false)
		if err := scope.PushOverride(); err != nil {
			t.Fatalf("PushOverride() error = %v", err)
		}

		ctx, rc := Begin(NewContext(context.Background(), scope), true)
		if got, _ := FromContext(ctx); got != rc {
			t.Fatal("FromContext() should return the innermost context")
		}
		if rc == scope {
			t.Fatal("Begin() must not reuse the enclosing context")
		}
		if Resolve(rc) != Primary {
			t.Errorf("Resolve() = %s, want %s", Resolve(rc), Primary)
		}
		if !rc.DeclaredReadOnly() {
			t.Error("DeclaredReadOnly() = false, want true")
		}
	})
}

func TestFromContextEmpty(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Error("FromContext() on empty context should report false")
	}
}
