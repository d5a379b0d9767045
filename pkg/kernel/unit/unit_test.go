package unit

import (
	"errors"
	"reflect"
	"sync"
	"testing"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := NewStub(StubConfig{Name: "A"})
	if err := r.Register("A", a); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("A", a); err == nil {
		t.Error("duplicate registration must fail")
	}
	if err := r.Register("", a); err == nil {
		t.Error("empty name must fail")
	}
	if err := r.Register("B", nil); err == nil {
		t.Error("nil unit must fail")
	}

	got, err := r.Lookup("A")
	if err != nil || got != a {
		t.Errorf("Lookup(A) = %v, %v", got, err)
	}
	_, err = r.Lookup("Nope")
	if !errors.Is(err, ErrUnitNotFound) {
		t.Errorf("Lookup(Nope) err = %v", err)
	}

	r.MustRegister("0first", NewStub(StubConfig{Name: "0first"}))
	if names := r.Names(); !reflect.DeepEqual(names, []string{"0first", "A"}) {
		t.Errorf("Names = %v", names)
	}
}

func TestLookupFunc(t *testing.T) {
	stub := NewStub(StubConfig{Name: "X"})
	var l Lookup = LookupFunc(func(name string) (Unit, error) {
		if name == "X" {
			return stub, nil
		}
		return nil, ErrUnitNotFound
	})
	if u, err := l.Lookup("X"); err != nil || u != stub {
		t.Errorf("Lookup(X) = %v, %v", u, err)
	}
}

func TestLedger_EnableDisable(t *testing.T) {
	l := NewLedger("editor")
	l.Enable("A", nil)
	l.Enable("B", []any{"x", "y"})
	l.Enable("B", []any{"z"})
	l.Disable("B", []any{"y"})
	l.Disable("C", []any{"q"})

	if got := l.Active(); !reflect.DeepEqual(got, []string{"A", "B(x,z)"}) {
		t.Errorf("Active = %v", got)
	}
	if got := l.Symbols("B"); !reflect.DeepEqual(got, []string{"x", "z"}) {
		t.Errorf("Symbols(B) = %v", got)
	}

	l.Disable("A", nil)
	if l.IsActive("A") {
		t.Error("disable without args removes the whole target")
	}

	events := l.Events()
	want := []string{"enable A", "enable B(x,y)", "enable B(z)", "disable B(y)", "disable C(q)", "disable A"}
	if len(events) != len(want) {
		t.Fatalf("events = %v", events)
	}
	for i, e := range events {
		if e.String() != want[i] {
			t.Errorf("event %d = %q, want %q", i, e, want[i])
		}
	}
}

func TestLedger_EventsAreCopies(t *testing.T) {
	l := NewLedger("c")
	args := []any{"x"}
	l.Enable("A", args)
	args[0] = "mutated"
	ev := l.Events()
	ev[0].Target = "changed"
	if got := l.Events()[0].String(); got != "enable A(x)" {
		t.Errorf("event = %q", got)
	}
}

func TestStub(t *testing.T) {
	tests := []struct {
		name       string
		cfg        StubConfig
		deactivate bool
		fails      bool
	}{
		{"plain", StubConfig{Name: "A"}, false, false},
		{"deactivatable", StubConfig{Name: "A", Deactivate: true}, true, false},
		{"failing", StubConfig{Name: "A", Fail: "boom", Deactivate: true}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := NewStub(tt.cfg)
			if _, ok := u.(Deactivator); ok != tt.deactivate {
				t.Errorf("Deactivator = %v, want %v", ok, tt.deactivate)
			}
			if _, ok := u.(Versioned); !ok {
				t.Error("stubs always report a version")
			}
			l := NewLedger("c")
			err := u.Activate(l, []any{"s"})
			if (err != nil) != tt.fails {
				t.Fatalf("Activate err = %v", err)
			}
			if tt.fails {
				if l.IsActive("A") {
					t.Error("failed activation must not touch the ledger")
				}
				return
			}
			if !l.IsActive("A") {
				t.Error("A should be active")
			}
			if d, ok := u.(Deactivator); ok {
				if err := d.Deactivate(l, nil); err != nil || l.IsActive("A") {
					t.Errorf("Deactivate err = %v, active = %v", err, l.Active())
				}
			}
		})
	}
}

type otherConsumer struct{}

func (otherConsumer) ID() string { return "other" }

func TestStub_IgnoresForeignConsumers(t *testing.T) {
	u := NewStub(StubConfig{Name: "A", Version: "1.0"})
	if err := u.Activate(otherConsumer{}, nil); err != nil {
		t.Fatal(err)
	}
	if v := u.(Versioned).Version(); v != "1.0" {
		t.Errorf("Version = %q", v)
	}
}

func TestLedger_Concurrent(t *testing.T) {
	l := NewLedger("c")
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Enable("A", []any{"x"})
			_ = l.Active()
		}()
	}
	wg.Wait()
	if n := len(l.Events()); n != 16 {
		t.Errorf("events = %d", n)
	}
}
