package bus

import (
	"errors"
	"testing"
)

func TestLocalWrite(t *testing.T) {
	reg := NewRegistry()
	m := &Message{Circuit: "hwc", Name: "temp", Write: true, Fields: []Field{{Name: "temp", Kind: KindNumber}}}
	reg.Add(m)

	l := NewLocal(reg)
	if err := l.ReadFromBus(m, "21.5"); err != nil {
		t.Fatal(err)
	}
	if got := m.Value(0); got != "21.5" {
		t.Errorf("Wanted 21.5, got %s", got)
	}
}

func TestLocalReadNoData(t *testing.T) {
	reg := NewRegistry()
	m := &Message{Circuit: "hwc", Name: "temp", Fields: []Field{{Name: "temp", Kind: KindNumber}}}
	reg.Add(m)

	l := NewLocal(reg)
	if err := l.ReadFromBus(m, ""); !errors.Is(err, ErrNoData) {
		t.Fatalf("Wanted ErrNoData, got %v", err)
	}

	reg.SetValues(m, []string{"21.5"})
	if err := l.ReadFromBus(m, ""); err != nil {
		t.Fatal(err)
	}
}

func TestLocalMultiField(t *testing.T) {
	reg := NewRegistry()
	m := &Message{Circuit: "broadcast", Name: "datetime", Write: true, Fields: []Field{
		{Name: "date", Kind: KindDate},
		{Name: "time", Kind: KindTime},
	}}
	reg.Add(m)

	l := NewLocal(reg)
	if err := l.ReadFromBus(m, "21.12.2025;12:34:56"); err != nil {
		t.Fatal(err)
	}
	if m.Value(0) != "21.12.2025" || m.Value(1) != "12:34:56" {
		t.Errorf("Wanted split values, got %v", m.Values)
	}
}

func TestLocalSignal(t *testing.T) {
	l := NewLocal(NewRegistry())
	if !l.HasSignal() {
		t.Error("Wanted signal initially present")
	}
	l.SetSignal(false)
	if l.HasSignal() {
		t.Error("Wanted no signal after SetSignal(false)")
	}
}
