package bus

import (
	"strings"
	"testing"
)

const testCatalog = `
messages:
  - circuit: hwc
    name: temp
    fields:
      - name: temp
        kind: number
        unit: °C
        comment: Water temperature
  - circuit: hwc
    name: temp
    write: true
    fields:
      - name: temp
        kind: number
  - circuit: broadcast
    name: datetime
    passive: true
    fields:
      - name: date
        kind: date
      - name: time
        kind: time
  - name: incomplete
    fields:
      - name: x
        kind: string
`

func TestReadCatalog(t *testing.T) {
	reg := NewRegistry()
	if err := ReadCatalog(strings.NewReader(testCatalog), reg); err != nil {
		t.Fatal(err)
	}

	// the entry without a circuit is skipped
	if got := reg.Len(); got != 3 {
		t.Fatalf("Wanted 3 messages, got %d", got)
	}

	m := reg.Find("hwc", "temp", "", false, false)
	if m == nil {
		t.Fatal("Wanted hwc/temp")
	}
	if m.Created.IsZero() {
		t.Error("Wanted creation time stamped")
	}
	if len(m.Fields) != 1 || m.Fields[0].Kind != KindNumber {
		t.Errorf("Wanted one number field, got %v", m.Fields)
	}
	if m.Fields[0].Unit != "°C" {
		t.Errorf("Wanted °C, got %s", m.Fields[0].Unit)
	}

	m = reg.Find("broadcast", "datetime", "", false, true)
	if m == nil || !m.Passive {
		t.Fatal("Wanted passive broadcast/datetime")
	}
	if m.Fields[0].Kind != KindDate || m.Fields[1].Kind != KindTime {
		t.Errorf("Wanted date and time kinds, got %v", m.Fields)
	}
}

func TestReadCatalogInvalid(t *testing.T) {
	reg := NewRegistry()
	if err := ReadCatalog(strings.NewReader("messages: [\n"), reg); err == nil {
		t.Fatal("Wanted decode error")
	}

	if err := ReadCatalog(strings.NewReader("messages:\n  - circuit: x\n    name: y\n    fields:\n      - name: f\n        kind: bogus\n"), reg); err == nil {
		t.Fatal("Wanted unknown kind error")
	}
}
