package patient

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func TestDirectory_PreservesKeyOrder(t *testing.T) {
	raw := `{
	  "P003": {"name":"C","city":"X","age":30,"gender":"male","height":1.7,"weight":70},
	  "P001": {"name":"A","city":"Y","age":31,"gender":"female","height":1.6,"weight":50},
	  "P002": {"name":"B","city":"Z","age":32,"gender":"others","height":1.8,"weight":90}
	}`
	var dir Directory
	if err := json.Unmarshal([]byte(raw), &dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dir) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(dir))
	}
	for i, want := range []string{"P003", "P001", "P002"} {
		if dir[i].ID != want {
			t.Errorf("entry %d: expected %s, got %s", i, want, dir[i].ID)
		}
	}

	out, err := json.Marshal(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := string(out)
	if !(strings.Index(s, `"P003"`) < strings.Index(s, `"P001"`) && strings.Index(s, `"P001"`) < strings.Index(s, `"P002"`)) {
		t.Errorf("key order not preserved: %s", s)
	}
	if strings.Contains(s, `"id"`) {
		t.Errorf("id must not appear inside values: %s", s)
	}
}

func TestDirectory_DerivesOnDecode(t *testing.T) {
	raw := `{"P001": {"name":"A","city":"Y","age":31,"gender":"female","height":1.75,"weight":70,"bmi":1,"verdict":"Obese"}}`
	var dir Directory
	if err := json.Unmarshal([]byte(raw), &dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dir[0].Patient.BMI != 22.86 || dir[0].Patient.Verdict != VerdictNormal {
		t.Errorf("expected recomputed bmi/verdict, got %v %s", dir[0].Patient.BMI, dir[0].Patient.Verdict)
	}
}

func TestDirectory_RejectsNonObject(t *testing.T) {
	var dir Directory
	if err := json.Unmarshal([]byte(`[1,2,3]`), &dir); err == nil {
		t.Error("expected error for array input")
	}
}

func TestDirectory_EmptyMarshalsAsObject(t *testing.T) {
	out, err := json.Marshal(Directory{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != "{}" {
		t.Errorf("expected {}, got %s", out)
	}
}

func TestDirectory_RepeatedKeyKeepsFirstPositionLastValue(t *testing.T) {
	raw := `{
	  "P001": {"name":"A","city":"Y","age":31,"gender":"female","height":1.6,"weight":50},
	  "P002": {"name":"B","city":"Z","age":32,"gender":"others","height":1.8,"weight":90},
	  "P001": {"name":"A2","city":"Y","age":40,"gender":"female","height":1.6,"weight":64}
	}`
	var dir Directory
	if err := json.Unmarshal([]byte(raw), &dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dir) != 2 || dir[0].ID != "P001" || dir[1].ID != "P002" {
		t.Fatalf("unexpected entries: %+v", dir)
	}
	if p := dir[0].Patient; p.Name != "A2" || p.Age != 40 || p.BMI != 25 {
		t.Errorf("expected last value for P001, got %+v", p)
	}
}

func TestDirectory_DecodesLargeObject(t *testing.T) {
	const n = 20000
	var b strings.Builder
	b.WriteByte('{')
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, `"P%05d":{"name":"N","city":"C","age":30,"gender":"male","height":1.7,"weight":65}`, n-1-i)
	}
	// one repeat at the end updates the first entry in place
	fmt.Fprintf(&b, `,"P%05d":{"name":"Last","city":"C","age":30,"gender":"male","height":1.7,"weight":65}`, n-1)
	b.WriteByte('}')

	var dir Directory
	if err := json.Unmarshal([]byte(b.String()), &dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dir) != n {
		t.Fatalf("expected %d entries, got %d", n, len(dir))
	}
	if dir[0].ID != fmt.Sprintf("P%05d", n-1) || dir[0].Patient.Name != "Last" {
		t.Errorf("unexpected first entry: %+v", dir[0])
	}
	if dir[n-1].ID != "P00000" {
		t.Errorf("unexpected last entry: %s", dir[n-1].ID)
	}
}
