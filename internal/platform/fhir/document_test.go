package fhir

import (
	"encoding/json"
	"testing"
)

func TestObject_MarshalKeepsOrder(t *testing.T) {
	o := Object{
		{Key: "resourceType", Value: "Patient"},
		{Key: "id", Value: "7"},
		{Key: "active", Value: true},
		{Key: "name", Value: []Object{{{Key: "family", Value: "Durand"}}}},
	}

	data, err := json.Marshal(o)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"resourceType":"Patient","id":"7","active":true,"name":[{"family":"Durand"}]}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestObject_MarshalNumber(t *testing.T) {
	o := Object{{Key: "valueDecimal", Value: json.Number("48.8566")}}
	data, err := json.Marshal(o)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"valueDecimal":48.8566}` {
		t.Errorf("unexpected JSON: %s", data)
	}
}

func TestObject_Set(t *testing.T) {
	var o Object
	o = o.Set("a", 1)
	o = o.Set("b", 2)
	o = o.Set("a", 3)

	data, err := json.Marshal(o)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"a":3,"b":2}` {
		t.Errorf("unexpected JSON: %s", data)
	}
}

func TestPrune_RemovesNullsRecursively(t *testing.T) {
	o := Object{
		{Key: "resourceType", Value: "Patient"},
		{Key: "maritalStatus", Value: nil},
		{Key: "name", Value: []Object{{
			{Key: "family", Value: "Durand"},
			{Key: "maiden", Value: nil},
		}}},
		{Key: "meta", Value: Object{{Key: "versionId", Value: "1"}, {Key: "source", Value: nil}}},
		{Key: "misc", Value: []any{nil, "x"}},
	}

	got := Prune(o)
	data, _ := json.Marshal(got)
	want := `{"resourceType":"Patient","name":[{"family":"Durand"}],"meta":{"versionId":"1"},"misc":["x"]}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestPrune_DropsOnlyNamedEmptyLists(t *testing.T) {
	o := Object{
		{Key: "telecom", Value: []Object{}},
		{Key: "address", Value: []Object{}},
		{Key: "extension", Value: []any{}},
		{Key: "name", Value: []Object{{{Key: "given", Value: []string{}}}}},
	}

	got := Prune(o, "address", "extension")
	data, _ := json.Marshal(got)
	want := `{"telecom":[],"name":[{"given":[]}]}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestPrune_NestedEmptyListWithTopLevelName(t *testing.T) {
	// only top-level keys are dropped, even if a nested key has the same name
	o := Object{
		{Key: "address", Value: []Object{{{Key: "extension", Value: []Object{}}}}},
	}
	got := Prune(o, "address", "extension")
	data, _ := json.Marshal(got)
	if string(data) != `{"address":[{"extension":[]}]}` {
		t.Errorf("unexpected JSON: %s", data)
	}
}
