package value

import "testing"

func TestFromAnyDistinguishesIntFromFloat(t *testing.T) {
	iv, err := FromAny(float64(1))
	if err != nil {
		t.Fatalf("FromAny(1): %v", err)
	}
	if iv.Kind != KindInt || iv.Int != 1 {
		t.Fatalf("expected int 1, got %+v", iv)
	}

	fv, err := FromAny(1.5)
	if err != nil {
		t.Fatalf("FromAny(1.5): %v", err)
	}
	if fv.Kind != KindFloat || fv.Float != 1.5 {
		t.Fatalf("expected float 1.5, got %+v", fv)
	}
}

func TestFromAnyRoundTripsNestedStructures(t *testing.T) {
	in := map[string]any{
		"b": true,
		"a": []any{float64(1), "x", nil},
	}
	v, err := FromAny(in)
	if err != nil {
		t.Fatalf("FromAny: %v", err)
	}
	out := v.ToAny()
	m, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("expected map, got %T", out)
	}
	if m["b"] != true {
		t.Fatalf("expected b=true, got %v", m["b"])
	}
	seq, ok := m["a"].([]any)
	if !ok || len(seq) != 3 {
		t.Fatalf("expected 3-element seq, got %v", m["a"])
	}
}

func TestEqualDistinguishesMapKeyOrderIndependently(t *testing.T) {
	a := Map(map[string]Value{"x": Int(1), "y": String("z")})
	b := Map(map[string]Value{"y": String("z"), "x": Int(1)})
	if !Equal(a, b) {
		t.Fatalf("expected maps with same entries in different Go map construction order to be equal")
	}
}

func TestEqualRejectsIntFloatCoercion(t *testing.T) {
	if Equal(Int(1), Float(1.0)) {
		t.Fatalf("int 1 and float 1.0 must not be Equal")
	}
}
