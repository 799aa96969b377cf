package value

import (
	"encoding/json"
	"testing"
)

func TestJSONRoundTripPreservesIntFloatDistinction(t *testing.T) {
	cases := []Value{
		Int(3),
		Float(3.0),
		Float(3.5),
		Null(),
		Bool(true),
		String("x"),
		Seq([]Value{Int(1), Float(1.0), String("y")}),
		Map(map[string]Value{"i": Int(2), "f": Float(2.0)}),
	}

	for _, in := range cases {
		data, err := json.Marshal(in)
		if err != nil {
			t.Fatalf("Marshal(%+v): %v", in, err)
		}
		var out Value
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("Unmarshal(%s): %v", data, err)
		}
		if !Equal(in, out) {
			t.Fatalf("round trip of %+v through %s produced %+v", in, data, out)
		}
	}
}

func TestMarshalFloatKeepsDecimalPointOnIntegralValue(t *testing.T) {
	data, err := json.Marshal(Float(3.0))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != "3.0" {
		t.Fatalf("expected literal \"3.0\", got %q", data)
	}
}
