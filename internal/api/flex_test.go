package api_test

import (
	"encoding/json"
	"testing"

	"shapelearner/internal/api"
)

func TestFlexIntDecoding(t *testing.T) {
	cases := map[string]int64{
		`12`:    12,
		`"12"`:  12,
		`" 7 "`: 7,
		`""`:    0,
		`null`:  0,
		`"-4"`:  -4,
	}
	for input, want := range cases {
		var v api.FlexInt
		if err := json.Unmarshal([]byte(input), &v); err != nil {
			t.Errorf("%s: unexpected error %v", input, err)
			continue
		}
		if int64(v) != want {
			t.Errorf("%s: expected %d, got %d", input, want, v)
		}
	}
	for _, input := range []string{`"1.5"`, `true`, `"port"`} {
		var v api.FlexInt
		if err := json.Unmarshal([]byte(input), &v); err == nil {
			t.Errorf("%s: expected error", input)
		}
	}
}

func TestFlexIntEncodesAsNumber(t *testing.T) {
	payload, err := json.Marshal(struct {
		Port api.FlexInt `json:"port"`
	}{Port: 8080})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(payload) != `{"port":8080}` {
		t.Fatalf("unexpected payload %s", payload)
	}
}
