package core

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half away from zero
		{"12,345", 1235, true},
		{" 2.50 ", 250, true},
		{"-1", -100, true},
		{"0", 0, true},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got.Cents != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got.Cents, err)
			}
		} else if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%q expected ErrInvalidAmount, got %v", tc.in, err)
		}
	}
}

func TestMoneyJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		A Money  `json:"a"`
		B *Money `json:"b"`
	}{A: Cents(123450)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"a":1234.50,"b":null}` {
		t.Fatalf("unexpected json %s", b)
	}

	var in struct {
		A Money  `json:"a"`
		B Money  `json:"b"`
		C *Money `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a":12.345,"b":"7.5","c":null}`), &in); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if in.A.Cents != 1235 || in.B.Cents != 750 || in.C != nil {
		t.Fatalf("unexpected decode %+v", in)
	}

	if err := json.Unmarshal([]byte(`{"a":"ten"}`), &in); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestMoneyHelpers(t *testing.T) {
	if got := Sum(Cents(100), Cents(-30), Cents(5)); got.Cents != 75 {
		t.Errorf("Sum = %d, want 75", got.Cents)
	}
	if got := Max(Cents(-1), Money{}); got.Cents != 0 {
		t.Errorf("Max = %d, want 0", got.Cents)
	}
	if got := Cents(-250).Abs(); got.Cents != 250 {
		t.Errorf("Abs = %d, want 250", got.Cents)
	}
	if got := Cents(-250).String(); got != "-2.50" {
		t.Errorf("String = %q, want -2.50", got)
	}
}
