package params

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestKindFromName(t *testing.T) {
	for name, want := range map[string]Kind{
		"bool":  KindBool,
		"int":   KindInt,
		"float": KindFloat,
		"str":   KindString,
	} {
		got, err := KindFromName(name)
		if err != nil || got != want {
			t.Fatalf("KindFromName(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := KindFromName("decimal"); err == nil {
		t.Fatal("unknown type name accepted")
	}
}

func TestCoerce(t *testing.T) {
	cases := []struct {
		name    string
		kind    Kind
		raw     any
		want    Scalar
		wantErr string
	}{
		{name: "int from int", kind: KindInt, raw: 3, want: Int(3)},
		{name: "int from integral float", kind: KindInt, raw: 3.0, want: Int(3)},
		{name: "int from integral number", kind: KindInt, raw: json.Number("3"), want: Int(3)},
		{name: "int rejects fraction", kind: KindInt, raw: json.Number("3.6"), wantErr: "cannot use 3.6 as int"},
		{name: "int rejects fractional float", kind: KindInt, raw: 3.6, wantErr: "as int"},
		{name: "int rejects string", kind: KindInt, raw: "3", wantErr: `cannot use "3" as int`},
		{name: "float from int promotes", kind: KindFloat, raw: 4, want: Float(4)},
		{name: "float from number", kind: KindFloat, raw: json.Number("0.5"), want: Float(0.5)},
		{name: "float rejects list", kind: KindFloat, raw: []any{0.5}, wantErr: "cannot use a list as float"},
		{name: "float rejects mapping", kind: KindFloat, raw: map[string]any{}, wantErr: "cannot use a mapping as float"},
		{name: "bool from bool", kind: KindBool, raw: true, want: Bool(true)},
		{name: "bool rejects number", kind: KindBool, raw: json.Number("4.9"), wantErr: "cannot use 4.9 as bool"},
		{name: "str from string", kind: KindString, raw: "linear", want: Str("linear")},
		{name: "str rejects number", kind: KindString, raw: json.Number("9"), wantErr: "cannot use 9 as str"},
		{name: "str rejects null", kind: KindString, raw: nil, wantErr: "cannot use null as str"},
		{name: "scalar passthrough", kind: KindFloat, raw: Float(1.5), want: Float(1.5)},
		{name: "scalar int promotes to float", kind: KindFloat, raw: Int(2), want: Float(2)},
		{name: "scalar kind mismatch", kind: KindInt, raw: Str("x"), wantErr: "as int"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := coerce(tc.kind, tc.raw)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("coerce error = %v, want %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("coerce: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("coerce = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestScalarAccessors(t *testing.T) {
	if got := Int(7).Float(); got != 7 {
		t.Fatalf("Int.Float = %v", got)
	}
	if got := Float(1.5).Int(); got != 1 {
		t.Fatalf("Float.Int = %v", got)
	}
	if Str("x").IsNumeric() || Bool(true).IsNumeric() {
		t.Fatal("non-numeric kinds reported numeric")
	}
	if !Int(1).IsNumeric() || !Float(1).IsNumeric() {
		t.Fatal("numeric kinds reported non-numeric")
	}
	if got := Str("abc").Text(); got != "abc" {
		t.Fatalf("Text = %q", got)
	}
	if got := Int(3).Text(); got != "" {
		t.Fatalf("Text on int = %q", got)
	}
}

func TestScalarStringAndInterface(t *testing.T) {
	cases := []struct {
		value Scalar
		text  string
		plain any
	}{
		{Bool(true), "true", true},
		{Int(42), "42", int64(42)},
		{Float(0.5), "0.5", 0.5},
		{Float(2), "2", 2.0},
		{Str("joint"), "joint", "joint"},
	}
	for _, tc := range cases {
		if got := tc.value.String(); got != tc.text {
			t.Fatalf("String(%v) = %q, want %q", tc.plain, got, tc.text)
		}
		if got := tc.value.Interface(); got != tc.plain {
			t.Fatalf("Interface(%v) = %v (%T)", tc.text, got, got)
		}
	}
}

func TestScalarEqualAndLess(t *testing.T) {
	if Int(2).Equal(Float(2)) {
		t.Fatal("cross-kind values compared equal")
	}
	if !Int(2).Equal(Int(2)) || !Str("a").Equal(Str("a")) {
		t.Fatal("same values compared unequal")
	}
	if !Int(1).less(Int(2)) || Int(2).less(Int(1)) {
		t.Fatal("int ordering broken")
	}
	if !Str("a").less(Str("b")) {
		t.Fatal("string ordering broken")
	}
	if !Bool(false).less(Bool(true)) {
		t.Fatal("bool ordering broken")
	}
}
