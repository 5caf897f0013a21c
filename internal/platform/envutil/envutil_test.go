package envutil

import "testing"

func TestIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("ENVUTIL_TEST_INT", "abc")
	if got := Int("ENVUTIL_TEST_INT", 7); got != 7 {
		t.Fatalf("Int: want=7 got=%d", got)
	}
	t.Setenv("ENVUTIL_TEST_INT", " 12 ")
	if got := Int("ENVUTIL_TEST_INT", 7); got != 12 {
		t.Fatalf("Int: want=12 got=%d", got)
	}
}

func TestPositiveInt(t *testing.T) {
	t.Setenv("ENVUTIL_TEST_POS", "0")
	if got := PositiveInt("ENVUTIL_TEST_POS", 4); got != 4 {
		t.Fatalf("PositiveInt: want=4 got=%d", got)
	}
	t.Setenv("ENVUTIL_TEST_POS", "-3")
	if got := PositiveInt("ENVUTIL_TEST_POS", 4); got != 4 {
		t.Fatalf("PositiveInt: want=4 got=%d", got)
	}
}

func TestBool(t *testing.T) {
	t.Setenv("ENVUTIL_TEST_BOOL", "on")
	if !Bool("ENVUTIL_TEST_BOOL", false) {
		t.Fatalf("Bool: want=true")
	}
	t.Setenv("ENVUTIL_TEST_BOOL", "maybe")
	if Bool("ENVUTIL_TEST_BOOL", false) {
		t.Fatalf("Bool: want default false for unknown value")
	}
}

func TestStringAndFloat(t *testing.T) {
	t.Setenv("ENVUTIL_TEST_STR", "  ")
	if got := String("ENVUTIL_TEST_STR", "dflt"); got != "dflt" {
		t.Fatalf("String: want=dflt got=%q", got)
	}
	t.Setenv("ENVUTIL_TEST_FLOAT", "0.25")
	if got := Float("ENVUTIL_TEST_FLOAT", 1); got != 0.25 {
		t.Fatalf("Float: want=0.25 got=%v", got)
	}
}
