package env

import (
	"testing"
	"time"
)

func TestString(t *testing.T) {
	if got := String("ENV_STRING_DOES_NOT_EXIST", "fallback"); got != "fallback" {
		t.Fatalf("String()=%q, want fallback", got)
	}
	t.Setenv("ENV_STRING_KEY", "value")
	if got := String("ENV_STRING_KEY", "fallback"); got != "value" {
		t.Fatalf("String()=%q, want value", got)
	}
}

func TestDuration(t *testing.T) {
	got, err := Duration("ENV_DURATION_DOES_NOT_EXIST", 5*time.Second)
	if err != nil {
		t.Fatalf("Duration() err=%v", err)
	}
	if got != 5*time.Second {
		t.Fatalf("Duration()=%v, want 5s", got)
	}

	t.Setenv("ENV_DURATION_KEY", "250ms")
	got, err = Duration("ENV_DURATION_KEY", 5*time.Second)
	if err != nil {
		t.Fatalf("Duration() err=%v", err)
	}
	if got != 250*time.Millisecond {
		t.Fatalf("Duration()=%v, want 250ms", got)
	}

	t.Setenv("ENV_DURATION_KEY_INVALID", "not-a-duration")
	if _, err := Duration("ENV_DURATION_KEY_INVALID", 5*time.Second); err == nil {
		t.Fatalf("Duration() expected error")
	}
}

func TestBool(t *testing.T) {
	got, err := Bool("ENV_BOOL_DOES_NOT_EXIST", true)
	if err != nil {
		t.Fatalf("Bool() err=%v", err)
	}
	if got != true {
		t.Fatalf("Bool()=%v, want true", got)
	}

	t.Setenv("ENV_BOOL_KEY", "false")
	got, err = Bool("ENV_BOOL_KEY", true)
	if err != nil {
		t.Fatalf("Bool() err=%v", err)
	}
	if got != false {
		t.Fatalf("Bool()=%v, want false", got)
	}

	t.Setenv("ENV_BOOL_KEY_INVALID", "nope")
	if _, err := Bool("ENV_BOOL_KEY_INVALID", false); err == nil {
		t.Fatalf("Bool() expected error")
	}
}

func TestInt(t *testing.T) {
	got, err := Int("ENV_INT_DOES_NOT_EXIST", 42)
	if err != nil {
		t.Fatalf("Int() err=%v", err)
	}
	if got != 42 {
		t.Fatalf("Int()=%v, want 42", got)
	}

	t.Setenv("ENV_INT_KEY", "7")
	got, err = Int("ENV_INT_KEY", 42)
	if err != nil {
		t.Fatalf("Int() err=%v", err)
	}
	if got != 7 {
		t.Fatalf("Int()=%v, want 7", got)
	}

	t.Setenv("ENV_INT_KEY_INVALID", "nope")
	if _, err := Int("ENV_INT_KEY_INVALID", 42); err == nil {
		t.Fatalf("Int() expected error")
	}
}

func TestCSV(t *testing.T) {
	got := CSV("ENV_CSV_DOES_NOT_EXIST", "openid,profile,email")
	if len(got) != 3 || got[0] != "openid" || got[2] != "email" {
		t.Fatalf("CSV()=%v", got)
	}

	t.Setenv("ENV_CSV_KEY", " a ,, b ")
	got = CSV("ENV_CSV_KEY", "")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("CSV()=%v, want [a b]", got)
	}
}
