package store

import (
	"errors"
	"reflect"
	"testing"
)

func TestMemoryStore(t *testing.T) {
	initial := map[string]string{"ro.build.type": "user"}
	s := NewMemoryStore(initial)
	initial["ro.build.type"] = "changed"

	if v, ok, err := s.Get("ro.build.type"); err != nil || !ok || v != "user" {
		t.Fatalf("Get = %q, %v, %v; initial map must be copied", v, ok, err)
	}
	if _, ok, _ := s.Get("missing"); ok {
		t.Fatal("missing key reported present")
	}

	if err := s.Set("persist.sys.b", "2"); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("persist.sys.a", ""); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(" ", "x"); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("expect ErrEmptyKey, got %v", err)
	}

	keys, _ := s.Keys()
	want := []string{"persist.sys.a", "persist.sys.b", "ro.build.type"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("Keys = %v, want %v", keys, want)
	}
}

func TestPropertiesTypedAccess(t *testing.T) {
	p := NewProperties(NewMemoryStore(map[string]string{
		"dec":      "42",
		"neg":      "-7",
		"hex":      "0x1f",
		"oct":      "017",
		"padded":   " 12 ",
		"big":      "3000000000",
		"word":     "many",
		"empty":    "",
		"yes":      "YES",
		"on":       "on",
		"zero":     "0",
		"off":      "Off",
		"maybe":    "maybe",
		"long":     "9000000000",
		"longhex":  "0x7fffffffffffffff",
		"overflow": "0x8000000000000000",
	}))

	ints := []struct {
		key  string
		def  int32
		want int32
	}{
		{"dec", -1, 42},
		{"neg", -1, -7},
		{"hex", -1, 31},
		{"oct", -1, 15},
		{"padded", -1, 12},
		{"big", -1, -1},
		{"word", 5, 5},
		{"empty", 5, 5},
		{"missing", -1, -1},
	}
	for _, tt := range ints {
		if got := p.GetInt32(tt.key, tt.def); got != tt.want {
			t.Errorf("GetInt32(%q, %d) = %d, want %d", tt.key, tt.def, got, tt.want)
		}
	}

	if got := p.GetInt64("long", -1); got != 9000000000 {
		t.Errorf("GetInt64(long) = %d", got)
	}
	if got := p.GetInt64("longhex", -1); got != 1<<63-1 {
		t.Errorf("GetInt64(longhex) = %d", got)
	}
	if got := p.GetInt64("overflow", -1); got != -1 {
		t.Errorf("GetInt64(overflow) = %d, want default", got)
	}

	bools := []struct {
		key  string
		def  bool
		want bool
	}{
		{"yes", false, true},
		{"on", false, true},
		{"zero", true, false},
		{"off", true, false},
		{"maybe", true, true},
		{"maybe", false, false},
		{"missing", true, true},
	}
	for _, tt := range bools {
		if got := p.GetBool(tt.key, tt.def); got != tt.want {
			t.Errorf("GetBool(%q, %v) = %v, want %v", tt.key, tt.def, got, tt.want)
		}
	}

	if got := p.GetString("missing", "fallback"); got != "fallback" {
		t.Errorf("GetString(missing) = %q", got)
	}
	if got := p.GetString("empty", "fallback"); got != "" {
		t.Errorf("an empty value is still a value, got %q", got)
	}
}

type brokenStore struct{}

func (brokenStore) Get(string) (string, bool, error) { return "", false, errors.New("down") }
func (brokenStore) Set(string, string) error          { return errors.New("down") }
func (brokenStore) Keys() ([]string, error)           { return nil, errors.New("down") }

func TestPropertiesStoreErrorIsMissing(t *testing.T) {
	p := NewProperties(brokenStore{})
	if _, ok := p.Get("k"); ok {
		t.Fatal("store error reported as present")
	}
	if got := p.GetInt32("k", 9); got != 9 {
		t.Fatalf("GetInt32 = %d, want default", got)
	}
}
