package persistence

import (
	"math"
	"testing"
)

func TestFormatVector_RoundTrip(t *testing.T) {
	in := []float32{0.25, -1, 3.5, 0}
	literal := formatVector(in)
	if literal != "[0.25,-1,3.5,0]" {
		t.Errorf("Expected [0.25,-1,3.5,0], got %s", literal)
	}

	out, err := parseVector(literal)
	if err != nil {
		t.Fatalf("parseVector failed: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("Expected %d components, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("Component %d: expected %v, got %v", i, in[i], out[i])
		}
	}
}

func TestParseVector_Malformed(t *testing.T) {
	cases := []string{"", "1,2,3", "[1,2", "[1,x,3]"}
	for _, c := range cases {
		if _, err := parseVector(c); err == nil {
			t.Errorf("Expected error for %q, got nil", c)
		}
	}
}

func TestSimhashRoundTrip(t *testing.T) {
	values := []uint64{0, 1, math.MaxUint64, 0x8000000000000000, 0xDEADBEEFCAFEBABE}
	for _, v := range values {
		if got := simhashFromDB(simhashToDB(v)); got != v {
			t.Errorf("Expected %d to survive the round trip, got %d", v, got)
		}
	}
}

func TestHashBytesRoundTrip(t *testing.T) {
	values := []uint64{0, 42, math.MaxUint64}
	for _, v := range values {
		b := hashToBytes(v)
		if len(b) != 8 {
			t.Fatalf("Expected 8 bytes, got %d", len(b))
		}
		if got := hashFromBytes(b); got != v {
			t.Errorf("Expected %d, got %d", v, got)
		}
	}
	if got := hashFromBytes(nil); got != 0 {
		t.Errorf("Expected 0 for nil bytes, got %d", got)
	}
}

func TestLoadMigrations_Ordered(t *testing.T) {
	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations failed: %v", err)
	}
	if len(migrations) < 4 {
		t.Fatalf("Expected at least 4 migrations, got %d", len(migrations))
	}
	for i := 1; i < len(migrations); i++ {
		if migrations[i].Version <= migrations[i-1].Version {
			t.Errorf("Migrations out of order: %d before %d",
				migrations[i-1].Version, migrations[i].Version)
		}
	}
	if migrations[0].Version != 1 {
		t.Errorf("Expected first migration version 1, got %d", migrations[0].Version)
	}
}
