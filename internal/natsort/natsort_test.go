package natsort

import (
	"slices"
	"testing"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"page2.jpg", "page10.jpg", -1},
		{"page10.jpg", "page2.jpg", 1},
		{"IMG_001.png", "img_002.png", -1},
		{"007", "7", -1}, // equal by value, tie broken by bytes
		{"7", "7", 0},
		{"a", "a1", -1},
		{"x/2.png", "x/11.png", -1},
		{"12345678901234567890", "12345678901234567891", -1},
		{"Chapter", "chapter", -1},
	}
	for _, tt := range tests {
		if got := Compare(tt.a, tt.b); got != tt.want {
			t.Errorf("Compare(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
		if got := Compare(tt.b, tt.a); got != -tt.want {
			t.Errorf("Compare(%q, %q) = %d, want %d", tt.b, tt.a, got, -tt.want)
		}
	}
}

func TestSort(t *testing.T) {
	names := []string{"page10.jpg", "page2.jpg", "Page1.jpg", "page1a.jpg", "cover.jpg"}
	Sort(names)
	want := []string{"cover.jpg", "Page1.jpg", "page1a.jpg", "page2.jpg", "page10.jpg"}
	if !slices.Equal(names, want) {
		t.Fatalf("Sort = %v, want %v", names, want)
	}
}

func TestSortIsDeterministic(t *testing.T) {
	a := []string{"b01", "B1", "b1", "b001"}
	b := []string{"b1", "b001", "B1", "b01"}
	Sort(a)
	Sort(b)
	if !slices.Equal(a, b) {
		t.Fatalf("order depends on input order: %v vs %v", a, b)
	}
}
