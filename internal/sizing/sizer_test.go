package sizing

import (
	"math"
	"strings"
	"testing"
)

func TestSizeOK(t *testing.T) {
	s := NewSizer()
	// 800 tokens / 4000 宽度 = 0.2 张，正好在步进上
	res, err := s.Size(800, 100000, 104000)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if math.Abs(res.Rounded-0.2) > 1e-9 {
		t.Fatalf("rounded = %.4f, want 0.2", res.Rounded)
	}
}

func TestSizeBelowMinimum(t *testing.T) {
	s := NewSizer()
	_, err := s.Size(100, 100000, 104000) // 0.025 张 → 取整为 0
	if err == nil || !strings.Contains(err.Error(), "below exchange minimum") {
		t.Fatalf("expected minimum error, got %v", err)
	}
}

func TestSizeRoundingTolerance(t *testing.T) {
	s := NewSizer()
	// 0.55 张取整到 0.6（偏差 ~9%）应通过
	if _, err := s.Size(2200, 100000, 104000); err != nil {
		t.Fatalf("9%% deviation should pass: %v", err)
	}
	// 0.14 张取整到 0.1（偏差 ~28.6%）应拒绝
	_, err := s.Size(560, 100000, 104000)
	if err == nil || !strings.Contains(err.Error(), "deviation") {
		t.Fatalf("expected deviation error, got %v", err)
	}
}

func TestSizeBadInputs(t *testing.T) {
	s := NewSizer()
	if _, err := s.Size(0, 100000, 104000); err == nil {
		t.Fatal("expected error for zero tokens")
	}
	if _, err := s.Size(800, 104000, 100000); err == nil {
		t.Fatal("expected error for inverted strikes")
	}
}
