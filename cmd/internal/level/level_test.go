package level

import "testing"

func TestFor_Boundaries(t *testing.T) {
	cases := []struct {
		points int
		number int
		name   string
	}{
		{0, 1, "Iniciante"},
		{99, 1, "Iniciante"},
		{100, 2, "Bronze"},
		{299, 2, "Bronze"},
		{300, 3, "Prata"},
		{599, 3, "Prata"},
		{600, 4, "Ouro"},
		{999, 4, "Ouro"},
		{1000, 5, "Diamante"},
		{1_000_000, 5, "Diamante"},
	}
	for _, c := range cases {
		lvl, err := For(c.points)
		if err != nil {
			t.Fatalf("For(%d): %v", c.points, err)
		}
		if lvl.Number != c.number || lvl.Name != c.name {
			t.Fatalf("For(%d) = %+v, want %d/%s", c.points, lvl, c.number, c.name)
		}
	}
}

func TestFor_NegativeInput(t *testing.T) {
	if _, err := For(-1); err != ErrInvalidInput {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := Progress(-1); err != ErrInvalidInput {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, _, err := PointsToNext(-1); err != ErrInvalidInput {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestFor_Monotonic(t *testing.T) {
	prev := 0
	for p := 0; p <= 1500; p++ {
		lvl, err := For(p)
		if err != nil {
			t.Fatalf("For(%d): %v", p, err)
		}
		if lvl.Number < prev {
			t.Fatalf("level dropped at %d points: %d < %d", p, lvl.Number, prev)
		}
		prev = lvl.Number
	}
}

func TestProgress_Bounds(t *testing.T) {
	for p := 0; p <= 1500; p++ {
		pct, err := Progress(p)
		if err != nil {
			t.Fatalf("Progress(%d): %v", p, err)
		}
		if pct < 0 || pct > 100 {
			t.Fatalf("Progress(%d) = %d out of bounds", p, pct)
		}
	}
	for _, p := range []int{1000, 5000, 1 << 30} {
		pct, err := Progress(p)
		if err != nil {
			t.Fatalf("Progress(%d): %v", p, err)
		}
		if pct != 100 {
			t.Fatalf("Progress(%d) = %d, want 100 for top tier", p, pct)
		}
	}
}

func TestPointsToNext(t *testing.T) {
	missing, ok, err := PointsToNext(95)
	if err != nil || !ok {
		t.Fatalf("PointsToNext(95): ok=%v err=%v", ok, err)
	}
	if missing != 5 {
		t.Fatalf("PointsToNext(95) = %d, want 5", missing)
	}

	missing, ok, err = PointsToNext(99)
	if err != nil || !ok || missing != 1 {
		t.Fatalf("PointsToNext(99) = %d/%v/%v, want 1", missing, ok, err)
	}

	_, ok, err = PointsToNext(1000)
	if err != nil {
		t.Fatalf("PointsToNext(1000): %v", err)
	}
	if ok {
		t.Fatalf("expected no next tier at the top")
	}
}
