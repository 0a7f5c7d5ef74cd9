package embeddings

import (
	"errors"
	"math"
	"testing"
)

func TestNormalizeL2(t *testing.T) {
	t.Run("unit vector unchanged", func(t *testing.T) {
		v := []float32{1, 0, 0}
		if err := NormalizeL2(v); err != nil {
			t.Fatalf("NormalizeL2() error = %v", err)
		}

		if v[0] != 1 || v[1] != 0 || v[2] != 0 {
			t.Errorf("unit vector changed: got %v", v)
		}
	})

	t.Run("normalizes to unit length", func(t *testing.T) {
		vec := []float32{3, 4}
		if err := NormalizeL2(vec); err != nil {
			t.Fatalf("NormalizeL2() error = %v", err)
		}

		const tol = 1e-6
		if math.Abs(float64(vec[0])-0.6) > tol || math.Abs(float64(vec[1])-0.8) > tol {
			t.Errorf("expected (0.6, 0.8), got (%f, %f)", vec[0], vec[1])
		}

		if math.Abs(Norm(vec)-1) > tol {
			t.Errorf("magnitude should be 1, got %f", Norm(vec))
		}
	})

	t.Run("zero vector is rejected and left unchanged", func(t *testing.T) {
		v := []float32{0, 0, 0}

		err := NormalizeL2(v)
		if !errors.Is(err, ErrZeroVector) {
			t.Fatalf("NormalizeL2() error = %v, want ErrZeroVector", err)
		}

		if v[0] != 0 || v[1] != 0 || v[2] != 0 {
			t.Errorf("zero vector should remain unchanged: got %v", v)
		}
	})

	t.Run("empty vector is rejected", func(t *testing.T) {
		if err := NormalizeL2(nil); !errors.Is(err, ErrZeroVector) {
			t.Errorf("NormalizeL2(nil) error = %v, want ErrZeroVector", err)
		}
	})

	t.Run("normalizing twice is stable", func(t *testing.T) {
		vec := []float32{0.2, -0.7, 1.3, 4}
		if err := NormalizeL2(vec); err != nil {
			t.Fatal(err)
		}

		once := append([]float32(nil), vec...)
		if err := NormalizeL2(vec); err != nil {
			t.Fatal(err)
		}

		for i := range vec {
			if math.Abs(float64(vec[i]-once[i])) > 1e-6 {
				t.Errorf("vec[%d] = %f after second pass, want %f", i, vec[i], once[i])
			}
		}
	})
}

func TestIsUnit(t *testing.T) {
	tests := []struct {
		name string
		vec  []float32
		want bool
	}{
		{"unit axis", []float32{0, 1, 0}, true},
		{"within tolerance", []float32{0.6, 0.80004}, true},
		{"too long", []float32{0.6, 0.9}, false},
		{"zero", []float32{0, 0}, false},
		{"empty", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUnit(tt.vec); got != tt.want {
				t.Errorf("IsUnit(%v) = %v, want %v", tt.vec, got, tt.want)
			}
		})
	}
}
