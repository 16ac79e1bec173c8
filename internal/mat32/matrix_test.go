package mat32

import (
	"math/rand"
	"testing"
)

func TestIndexingBothOrders(t *testing.T) {
	for _, order := range []Order{ColMajor, RowMajor} {
		m := New(2, 3).ToOrder(order)
		m.Set(1, 2, 7)

		if got := m.At(1, 2); got != 7 {
			t.Errorf("%v: At(1,2) = %v, want 7", order, got)
		}
		if got := m.At(0, 0); got != 0 {
			t.Errorf("%v: At(0,0) = %v, want 0", order, got)
		}
	}
}

func TestViewSharesMemory(t *testing.T) {
	data := []float32{1, 2, 3, 4}
	m, err := View(data, 2, 2, ColMajor)
	if err != nil {
		t.Fatal(err)
	}

	m.Set(0, 0, 9)
	if data[0] != 9 {
		t.Error("View should alias the caller's slice")
	}

	if _, err := View(data, 3, 2, ColMajor); err == nil {
		t.Error("View with too small a slice should fail")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	m := New(2, 2)
	m.Set(0, 0, 1)

	c := m.Clone()
	c.Set(0, 0, 5)

	if m.At(0, 0) != 1 {
		t.Error("Clone should copy the backing storage")
	}
}

func TestToOrderPreservesElements(t *testing.T) {
	m := New(2, 3)
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			m.Set(i, j, float32(10*i+j))
		}
	}

	r := m.ToOrder(RowMajor)
	if !Equal(m, r) {
		t.Error("ToOrder changed element values")
	}
	if r.Data()[1] != m.At(0, 1) {
		t.Error("row-major storage should be laid out row by row")
	}
}

func TestMul(t *testing.T) {
	a := New(2, 3)
	b := New(3, 2)
	// a = [1 2 3; 4 5 6], b = [7 8; 9 10; 11 12]
	vals := []float32{1, 2, 3, 4, 5, 6}
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			a.Set(i, j, vals[i*3+j])
		}
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 2; j++ {
			b.Set(i, j, float32(7+i*2+j))
		}
	}

	c, err := Mul(a, b)
	if err != nil {
		t.Fatal(err)
	}
	want := [][]float32{{58, 64}, {139, 154}}
	for i := range want {
		for j := range want[i] {
			if c.At(i, j) != want[i][j] {
				t.Errorf("c[%d,%d] = %v, want %v", i, j, c.At(i, j), want[i][j])
			}
		}
	}

	if _, err := Mul(a, a); err == nil {
		t.Error("Mul with mismatched shapes should fail")
	}
}

func TestTranspose(t *testing.T) {
	m := New(2, 3)
	m.Set(0, 2, 5)

	tr := m.T()
	if tr.Rows() != 3 || tr.Cols() != 2 {
		t.Fatalf("T() shape = %dx%d, want 3x2", tr.Rows(), tr.Cols())
	}
	if tr.At(2, 0) != 5 {
		t.Error("T() did not move element (0,2) to (2,0)")
	}
}

func TestColSetCol(t *testing.T) {
	for _, order := range []Order{ColMajor, RowMajor} {
		m := New(3, 2).ToOrder(order)
		m.SetCol(1, []float32{1, 2, 3})

		col := m.Col(1)
		for i, want := range []float32{1, 2, 3} {
			if col[i] != want {
				t.Errorf("%v: Col(1)[%d] = %v, want %v", order, i, col[i], want)
			}
		}
	}
}

func TestRandnShape(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	m := Randn(4, 5, rng)
	if m.Rows() != 4 || m.Cols() != 5 {
		t.Fatalf("Randn shape = %dx%d", m.Rows(), m.Cols())
	}
	var sum float32
	for _, v := range m.Data() {
		sum += v * v
	}
	if sum == 0 {
		t.Error("Randn returned all zeros")
	}
}
