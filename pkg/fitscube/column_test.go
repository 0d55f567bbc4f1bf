package fitscube

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func writeTestFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vec.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing test file: %v", err)
	}
	return path
}

func TestReadColumn(t *testing.T) {
	path := writeTestFile(t, "# channel centres in Hz\n1.0e9\n\n1.1e9  \n1.2e9 extra tokens ignored\n")

	vals, err := ReadColumn(path)
	if err != nil {
		t.Fatalf("ReadColumn failed: %v", err)
	}
	want := []float64{1.0e9, 1.1e9, 1.2e9}
	if len(vals) != len(want) {
		t.Fatalf("read %d values, want %d", len(vals), len(want))
	}
	for i := range want {
		if vals[i] != want[i] {
			t.Errorf("vals[%d] = %g, want %g", i, vals[i], want[i])
		}
	}
}

func TestReadColumnErrors(t *testing.T) {
	if _, err := ReadColumn(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("ReadColumn succeeded on a missing file")
	}
	if _, err := ReadColumn(writeTestFile(t, "1.0e9\nnot-a-number\n")); err == nil {
		t.Error("ReadColumn accepted a malformed value")
	}
	if _, err := ReadColumn(writeTestFile(t, "# only comments\n\n")); err == nil {
		t.Error("ReadColumn accepted a file with no values")
	}
}

func TestLinAxisRoundTrip(t *testing.T) {
	phi := []float64{-10, -5, 0, 5, 10}
	ax := LinAxisFor(phi)

	if ax.CRVAL != -10 || ax.CDELT != 5 || ax.CRPIX != 1 {
		t.Fatalf("LinAxisFor = %+v", ax)
	}

	back := ax.Values(len(phi))
	for i := range phi {
		if math.Abs(back[i]-phi[i]) > 1e-12 {
			t.Errorf("Values[%d] = %g, want %g", i, back[i], phi[i])
		}
	}
}

func TestLinAxisOffsetReference(t *testing.T) {
	// CRPIX may sit mid-axis; the 1-based convention must hold.
	ax := LinAxis{CRVAL: 0, CDELT: 2, CRPIX: 3}
	vals := ax.Values(5)
	want := []float64{-4, -2, 0, 2, 4}
	for i := range want {
		if vals[i] != want[i] {
			t.Errorf("Values[%d] = %g, want %g", i, vals[i], want[i])
		}
	}
}
