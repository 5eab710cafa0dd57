package nn

import (
	"errors"
	"math"
	"testing"
)

func TestRegisterAndGetActivation(t *testing.T) {
	resetActivationRegistryForTests()
	t.Cleanup(resetActivationRegistryForTests)

	if err := RegisterActivation("quad", func(x float64) float64 { return x * x }); err != nil {
		t.Fatalf("register activation: %v", err)
	}
	fn, err := GetActivation("quad")
	if err != nil {
		t.Fatalf("get activation: %v", err)
	}
	if got := fn(3); got != 9 {
		t.Fatalf("unexpected activation result: got=%f want=9", got)
	}
}

func TestRegisterActivationValidation(t *testing.T) {
	resetActivationRegistryForTests()
	t.Cleanup(resetActivationRegistryForTests)

	if err := RegisterActivation("  ", func(x float64) float64 { return x }); err == nil {
		t.Fatal("expected empty name error")
	}
	if err := RegisterActivation("nil", nil); err == nil {
		t.Fatal("expected nil function error")
	}
}

func TestRegisterActivationDuplicate(t *testing.T) {
	resetActivationRegistryForTests()
	t.Cleanup(resetActivationRegistryForTests)

	if err := RegisterActivation("tanh", math.Tanh); !errors.Is(err, ErrActivationExists) {
		t.Fatalf("expected ErrActivationExists, got: %v", err)
	}
}

func TestGetActivationNotFound(t *testing.T) {
	_, err := GetActivation("missing")
	if !errors.Is(err, ErrActivationNotFound) {
		t.Fatalf("expected ErrActivationNotFound, got: %v", err)
	}
}

func TestGetActivationEmptyNameUsesDefault(t *testing.T) {
	fn, err := GetActivation("")
	if err != nil {
		t.Fatalf("get default activation: %v", err)
	}
	if got, want := fn(0.5), math.Tanh(0.5); got != want {
		t.Fatalf("expected default tanh: got=%f want=%f", got, want)
	}
}

func TestListActivationsSorted(t *testing.T) {
	names := ListActivations()
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Fatalf("activation list not sorted: %+v", names)
		}
	}
}

func TestApplyInPlace(t *testing.T) {
	xs := []float64{-2, 0, 3}
	relu, err := GetActivation("relu")
	if err != nil {
		t.Fatalf("get relu: %v", err)
	}
	ApplyInPlace(relu, xs)
	if xs[0] != 0 || xs[1] != 0 || xs[2] != 3 {
		t.Fatalf("unexpected relu output: %+v", xs)
	}
}
