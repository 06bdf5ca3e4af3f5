package relayz

import (
	"context"
	"errors"
	"strconv"
	"testing"
)

func TestApply(t *testing.T) {
	parse := Apply[string]("normalize", func(_ context.Context, s string) (string, error) {
		n, err := strconv.Atoi(s)
		if err != nil {
			return "", err
		}
		return strconv.Itoa(n * 10), nil
	})

	t.Run("Successful Apply", func(t *testing.T) {
		result, err := runOne(t, parse, "4")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != "40" {
			t.Errorf("expected 40, got %s", result)
		}
	})

	t.Run("Error Stops The Chain", func(t *testing.T) {
		reached := false
		result, err := New[string]("apply", nil).
			Send("abc").
			Through(parse).
			Then(context.Background(), func(_ context.Context, s string) (string, error) {
				reached = true
				return s, nil
			})

		var numErr *strconv.NumError
		if !errors.As(err, &numErr) {
			t.Fatalf("expected the parse error unchanged, got %v", err)
		}
		if result != "abc" {
			t.Errorf("expected original payload, got %q", result)
		}
		if reached {
			t.Error("destination should not run")
		}
	})
}
