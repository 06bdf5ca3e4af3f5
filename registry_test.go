package relayz

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
)

func TestRegistry(t *testing.T) {
	ctx := context.Background()

	t.Run("Register And Lookup", func(t *testing.T) {
		registry := NewRegistry()
		stage := &pipeOne{}
		if err := registry.Register("one", stage); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := registry.Lookup(ctx, "one")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != stage {
			t.Error("expected the registered instance")
		}
		if !registry.Has("one") || registry.Len() != 1 {
			t.Error("expected one entry")
		}
	})

	t.Run("Invalid Registrations", func(t *testing.T) {
		registry := NewRegistry()
		if err := registry.Register("", &pipeOne{}); !errors.Is(err, ErrEmptyName) {
			t.Errorf("expected ErrEmptyName, got %v", err)
		}
		if err := registry.Register("nil", nil); !errors.Is(err, ErrNilStage) {
			t.Errorf("expected ErrNilStage, got %v", err)
		}
		if err := registry.RegisterFactory("", func(context.Context) (any, error) { return nil, nil }); !errors.Is(err, ErrEmptyName) {
			t.Errorf("expected ErrEmptyName, got %v", err)
		}
		if err := registry.RegisterFactory("nil", nil); !errors.Is(err, ErrNilStage) {
			t.Errorf("expected ErrNilStage, got %v", err)
		}
		if registry.Len() != 0 {
			t.Errorf("expected empty registry, got %d", registry.Len())
		}
	})

	t.Run("Unknown Name", func(t *testing.T) {
		registry := NewRegistry()
		_, err := registry.Lookup(ctx, "ghost")
		if !errors.Is(err, ErrStageNotFound) {
			t.Errorf("expected ErrStageNotFound, got %v", err)
		}
		if v := registry.Metrics().Counter(RegistryMissesTotal).Value(); v != 1 {
			t.Errorf("expected 1 miss, got %f", v)
		}
	})

	t.Run("Factory Builds Per Lookup", func(t *testing.T) {
		registry := NewRegistry()
		built := 0
		if err := registry.RegisterFactory("fresh", func(context.Context) (any, error) {
			built++
			return &paramPipe{}, nil
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		first, _ := registry.Lookup(ctx, "fresh")
		second, _ := registry.Lookup(ctx, "fresh")
		if built != 2 {
			t.Errorf("expected 2 builds, got %d", built)
		}
		if first == second {
			t.Error("expected distinct instances")
		}
	})

	t.Run("Factory Error", func(t *testing.T) {
		registry := NewRegistry()
		boom := errors.New("boom")
		_ = registry.RegisterFactory("broken", func(context.Context) (any, error) {
			return nil, boom
		})

		_, err := registry.Lookup(ctx, "broken")
		if !errors.Is(err, boom) {
			t.Errorf("expected factory error, got %v", err)
		}
		if v := registry.Metrics().Counter(RegistryFactoryErrorsTotal).Value(); v != 1 {
			t.Errorf("expected 1 factory error, got %f", v)
		}
	})

	t.Run("Remove And Names", func(t *testing.T) {
		registry := NewRegistry()
		for _, name := range []string{"c", "a", "b"} {
			_ = registry.Register(name, &pipeOne{})
		}
		if !slices.Equal(registry.Names(), []string{"a", "b", "c"}) {
			t.Errorf("expected sorted names, got %v", registry.Names())
		}
		if v := registry.Metrics().Gauge(RegistryEntries).Value(); v != 3 {
			t.Errorf("expected 3 entries, got %f", v)
		}

		if err := registry.Remove("b"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := registry.Remove("b"); !errors.Is(err, ErrStageNotFound) {
			t.Errorf("expected ErrStageNotFound, got %v", err)
		}
		if registry.Has("b") || registry.Len() != 2 {
			t.Error("expected b to be removed")
		}
		if v := registry.Metrics().Gauge(RegistryEntries).Value(); v != 2 {
			t.Errorf("expected 2 entries, got %f", v)
		}
	})

	t.Run("Factory Stage In Pipeline", func(t *testing.T) {
		registry := NewRegistry()
		var stages []*paramPipe
		var mu sync.Mutex
		_ = registry.RegisterFactory("Param", func(context.Context) (any, error) {
			stage := &paramPipe{}
			mu.Lock()
			stages = append(stages, stage)
			mu.Unlock()
			return stage, nil
		})

		_, err := New[string](testPipeline, registry).
			Through(Refs[string]("Param:x", "Param:y")...).
			ThenReturn(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(stages) != 2 {
			t.Fatalf("expected 2 instances, got %d", len(stages))
		}
		if !slices.Equal(stages[0].params, []string{"x"}) || !slices.Equal(stages[1].params, []string{"y"}) {
			t.Errorf("unexpected params %v and %v", stages[0].params, stages[1].params)
		}
		if v := registry.Metrics().Counter(RegistryLookupsTotal).Value(); v != 2 {
			t.Errorf("expected 2 lookups, got %f", v)
		}
	})

	t.Run("Concurrent Access", func(t *testing.T) {
		registry := NewRegistry()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_ = registry.Register("shared", &pipeOne{})
			}()
			go func() {
				defer wg.Done()
				_, _ = registry.Lookup(ctx, "shared")
			}()
		}
		wg.Wait()
		if !registry.Has("shared") {
			t.Error("expected shared entry")
		}
	})
}
