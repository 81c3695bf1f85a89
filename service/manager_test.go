package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	loadErr  error
	closeErr error
	loaded   bool
	closed   bool
}

func (f *fakeService) Load(ctx context.Context) error {
	f.loaded = true
	return f.loadErr
}

func (f *fakeService) Close(ctx context.Context) error {
	f.closed = true
	return f.closeErr
}

func TestLoadIsIdempotent(t *testing.T) {
	m := NewManager()
	calls := 0
	m.Register("rbac", func(config map[string]any) (Service, error) {
		calls++
		return &fakeService{}, nil
	}, nil)

	ctx := context.Background()
	first, err := m.Load(ctx, "rbac")
	require.NoError(t, err)
	second, err := m.Load(ctx, "rbac")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestLoadUnregisteredFails(t *testing.T) {
	m := NewManager()
	_, err := m.Load(context.Background(), "nope")
	assert.Error(t, err)
}

func TestLoadAllFollowsRegistrationOrder(t *testing.T) {
	m := NewManager()
	var order []string
	register := func(name string) {
		m.Register(name, func(config map[string]any) (Service, error) {
			order = append(order, name)
			return &fakeService{}, nil
		}, nil)
	}
	register("websocket")
	register("preupload")
	register("rbac")

	require.NoError(t, m.LoadAll(context.Background()))
	assert.Equal(t, []string{"websocket", "preupload", "rbac"}, order)
}

func TestCloseAllIsReverseOrder(t *testing.T) {
	m := NewManager()
	var closeOrder []string
	for _, name := range []string{"a", "b", "c"} {
		local := name
		m.Register(local, func(config map[string]any) (Service, error) {
			return &tracingService{name: local, order: &closeOrder}, nil
		}, nil)
	}

	ctx := context.Background()
	require.NoError(t, m.LoadAll(ctx))
	m.CloseAll(ctx)

	assert.Equal(t, []string{"c", "b", "a"}, closeOrder)
}

type tracingService struct {
	name  string
	order *[]string
}

func (s *tracingService) Load(ctx context.Context) error { return nil }
func (s *tracingService) Close(ctx context.Context) error {
	*s.order = append(*s.order, s.name)
	return nil
}

func TestLoadFailureLeavesServiceUnregistered(t *testing.T) {
	m := NewManager()
	m.Register("rbac", func(config map[string]any) (Service, error) {
		return &fakeService{loadErr: assert.AnError}, nil
	}, nil)

	_, err := m.Load(context.Background(), "rbac")
	assert.Error(t, err)
	assert.False(t, m.Has("rbac"))
}

func TestCloseFailureIsSwallowedPerService(t *testing.T) {
	m := NewManager()
	m.Register("a", func(config map[string]any) (Service, error) {
		return &fakeService{closeErr: assert.AnError}, nil
	}, nil)
	m.Register("b", func(config map[string]any) (Service, error) {
		return &fakeService{}, nil
	}, nil)

	ctx := context.Background()
	require.NoError(t, m.LoadAll(ctx))

	assert.NotPanics(t, func() {
		m.CloseAll(ctx)
	})
	assert.False(t, m.Has("a"))
	assert.False(t, m.Has("b"))
}

func TestGet2TypedAccessor(t *testing.T) {
	m := NewManager()
	m.Register(NameRBAC, func(config map[string]any) (Service, error) {
		return &fakeService{}, nil
	}, nil)
	require.NoError(t, m.LoadAll(context.Background()))

	svc, ok := Get2[*fakeService](m, NameRBAC)
	require.True(t, ok)
	assert.True(t, svc.loaded)

	_, ok = Get2[*fakeService](m, "missing")
	assert.False(t, ok)
}
