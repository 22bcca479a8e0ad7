package redis

import (
	"context"

	"github.com/kailas-cloud/agentpay/internal/db"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hgetAllFn   func(ctx context.Context, key string) (map[string]string, error)
	lrangeFn    func(ctx context.Context, key string, start, stop int64) ([]string, error)
	runScriptFn func(ctx context.Context, script *db.Script, keys, args []string) ([]string, error)
}

func (m *mockStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if m.hgetAllFn != nil {
		return m.hgetAllFn(ctx, key)
	}
	return map[string]string{}, nil
}

func (m *mockStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	if m.lrangeFn != nil {
		return m.lrangeFn(ctx, key, start, stop)
	}
	return nil, nil
}

func (m *mockStore) RunScript(ctx context.Context, script *db.Script, keys, args []string) ([]string, error) {
	if m.runScriptFn != nil {
		return m.runScriptFn(ctx, script, keys, args)
	}
	return nil, nil
}
