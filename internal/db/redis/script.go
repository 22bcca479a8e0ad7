package redis

import (
	"context"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/agentpay/internal/db"
)

// RunScript executes a Lua script via EVALSHA, falling back to EVAL on NOSCRIPT.
func (s *Store) RunScript(ctx context.Context, script *db.Script, keys, args []string) ([]string, error) {
	lua := s.lua(script)
	vals, err := lua.Exec(ctx, s.client, keys, args).AsStrSlice()
	if err != nil {
		return nil, &db.Error{Op: db.OpEval + " " + script.Name, Err: err}
	}
	return vals, nil
}

func (s *Store) lua(script *db.Script) *rueidis.Lua {
	if v, ok := s.scripts.Load(script); ok {
		return v.(*rueidis.Lua)
	}
	v, _ := s.scripts.LoadOrStore(script, rueidis.NewLuaScript(script.Src))
	return v.(*rueidis.Lua)
}
