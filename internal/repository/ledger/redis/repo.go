package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/kailas-cloud/agentpay/internal/db"
	"github.com/kailas-cloud/agentpay/internal/domain"
	"github.com/kailas-cloud/agentpay/internal/domain/payment"
	"github.com/kailas-cloud/agentpay/internal/domain/token"
)

// store is the consumer interface for the ledger (ISP).
type store interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	RunScript(ctx context.Context, script *db.Script, keys, args []string) ([]string, error)
}

// createScript writes the token hash and its TTL in one step.
// KEYS: token hash. ARGV: ttl (ms), then field/value pairs.
var createScript = &db.Script{Name: "ledger_create", Src: `
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
redis.call('PEXPIRE', KEYS[1], ARGV[1])
return {'ok'}
`}

// consumeScript checks and deducts atomically.
// KEYS: token hash, txn list, idempotency hash (same hash slot).
// ARGV: amount, now (unix ms), txn JSON, idempotency key.
var consumeScript = &db.Script{Name: "ledger_consume", Src: `
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {'not_found'}
end
if tonumber(ARGV[2]) >= tonumber(redis.call('HGET', KEYS[1], 'expires_at')) then
  return {'expired'}
end
local key = ARGV[4]
if key ~= '' then
  local prev = redis.call('HGET', KEYS[3], key)
  if prev then
    return {'replay', redis.call('HGET', KEYS[1], 'remaining'), prev}
  end
end
local amount = tonumber(ARGV[1])
local remaining = tonumber(redis.call('HGET', KEYS[1], 'remaining'))
if amount > remaining then
  return {'insufficient', tostring(remaining)}
end
remaining = redis.call('HINCRBY', KEYS[1], 'remaining', -amount)
redis.call('RPUSH', KEYS[2], ARGV[3])
if key ~= '' then
  redis.call('HSET', KEYS[3], key, ARGV[3])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[2], ttl)
  redis.call('PEXPIRE', KEYS[3], ttl)
end
return {'ok', tostring(remaining)}
`}

// Repo stores tokens in Redis. Consume runs as a single Lua script,
// so the check-and-deduct is atomic across all gateway instances.
type Repo struct {
	store     store
	retention time.Duration
}

// New creates a Redis ledger store. Token keys live until expiry plus retention.
func New(s store, retention time.Duration) *Repo {
	return &Repo{store: s, retention: retention}
}

// Create stores a new token hash together with its TTL.
func (r *Repo) Create(ctx context.Context, tok token.Token) error {
	ttl := time.Until(tok.ExpiresAt()) + r.retention
	if ttl < time.Second {
		ttl = time.Second
	}

	hash := tokenToHash(tok)
	fields := make([]string, 0, len(hash))
	for f := range hash {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	args := make([]string, 0, 1+2*len(fields))
	args = append(args, strconv.FormatInt(ttl.Milliseconds(), 10))
	for _, f := range fields {
		args = append(args, f, hash[f])
	}

	if _, err := r.store.RunScript(ctx, createScript, []string{tokenKey(tok.ID())}, args); err != nil {
		return fmt.Errorf("create token: %w", err)
	}
	return nil
}

// Get loads the token hash and its transaction list.
func (r *Repo) Get(ctx context.Context, id string) (token.Token, error) {
	m, err := r.store.HGetAll(ctx, tokenKey(id))
	if err != nil {
		return token.Token{}, fmt.Errorf("hgetall token: %w", err)
	}
	if len(m) == 0 {
		return token.Token{}, domain.ErrTokenNotFound
	}

	rows, err := r.store.LRange(ctx, txnKey(id), 0, -1)
	if err != nil {
		return token.Token{}, fmt.Errorf("lrange transactions: %w", err)
	}
	return tokenFromHash(m, rows)
}

// Consume charges the token via the consume script.
func (r *Repo) Consume(ctx context.Context, id string, tx token.Transaction, now time.Time) (payment.Record, error) {
	txJSON, err := encodeTx(tx)
	if err != nil {
		return payment.Record{}, err
	}

	reply, err := r.store.RunScript(ctx, consumeScript,
		[]string{tokenKey(id), txnKey(id), idemKey(id)},
		[]string{
			strconv.FormatInt(tx.Amount(), 10),
			strconv.FormatInt(now.UnixMilli(), 10),
			txJSON,
			tx.IdempotencyKey(),
		},
	)
	if err != nil {
		return payment.Record{}, fmt.Errorf("consume: %w", err)
	}
	return parseReply(id, tx, reply)
}

func parseReply(id string, tx token.Transaction, reply []string) (payment.Record, error) {
	if len(reply) == 0 {
		return payment.Record{}, fmt.Errorf("consume: empty script reply")
	}

	switch reply[0] {
	case "not_found":
		return payment.Record{}, domain.ErrTokenNotFound
	case "expired":
		return payment.Record{}, domain.ErrTokenExpired
	case "insufficient":
		available, err := replyInt(reply, 1)
		if err != nil {
			return payment.Record{}, err
		}
		return payment.Record{}, domain.NewInsufficientBalance(tx.Amount(), available)
	case "ok":
		remaining, err := replyInt(reply, 1)
		if err != nil {
			return payment.Record{}, err
		}
		return payment.NewRecord(id, tx, remaining, false), nil
	case "replay":
		remaining, err := replyInt(reply, 1)
		if err != nil {
			return payment.Record{}, err
		}
		if len(reply) < 3 {
			return payment.Record{}, fmt.Errorf("consume: replay without transaction")
		}
		prev, err := decodeTx(reply[2])
		if err != nil {
			return payment.Record{}, err
		}
		return payment.NewRecord(id, prev, remaining, true), nil
	default:
		return payment.Record{}, fmt.Errorf("consume: unexpected script reply %q", reply[0])
	}
}

func replyInt(reply []string, i int) (int64, error) {
	if len(reply) <= i {
		return 0, fmt.Errorf("consume: short script reply %v", reply)
	}
	v, err := strconv.ParseInt(reply[i], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("consume: parse reply: %w", err)
	}
	return v, nil
}

// Keys share the {id} hash tag so the script touches a single cluster slot.
func tokenKey(id string) string { return "agentpay:token:{" + id + "}" }
func txnKey(id string) string   { return "agentpay:token:{" + id + "}:txns" }
func idemKey(id string) string  { return "agentpay:token:{" + id + "}:idem" }
