package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"timelock/internal/timelock/models"
	"timelock/pkg/platform/sentinel"
)

const keyPrefix = "timelock:"

// RedisLedger shares one engine's ledger between processes. Ids come from
// INCR, records are JSON strings, and a sorted set indexes them by id.
type RedisLedger struct {
	client *redis.Client
	engine string
}

// New creates a ledger namespaced by engine.
func New(client *redis.Client, engine string) *RedisLedger {
	return &RedisLedger{client: client, engine: engine}
}

func (s *RedisLedger) seqKey() string {
	return keyPrefix + s.engine + ":seq"
}

func (s *RedisLedger) indexKey() string {
	return keyPrefix + s.engine + ":index"
}

func (s *RedisLedger) delayKey() string {
	return keyPrefix + s.engine + ":delay"
}

func (s *RedisLedger) actionKey(id models.ActionID) string {
	return keyPrefix + s.engine + ":action:" + id.String()
}

func (s *RedisLedger) NextID(ctx context.Context) (models.ActionID, error) {
	n, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return models.NoAction, fmt.Errorf("allocate action id: %w", err)
	}
	return models.ActionID(n), nil
}

func (s *RedisLedger) Save(ctx context.Context, rec *models.Record) error {
	if rec == nil {
		return fmt.Errorf("record is required")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal action %d: %w", rec.ID, err)
	}

	var setCmd *redis.BoolCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		setCmd = pipe.SetNX(ctx, s.actionKey(rec.ID), data, 0)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(rec.ID), Member: rec.ID.String()})
		return nil
	})
	if err != nil {
		return fmt.Errorf("save action %d: %w", rec.ID, err)
	}
	if !setCmd.Val() {
		return fmt.Errorf("save action %d: %w", rec.ID, sentinel.ErrAlreadyUsed)
	}
	return nil
}

func (s *RedisLedger) Find(ctx context.Context, id models.ActionID) (*models.Record, error) {
	data, err := s.client.Get(ctx, s.actionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find action %d: %w", id, err)
	}
	return decode(data)
}

// Take uses GETDEL inside MULTI so exactly one caller observes the record.
func (s *RedisLedger) Take(ctx context.Context, id models.ActionID) (*models.Record, error) {
	var getCmd *redis.StringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		getCmd = pipe.GetDel(ctx, s.actionKey(id))
		pipe.ZRem(ctx, s.indexKey(), id.String())
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("take action %d: %w", id, err)
	}
	data, err := getCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("take action %d: %w", id, err)
	}
	return decode(data)
}

func (s *RedisLedger) List(ctx context.Context) ([]*models.Record, error) {
	members, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list action index: %w", err)
	}
	if len(members) == 0 {
		return []*models.Record{}, nil
	}

	keys := make([]string, 0, len(members))
	for _, m := range members {
		n, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt index member %q: %w", m, sentinel.ErrInvalidState)
		}
		keys = append(keys, s.actionKey(models.ActionID(n)))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}

	out := make([]*models.Record, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			// taken between ZRANGE and MGET
			continue
		}
		rec, err := decode([]byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

const (
	fieldCurrentDelay = "current_delay"
	fieldBootstrapped = "bootstrapped"
)

// claimBootstrapScript sets the bootstrap flag and the delay together, or
// neither when the flag is already set.
//
// KEYS[1] = delay hash
// ARGV[1] = delay
var claimBootstrapScript = redis.NewScript(`
if redis.call("HSETNX", KEYS[1], "bootstrapped", "1") == 0 then
	return 0
end
redis.call("HSET", KEYS[1], "current_delay", ARGV[1])
return 1
`)

func (s *RedisLedger) LoadDelay(ctx context.Context) (models.DelayState, error) {
	fields, err := s.client.HGetAll(ctx, s.delayKey()).Result()
	if err != nil {
		return models.DelayState{}, fmt.Errorf("load delay: %w", err)
	}
	raw, ok := fields[fieldCurrentDelay]
	if !ok {
		return models.DelayState{}, sentinel.ErrNotFound
	}
	delay, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return models.DelayState{}, fmt.Errorf("corrupt delay %q: %w", raw, sentinel.ErrInvalidState)
	}
	return models.DelayState{
		CurrentDelay: models.Tick(delay),
		Bootstrapped: fields[fieldBootstrapped] == "1",
	}, nil
}

func (s *RedisLedger) SaveDelay(ctx context.Context, delay models.Tick) error {
	if err := s.client.HSet(ctx, s.delayKey(), fieldCurrentDelay, uint64(delay)).Err(); err != nil {
		return fmt.Errorf("save delay: %w", err)
	}
	return nil
}

func (s *RedisLedger) ClaimBootstrap(ctx context.Context, delay models.Tick) error {
	claimed, err := claimBootstrapScript.Run(ctx, s.client, []string{s.delayKey()}, uint64(delay)).Int()
	if err != nil {
		return fmt.Errorf("claim bootstrap: %w", err)
	}
	if claimed == 0 {
		return fmt.Errorf("claim bootstrap: %w", sentinel.ErrAlreadyUsed)
	}
	return nil
}

func decode(data []byte) (*models.Record, error) {
	var rec models.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode action record: %w", err)
	}
	return &rec, nil
}
