package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const otpKeyPrefix = "otp:"

// consumeScript deletes the challenge when the hash matches. A mismatch bumps
// the attempt counter and deletes the challenge once ARGV[2] is reached.
var consumeScript = redis.NewScript(`
local stored = redis.call("HGET", KEYS[1], "hash")
if not stored then
	return 0
end
if stored == ARGV[1] then
	redis.call("DEL", KEYS[1])
	return 1
end
if redis.call("HINCRBY", KEYS[1], "attempts", 1) >= tonumber(ARGV[2]) then
	redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisOTPStore keeps codes outside the account record, with expiry enforced
// by the key TTL.
type RedisOTPStore struct {
	client *redis.Client
}

func NewRedisOTPStore(client *redis.Client) *RedisOTPStore {
	return &RedisOTPStore{client: client}
}

func otpKey(email string) string {
	return otpKeyPrefix + email
}

func (s *RedisOTPStore) SaveOTP(ctx context.Context, email, codeHash string, expiresAt time.Time) error {
	if !expiresAt.After(time.Now()) {
		return errors.New("otp store: expiry is in the past")
	}

	key := otpKey(email)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, "hash", codeHash, "attempts", 0)
		pipe.PExpireAt(ctx, key, expiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("otp store: failed to save code: %w", err)
	}
	return nil
}

func (s *RedisOTPStore) ConsumeOTP(ctx context.Context, email, codeHash string, _ time.Time) (bool, error) {
	matched, err := consumeScript.Run(ctx, s.client, []string{otpKey(email)}, codeHash, MaxOTPAttempts).Int()
	if err != nil {
		return false, fmt.Errorf("otp store: failed to consume code: %w", err)
	}
	return matched == 1, nil
}
