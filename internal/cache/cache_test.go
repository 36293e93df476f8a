package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// テスト用のRedis URL。環境変数 TEST_REDIS_URL で上書き可能。
func testRedisURL() string {
	if url := os.Getenv("TEST_REDIS_URL"); url != "" {
		return url
	}
	return "redis://localhost:6379/15"
}

// setupTestCache はテスト用のRedisCacheを生成する。Redisに接続できない場合はスキップする。
func setupTestCache(t *testing.T, ttl time.Duration) (*RedisCache, *redis.Client) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := Open(ctx, testRedisURL())
	if err != nil {
		t.Skipf("テスト用Redisに接続できません: %v", err)
	}

	prefix := "marquee-test:" + t.Name() + ":"
	t.Cleanup(func() {
		keys, _ := client.Keys(context.Background(), prefix+"*").Result()
		if len(keys) > 0 {
			client.Del(context.Background(), keys...)
		}
		client.Close()
	})

	return NewRedisCache(client, prefix, ttl), client
}

type cachedItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func TestOpen_InvalidURL(t *testing.T) {
	if _, err := Open(context.Background(), "not-a-url"); err == nil {
		t.Error("expected error for invalid URL")
	}
}

func TestRedisCache_Miss(t *testing.T) {
	c, _ := setupTestCache(t, time.Minute)

	var got []cachedItem
	found, err := c.Get(context.Background(), "absent", &got)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected cache miss")
	}
}

func TestRedisCache_SetThenGet(t *testing.T) {
	c, _ := setupTestCache(t, time.Minute)
	ctx := context.Background()

	want := []cachedItem{{ID: "1", Title: "Spring Show"}, {ID: "2", Title: "Summer Show"}}
	if err := c.Set(ctx, "events", want); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var got []cachedItem
	found, err := c.Get(ctx, "events", &got)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatal("expected cache hit")
	}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestRedisCache_SetAppliesTTLAndPrefix(t *testing.T) {
	c, client := setupTestCache(t, 30*time.Second)
	ctx := context.Background()

	if err := c.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	ttl, err := client.TTL(ctx, c.prefix+"k").Result()
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl <= 0 || ttl > 30*time.Second {
		t.Errorf("ttl = %v, want (0, 30s]", ttl)
	}
}

func TestRedisCache_CorruptValue(t *testing.T) {
	c, client := setupTestCache(t, time.Minute)
	ctx := context.Background()

	client.Set(ctx, c.prefix+"bad", "{not json", time.Minute)

	var got []cachedItem
	if _, err := c.Get(ctx, "bad", &got); err == nil {
		t.Error("expected decode error")
	}
}

func TestRedisCache_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	c := NewRedisCache(client, "x:", time.Minute)

	var got string
	if _, err := c.Get(context.Background(), "k", &got); err == nil {
		t.Error("expected error when redis is unreachable")
	}
	if err := c.Set(context.Background(), "k", "v"); err == nil {
		t.Error("expected error when redis is unreachable")
	}
}
