package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/tendant/simple-files/pkg/filestore"
)

const defaultPrefix = "filestore"

// Records live under <prefix>:file:<id>. The <prefix>:files sorted set keeps
// every id with score 0 and a member of "<created-unix-nanos>:<id>", so
// lexicographic member order is creation order.
var insertScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('ZADD', KEYS[2], 0, ARGV[2])
return 1
`)

var deleteScript = redis.NewScript(`
if redis.call('DEL', KEYS[1]) == 0 then
  return 0
end
redis.call('ZREM', KEYS[2], ARGV[1])
return 1
`)

// Catalog implements filestore.Catalog on Redis
type Catalog struct {
	client *redis.Client
	prefix string
}

// Config options for the Redis catalog
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// New connects to Redis and verifies the connection
func New(ctx context.Context, config Config) (*Catalog, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        config.Addr,
		Password:    config.Password,
		DB:          config.DB,
		DialTimeout: 2 * time.Second,
		ReadTimeout: 2 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewWithClient(client, config.Prefix), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client, prefix string) *Catalog {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Catalog{client: client, prefix: prefix}
}

// NewFromURL parses a redis:// URL and connects
func NewFromURL(ctx context.Context, rawURL string) (*Catalog, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	return New(ctx, Config{Addr: opts.Addr, Password: opts.Password, DB: opts.DB})
}

// Close closes the Redis client
func (c *Catalog) Close() error {
	return c.client.Close()
}

// Ping checks the Redis connection
func (c *Catalog) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Catalog) recordKey(id string) string {
	return fmt.Sprintf("%s:file:%s", c.prefix, id)
}

func (c *Catalog) indexKey() string {
	return c.prefix + ":files"
}

func indexMember(record *filestore.FileRecord) string {
	return fmt.Sprintf("%020d:%s", record.CreatedAt.UnixNano(), record.ID)
}

func (c *Catalog) Insert(ctx context.Context, record *filestore.FileRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	inserted, err := insertScript.Run(ctx, c.client,
		[]string{c.recordKey(record.ID), c.indexKey()},
		data, indexMember(record)).Int()
	if err != nil {
		return fmt.Errorf("insert file record: %w", err)
	}
	if inserted == 0 {
		return filestore.ErrDuplicateID
	}
	return nil
}

func (c *Catalog) Get(ctx context.Context, id string) (*filestore.FileRecord, error) {
	data, err := c.client.Get(ctx, c.recordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, filestore.ErrRecordNotFound
		}
		return nil, fmt.Errorf("get file record: %w", err)
	}
	return decodeRecord(data)
}

func (c *Catalog) List(ctx context.Context) ([]*filestore.FileRecord, error) {
	members, err := c.client.ZRange(ctx, c.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list file index: %w", err)
	}

	result := make([]*filestore.FileRecord, 0, len(members))
	if len(members) == 0 {
		return result, nil
	}

	keys := make([]string, 0, len(members))
	for _, member := range members {
		_, id, ok := strings.Cut(member, ":")
		if !ok {
			continue
		}
		keys = append(keys, c.recordKey(id))
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list file records: %w", err)
	}
	for _, v := range values {
		// Deleted between ZRANGE and MGET
		s, ok := v.(string)
		if !ok {
			continue
		}
		record, err := decodeRecord([]byte(s))
		if err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	return result, nil
}

func (c *Catalog) Delete(ctx context.Context, id string) error {
	record, err := c.Get(ctx, id)
	if err != nil {
		return err
	}

	deleted, err := deleteScript.Run(ctx, c.client,
		[]string{c.recordKey(id), c.indexKey()},
		indexMember(record)).Int()
	if err != nil {
		return fmt.Errorf("delete file record: %w", err)
	}
	if deleted == 0 {
		return filestore.ErrRecordNotFound
	}
	return nil
}

func decodeRecord(data []byte) (*filestore.FileRecord, error) {
	var record filestore.FileRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode file record: %w", err)
	}
	record.CreatedAt = record.CreatedAt.UTC()
	return &record, nil
}
