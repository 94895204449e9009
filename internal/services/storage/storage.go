package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/kw-tgbot-go/internal/config"
	"github.com/kw-tgbot-go/internal/middleware"
	"github.com/kw-tgbot-go/internal/models"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Dataset names used by every backend.
const (
	DatasetKeywords = "keywords"
	DatasetRoles    = "roles"
	DatasetStats    = "stats"
)

// Store is the persistence boundary for the three datasets. Load methods
// return the documented empty default when a dataset has not been created
// yet; they only fail when the backend itself is unavailable.
type Store interface {
	LoadKeywords(ctx context.Context) (*models.KeywordData, error)
	SaveKeywords(ctx context.Context, data *models.KeywordData) error

	LoadRoles(ctx context.Context) (models.RoleData, error)
	SaveRoles(ctx context.Context, roles models.RoleData) error

	LoadStats(ctx context.Context) (*models.StatsData, error)
	SaveStats(ctx context.Context, data *models.StatsData) error
}

// Manager manages different storage backends
type Manager struct {
	store       Store
	metrics     *middleware.Metrics
	logger      *logrus.Logger
	redisClient *redis.Client // Store redis client reference
}

// NewManager creates a new storage manager
func NewManager(cfg *config.Config, metrics *middleware.Metrics, logger *logrus.Logger) (*Manager, error) {
	manager := &Manager{metrics: metrics, logger: logger}

	switch cfg.Storage.Type {
	case "file":
		manager.store = NewFileStore(cfg.Storage.File.Directory, logger)
	case "redis":
		redisStore, err := NewRedisStore(cfg, logger)
		if err != nil {
			return nil, err
		}
		manager.store = redisStore
		manager.redisClient = redisStore.client
	case "memory":
		manager.store = NewMemoryStore(logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}

	return manager, nil
}

// observe times a delegated call and records it under the operation name.
func (m *Manager) observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.metrics.RecordStorageOperation(operation, status, time.Since(start))
}

// Delegate methods to underlying storage
func (m *Manager) LoadKeywords(ctx context.Context) (*models.KeywordData, error) {
	start := time.Now()
	data, err := m.store.LoadKeywords(ctx)
	m.observe("load_keywords", start, err)
	return data, err
}

func (m *Manager) SaveKeywords(ctx context.Context, data *models.KeywordData) error {
	start := time.Now()
	err := m.store.SaveKeywords(ctx, data)
	m.observe("save_keywords", start, err)
	return err
}

func (m *Manager) LoadRoles(ctx context.Context) (models.RoleData, error) {
	start := time.Now()
	roles, err := m.store.LoadRoles(ctx)
	m.observe("load_roles", start, err)
	return roles, err
}

func (m *Manager) SaveRoles(ctx context.Context, roles models.RoleData) error {
	start := time.Now()
	err := m.store.SaveRoles(ctx, roles)
	m.observe("save_roles", start, err)
	return err
}

func (m *Manager) LoadStats(ctx context.Context) (*models.StatsData, error) {
	start := time.Now()
	data, err := m.store.LoadStats(ctx)
	m.observe("load_stats", start, err)
	return data, err
}

func (m *Manager) SaveStats(ctx context.Context, data *models.StatsData) error {
	start := time.Now()
	err := m.store.SaveStats(ctx, data)
	m.observe("save_stats", start, err)
	return err
}

// GetRedisClient returns the Redis client if available
func (m *Manager) GetRedisClient() *redis.Client {
	return m.redisClient
}

// FileStore keeps each dataset in its own JSON file. Writes go to a temp
// file in the same directory followed by a rename, so a crash mid-save can
// never leave a truncated dataset behind.
type FileStore struct {
	dir    string
	logger *logrus.Logger
}

func NewFileStore(dir string, logger *logrus.Logger) *FileStore {
	return &FileStore{dir: dir, logger: logger}
}

func (f *FileStore) path(dataset string) string {
	return filepath.Join(f.dir, dataset+".json")
}

func (f *FileStore) load(dataset string, out interface{}) (bool, error) {
	data, err := os.ReadFile(f.path(dataset))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: read %s: %v", models.ErrStoreUnavailable, dataset, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("%w: decode %s: %v", models.ErrStoreUnavailable, dataset, err)
	}
	return true, nil
}

func (f *FileStore) save(dataset string, in interface{}) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", models.ErrStoreUnavailable, f.dir, err)
	}

	data, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", models.ErrStoreUnavailable, dataset, err)
	}

	tmp, err := os.CreateTemp(f.dir, dataset+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp for %s: %v", models.ErrStoreUnavailable, dataset, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: write %s: %v", models.ErrStoreUnavailable, dataset, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: close %s: %v", models.ErrStoreUnavailable, dataset, err)
	}
	if err := os.Rename(tmp.Name(), f.path(dataset)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: rename %s: %v", models.ErrStoreUnavailable, dataset, err)
	}
	return nil
}

func (f *FileStore) LoadKeywords(ctx context.Context) (*models.KeywordData, error) {
	data := models.NewKeywordData()
	if _, err := f.load(DatasetKeywords, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (f *FileStore) SaveKeywords(ctx context.Context, data *models.KeywordData) error {
	return f.save(DatasetKeywords, data)
}

func (f *FileStore) LoadRoles(ctx context.Context) (models.RoleData, error) {
	roles := models.RoleData{}
	if _, err := f.load(DatasetRoles, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

func (f *FileStore) SaveRoles(ctx context.Context, roles models.RoleData) error {
	return f.save(DatasetRoles, roles)
}

func (f *FileStore) LoadStats(ctx context.Context) (*models.StatsData, error) {
	data := models.NewStatsData()
	if _, err := f.load(DatasetStats, data); err != nil {
		return nil, err
	}
	if data.Users == nil {
		data.Users = make(map[string]*models.User)
	}
	if data.Messages == nil {
		data.Messages = make(map[string][]time.Time)
	}
	return data, nil
}

func (f *FileStore) SaveStats(ctx context.Context, data *models.StatsData) error {
	return f.save(DatasetStats, data)
}

// RedisStore implements storage using Redis
type RedisStore struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisStore(cfg *config.Config, logger *logrus.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Storage.Redis.Addr,
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, logger: logger}, nil
}

func (r *RedisStore) key(dataset string) string {
	return fmt.Sprintf("dataset:%s", dataset)
}

func (r *RedisStore) load(ctx context.Context, dataset string, out interface{}) (bool, error) {
	data, err := r.client.Get(ctx, r.key(dataset)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: get %s: %v", models.ErrStoreUnavailable, dataset, err)
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return false, fmt.Errorf("%w: decode %s: %v", models.ErrStoreUnavailable, dataset, err)
	}
	return true, nil
}

func (r *RedisStore) save(ctx context.Context, dataset string, in interface{}) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", models.ErrStoreUnavailable, dataset, err)
	}
	// Datasets never expire
	if err := r.client.Set(ctx, r.key(dataset), data, 0).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", models.ErrStoreUnavailable, dataset, err)
	}
	return nil
}

func (r *RedisStore) LoadKeywords(ctx context.Context) (*models.KeywordData, error) {
	data := models.NewKeywordData()
	if _, err := r.load(ctx, DatasetKeywords, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (r *RedisStore) SaveKeywords(ctx context.Context, data *models.KeywordData) error {
	return r.save(ctx, DatasetKeywords, data)
}

func (r *RedisStore) LoadRoles(ctx context.Context) (models.RoleData, error) {
	roles := models.RoleData{}
	if _, err := r.load(ctx, DatasetRoles, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *RedisStore) SaveRoles(ctx context.Context, roles models.RoleData) error {
	return r.save(ctx, DatasetRoles, roles)
}

func (r *RedisStore) LoadStats(ctx context.Context) (*models.StatsData, error) {
	data := models.NewStatsData()
	if _, err := r.load(ctx, DatasetStats, data); err != nil {
		return nil, err
	}
	if data.Users == nil {
		data.Users = make(map[string]*models.User)
	}
	if data.Messages == nil {
		data.Messages = make(map[string][]time.Time)
	}
	return data, nil
}

func (r *RedisStore) SaveStats(ctx context.Context, data *models.StatsData) error {
	return r.save(ctx, DatasetStats, data)
}

// MemoryStore implements storage using an in-memory cache. Datasets are
// stored as their JSON encoding so loads hand back copies, matching the
// isolation callers get from the durable backends.
type MemoryStore struct {
	datasets *cache.Cache
	logger   *logrus.Logger
}

func NewMemoryStore(logger *logrus.Logger) *MemoryStore {
	return &MemoryStore{
		datasets: cache.New(cache.NoExpiration, cache.NoExpiration),
		logger:   logger,
	}
}

func (m *MemoryStore) load(dataset string, out interface{}) (bool, error) {
	val, found := m.datasets.Get(dataset)
	if !found {
		return false, nil
	}
	if err := json.Unmarshal(val.([]byte), out); err != nil {
		return false, fmt.Errorf("%w: decode %s: %v", models.ErrStoreUnavailable, dataset, err)
	}
	return true, nil
}

func (m *MemoryStore) save(dataset string, in interface{}) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", models.ErrStoreUnavailable, dataset, err)
	}
	m.datasets.Set(dataset, data, cache.NoExpiration)
	return nil
}

func (m *MemoryStore) LoadKeywords(ctx context.Context) (*models.KeywordData, error) {
	data := models.NewKeywordData()
	if _, err := m.load(DatasetKeywords, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (m *MemoryStore) SaveKeywords(ctx context.Context, data *models.KeywordData) error {
	return m.save(DatasetKeywords, data)
}

func (m *MemoryStore) LoadRoles(ctx context.Context) (models.RoleData, error) {
	roles := models.RoleData{}
	if _, err := m.load(DatasetRoles, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

func (m *MemoryStore) SaveRoles(ctx context.Context, roles models.RoleData) error {
	return m.save(DatasetRoles, roles)
}

func (m *MemoryStore) LoadStats(ctx context.Context) (*models.StatsData, error) {
	data := models.NewStatsData()
	if _, err := m.load(DatasetStats, data); err != nil {
		return nil, err
	}
	if data.Users == nil {
		data.Users = make(map[string]*models.User)
	}
	if data.Messages == nil {
		data.Messages = make(map[string][]time.Time)
	}
	return data, nil
}

func (m *MemoryStore) SaveStats(ctx context.Context, data *models.StatsData) error {
	return m.save(DatasetStats, data)
}
