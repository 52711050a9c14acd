// Package redislock lock distribuido sobre Redis para que una sola instancia barra la
// cola de contingencia a la vez.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/pdv-fiscal/internal/application/fiscal"
	"github.com/jhoicas/pdv-fiscal/pkg/config"
	"github.com/redis/go-redis/v9"
)

var _ fiscal.Locker = (*Locker)(nil)

// releaseScript borra la clave solo si el token sigue siendo el del dueño.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Locker SET NX con token aleatorio y liberación atómica por script.
type Locker struct {
	client *redis.Client
	script *redis.Script
}

// NewClient conecta a Redis y verifica la conexión. Addr vacío devuelve nil, nil.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// New construye el lock; con client nil devuelve nil (sin lock distribuido).
func New(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client, script: redis.NewScript(releaseScript)}
}

// TryLock intenta tomar key por ttl. ok=false si otra instancia la tiene.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("redis no configurado")
	}
	if key == "" {
		return "", false, errors.New("clave de lock vacía")
	}
	if ttl <= 0 {
		return "", false, errors.New("ttl de lock debe ser positivo")
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("tomar lock %s: %w", key, err)
	}
	return token, ok, nil
}

// Release libera key si token sigue siendo el dueño; un lock vencido no es error.
func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil || key == "" || token == "" {
		return nil
	}
	if err := l.script.Run(ctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("liberar lock %s: %w", key, err)
	}
	return nil
}
