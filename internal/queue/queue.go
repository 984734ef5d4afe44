// Пакет queue — Job Channel: надёжная очередь заданий поверх Redis.
//
// Ключи очереди с именем N:
//   - N:pending    — список ожидающих заданий (LPUSH / BLMOVE RIGHT→LEFT);
//   - N:processing — задания, взятые обработчиком и ещё не подтверждённые;
//   - N:delayed    — sorted set отложенных повторов (score — unix ms);
//   - N:dead       — задания, исчерпавшие попытки или отклонённые навсегда;
//   - N:leases     — sorted set аренды заданий из processing (score — срок, unix ms).
//
// Доставка at-least-once: задание, аренда которого истекла (обработчик упал
// и не продлевал её), возвращается из processing в pending
// (RecoverProcessing), поэтому обработчики должны быть идемпотентны.
// Задания живых обработчиков других реплик не трогаются.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// defaultPollTimeout — время ожидания BLMOVE до проверки отложенных заданий.
	defaultPollTimeout = time.Second
	// promoteBatch — сколько отложенных заданий переносится за один вызов.
	promoteBatch = 100
	// maxBackoff — верхняя граница задержки повтора.
	maxBackoff = time.Hour
	// defaultVisibility — срок аренды задания по умолчанию.
	defaultVisibility = 5 * time.Minute
)

// ErrPermanent — признак ошибки, при которой повтор бесполезен.
var ErrPermanent = errors.New("постоянная ошибка задания")

// Permanent помечает ошибку обработчика как постоянную:
// задание сразу переносится в dead без повторов.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// IsPermanent проверяет, помечена ли ошибка как постоянная.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// Envelope — конверт задания в Redis.
type Envelope struct {
	ID         string          `json:"id"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
	LastError  string          `json:"lastError,omitempty"`
}

// Handler обрабатывает полезную нагрузку задания.
// nil — подтверждение, ошибка — повтор или dead (см. Permanent).
type Handler func(ctx context.Context, payload []byte) error

// Config — параметры очереди.
type Config struct {
	// Name — имя очереди, префикс ключей Redis
	Name string
	// MaxAttempts — число попыток до переноса в dead
	MaxAttempts int
	// Backoff — задержка первого повтора, далее удваивается
	Backoff time.Duration
	// PollTimeout — таймаут блокирующего ожидания (0 — по умолчанию 1s)
	PollTimeout time.Duration
	// Visibility — срок аренды взятого задания; обработчик продлевает
	// её каждую треть срока (0 — по умолчанию 5m)
	Visibility time.Duration
}

// Stats — длины списков очереди.
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Delayed    int64 `json:"delayed"`
	Dead       int64 `json:"dead"`
}

// promoteScript атомарно переносит созревшие задания из delayed в pending.
var promoteScript = redis.NewScript(`
local items = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, item in ipairs(items) do
	redis.call('ZREM', KEYS[1], item)
	redis.call('LPUSH', KEYS[2], item)
end
return #items
`)

// recoverScript возвращает в pending задания с истёкшей арендой.
// Заданию без аренды (обработчик взял его, но ещё не записал аренду)
// выдаётся новая аренда. Аренды заданий, которых уже нет в processing,
// удаляются по истечении.
// KEYS: processing, leases, pending. ARGV: now, deadline для новой аренды.
var recoverScript = redis.NewScript(`
local items = redis.call('LRANGE', KEYS[1], 0, -1)
local now = tonumber(ARGV[1])
local moved = 0
for _, item in ipairs(items) do
	local score = redis.call('ZSCORE', KEYS[2], item)
	if not score then
		redis.call('ZADD', KEYS[2], ARGV[2], item)
	elseif tonumber(score) <= now then
		redis.call('LREM', KEYS[1], 1, item)
		redis.call('ZREM', KEYS[2], item)
		redis.call('RPUSH', KEYS[3], item)
		moved = moved + 1
	end
end
redis.call('ZREMRANGEBYSCORE', KEYS[2], '-inf', now)
return moved
`)

// Queue — надёжная очередь заданий.
type Queue struct {
	rdb    redis.UniversalClient
	cfg    Config
	logger *slog.Logger

	pendingKey    string
	processingKey string
	delayedKey    string
	deadKey       string
	leasesKey     string

	now func() time.Time
}

// New создаёт очередь.
func New(rdb redis.UniversalClient, cfg Config, logger *slog.Logger) *Queue {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.Visibility <= 0 {
		cfg.Visibility = defaultVisibility
	}
	return &Queue{
		rdb:           rdb,
		cfg:           cfg,
		logger:        logger.With(slog.String("component", "queue"), slog.String("queue", cfg.Name)),
		pendingKey:    cfg.Name + ":pending",
		processingKey: cfg.Name + ":processing",
		delayedKey:    cfg.Name + ":delayed",
		deadKey:       cfg.Name + ":dead",
		leasesKey:     cfg.Name + ":leases",
		now:           time.Now,
	}
}

// Name возвращает имя очереди.
func (q *Queue) Name() string {
	return q.cfg.Name
}

// Publish сериализует payload в JSON и ставит задание в pending.
func (q *Queue) Publish(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("сериализация задания: %w", err)
	}

	raw, err := json.Marshal(Envelope{
		ID:         uuid.New().String(),
		Payload:    body,
		EnqueuedAt: q.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("сериализация конверта: %w", err)
	}

	if err := q.rdb.LPush(ctx, q.pendingKey, raw).Err(); err != nil {
		return fmt.Errorf("публикация в %s: %w", q.pendingKey, err)
	}
	return nil
}

// Consume обрабатывает задания до отмены ctx.
// Каждые полсрока аренды возвращает в pending задания упавших обработчиков.
// Возвращает nil при отмене ctx, иначе — ошибку Redis.
func (q *Queue) Consume(ctx context.Context, handler Handler) error {
	lastRecover := q.now()
	for {
		if ctx.Err() != nil {
			return nil
		}

		if _, err := q.PromoteDue(ctx); err != nil && ctx.Err() == nil {
			q.logger.Warn("Ошибка переноса отложенных заданий", slog.String("error", err.Error()))
		}

		if q.now().Sub(lastRecover) >= q.cfg.Visibility/2 {
			lastRecover = q.now()
			if _, err := q.RecoverProcessing(ctx); err != nil && ctx.Err() == nil {
				q.logger.Warn("Ошибка возврата просроченных заданий", slog.String("error", err.Error()))
			}
		}

		raw, err := q.rdb.BLMove(ctx, q.pendingKey, q.processingKey, "RIGHT", "LEFT", q.cfg.PollTimeout).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("получение задания из %s: %w", q.pendingKey, err)
		}

		if err := q.lease(ctx, raw); err != nil {
			// Без аренды задание вернёт RecoverProcessing следующего цикла
			q.logger.Warn("Ошибка записи аренды задания", slog.String("error", err.Error()))
		}

		if err := q.process(ctx, raw, handler); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// process вызывает обработчик и подтверждает или отклоняет задание.
// Возвращаемая ошибка — только ошибка Redis.
func (q *Queue) process(ctx context.Context, raw string, handler Handler) error {
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		q.logger.Error("Повреждённый конверт задания, перенос в dead",
			slog.String("error", err.Error()),
		)
		return q.moveToDead(ctx, raw, raw)
	}

	handleErr := q.handle(ctx, raw, env, handler)
	if handleErr == nil {
		_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.LRem(ctx, q.processingKey, 1, raw)
			p.ZRem(ctx, q.leasesKey, raw)
			return nil
		})
		if err != nil {
			return fmt.Errorf("подтверждение задания %s: %w", env.ID, err)
		}
		return nil
	}

	return q.fail(ctx, raw, env, handleErr)
}

// lease записывает аренду задания raw на срок Visibility.
func (q *Queue) lease(ctx context.Context, raw string) error {
	deadline := float64(q.now().Add(q.cfg.Visibility).UnixMilli())
	return q.rdb.ZAdd(ctx, q.leasesKey, redis.Z{Score: deadline, Member: raw}).Err()
}

// handle вызывает обработчик, продлевая аренду задания, пока он работает.
func (q *Queue) handle(ctx context.Context, raw string, env Envelope, handler Handler) error {
	done := make(chan struct{})
	renewed := make(chan struct{})
	go func() {
		defer close(renewed)
		ticker := time.NewTicker(q.cfg.Visibility / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				deadline := float64(q.now().Add(q.cfg.Visibility).UnixMilli())
				// XX: аренду подтверждённого задания не воскрешаем
				err := q.rdb.ZAddXX(ctx, q.leasesKey, redis.Z{Score: deadline, Member: raw}).Err()
				if err != nil && ctx.Err() == nil {
					q.logger.Warn("Ошибка продления аренды задания",
						slog.String("job_id", env.ID),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}()

	err := handler(ctx, env.Payload)
	close(done)
	<-renewed
	return err
}

// fail планирует повтор с экспоненциальной задержкой или переносит задание в dead.
func (q *Queue) fail(ctx context.Context, raw string, env Envelope, cause error) error {
	env.Attempts++
	env.LastError = cause.Error()

	next, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("сериализация конверта %s: %w", env.ID, err)
	}

	if IsPermanent(cause) || env.Attempts >= q.cfg.MaxAttempts {
		q.logger.Warn("Задание перенесено в dead",
			slog.String("job_id", env.ID),
			slog.Int("attempts", env.Attempts),
			slog.String("error", env.LastError),
		)
		return q.moveToDead(ctx, raw, string(next))
	}

	delay := Backoff(q.cfg.Backoff, env.Attempts)
	q.logger.Info("Повтор задания запланирован",
		slog.String("job_id", env.ID),
		slog.Int("attempts", env.Attempts),
		slog.Duration("delay", delay),
		slog.String("error", env.LastError),
	)

	score := float64(q.now().Add(delay).UnixMilli())
	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, q.processingKey, 1, raw)
		p.ZRem(ctx, q.leasesKey, raw)
		p.ZAdd(ctx, q.delayedKey, redis.Z{Score: score, Member: string(next)})
		return nil
	})
	if err != nil {
		return fmt.Errorf("планирование повтора %s: %w", env.ID, err)
	}
	return nil
}

// moveToDead атомарно убирает задание из processing и кладёт в dead.
func (q *Queue) moveToDead(ctx context.Context, raw, dead string) error {
	_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, q.processingKey, 1, raw)
		p.ZRem(ctx, q.leasesKey, raw)
		p.LPush(ctx, q.deadKey, dead)
		return nil
	})
	if err != nil {
		return fmt.Errorf("перенос задания в %s: %w", q.deadKey, err)
	}
	return nil
}

// PromoteDue переносит задания, у которых истекла задержка, в pending.
func (q *Queue) PromoteDue(ctx context.Context) (int, error) {
	n, err := promoteScript.Run(ctx, q.rdb,
		[]string{q.delayedKey, q.pendingKey},
		q.now().UnixMilli(), promoteBatch,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("перенос из %s: %w", q.delayedKey, err)
	}
	return n, nil
}

// RecoverProcessing возвращает в pending задания из processing, аренда
// которых истекла: их обработчики завершились аварийно. Заданиям без
// аренды выдаётся новая, поэтому задания живых обработчиков остаются
// на месте. Вызывается при запуске потребителей и периодически из Consume.
func (q *Queue) RecoverProcessing(ctx context.Context) (int, error) {
	now := q.now()
	moved, err := recoverScript.Run(ctx, q.rdb,
		[]string{q.processingKey, q.leasesKey, q.pendingKey},
		now.UnixMilli(), now.Add(q.cfg.Visibility).UnixMilli(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("восстановление %s: %w", q.processingKey, err)
	}

	if moved > 0 {
		q.logger.Warn("Задания с истёкшей арендой возвращены в очередь", slog.Int("count", moved))
	}
	return moved, nil
}

// Stats возвращает длины списков очереди.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	var (
		pending, processing, dead *redis.IntCmd
		delayed                   *redis.IntCmd
	)
	_, err := q.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		pending = p.LLen(ctx, q.pendingKey)
		processing = p.LLen(ctx, q.processingKey)
		delayed = p.ZCard(ctx, q.delayedKey)
		dead = p.LLen(ctx, q.deadKey)
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("статистика очереди %s: %w", q.cfg.Name, err)
	}
	return Stats{
		Pending:    pending.Val(),
		Processing: processing.Val(),
		Delayed:    delayed.Val(),
		Dead:       dead.Val(),
	}, nil
}

// Backoff вычисляет задержку повтора после attempts неудачных попыток:
// base, 2·base, 4·base, ... не более maxBackoff.
func Backoff(base time.Duration, attempts int) time.Duration {
	if base <= 0 || attempts < 1 {
		return 0
	}
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
