package stats

import (
	"context"
	"encoding/json"
	"fmt"
	kafkax "github.com/ariefcatur/storefront-payments/internal/kafka"
	"github.com/ariefcatur/storefront-payments/internal/orders"
	"github.com/ariefcatur/storefront-payments/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"log/slog"
	"strconv"
	"time"
)

const (
	dayLayout = "2006-01-02"
	maxDays   = 366
)

// Service folds settled-payment events into one Redis hash per day.
type Service struct {
	Redis *redis.Client
	Name  string // dedup namespace
	Log   *slog.Logger
}

type DailySales struct {
	Date     string `json:"date"`
	Approved int64  `json:"approved"`
	Rejected int64  `json:"rejected"`
	Revenue  int64  `json:"revenue"`
}

// HandlePaymentEvent is installed as the consumer handler for the payment.settled topic.
func (s *Service) HandlePaymentEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		s.log().Warn("skipping undecodable event", "partition", m.Partition, "offset", m.Offset, "err", err)
		return nil
	}
	if env.EventType != orders.EventPaymentApproved && env.EventType != orders.EventPaymentRejected {
		return nil
	}
	p, err := kafkax.UnwrapPayload[orders.PaymentSettledPayload](env.Payload)
	if err != nil {
		s.log().Warn("skipping event with bad payload", "event_id", env.EventID, "err", err)
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.Name, env.EventID)
	fresh, err := s.Redis.SetNX(ctx, dkey, "1", redisx.TTLDedup).Result()
	if err != nil {
		return fmt.Errorf("dedup: %w", err)
	}
	if !fresh {
		return nil
	}

	day := p.ConfirmedAt
	if day.IsZero() {
		day = env.OccurredAt
	}
	key := fmt.Sprintf(redisx.KeySalesDaily, day.UTC().Format(dayLayout))

	pipe := s.Redis.TxPipeline()
	if env.EventType == orders.EventPaymentApproved {
		pipe.HIncrBy(ctx, key, "approved", 1)
		pipe.HIncrBy(ctx, key, "revenue", p.Amount)
	} else {
		pipe.HIncrBy(ctx, key, "rejected", 1)
	}
	pipe.Expire(ctx, key, redisx.TTLSalesDaily)
	if _, err := pipe.Exec(ctx); err != nil {
		// release the marker so the redelivered message is counted
		_ = s.Redis.Del(ctx, dkey).Err()
		return fmt.Errorf("increment %s: %w", key, err)
	}
	return nil
}

// Range returns the days ending at to, oldest first. Days without sales come back zeroed.
func (s *Service) Range(ctx context.Context, to time.Time, days int) ([]DailySales, error) {
	if days <= 0 {
		days = 7
	}
	if days > maxDays {
		days = maxDays
	}

	pipe := s.Redis.Pipeline()
	out := make([]DailySales, days)
	cmds := make([]*redis.MapStringStringCmd, days)
	for i := 0; i < days; i++ {
		date := to.UTC().AddDate(0, 0, i-days+1).Format(dayLayout)
		out[i].Date = date
		cmds[i] = pipe.HGetAll(ctx, fmt.Sprintf(redisx.KeySalesDaily, date))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("read sales: %w", err)
	}

	for i, cmd := range cmds {
		fields := cmd.Val()
		out[i].Approved = parseInt(fields["approved"])
		out[i].Rejected = parseInt(fields["rejected"])
		out[i].Revenue = parseInt(fields["revenue"])
	}
	return out, nil
}

func (s *Service) log() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
