package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/evetabi/wagerbot/internal/domain"
	"github.com/evetabi/wagerbot/internal/events"
)

func sampleEvent() events.Event {
	now := time.Now().UTC()
	m := &domain.Market{
		ID:        uuid.New(),
		Title:     "Will BTC hit 100k?",
		Options:   domain.StringList{"Yes", "No"},
		EndDate:   now.Add(time.Hour),
		Status:    domain.StatusActive,
		TotalPool: decimal.RequireFromString("0.4"),
	}
	bet := &domain.Bet{ID: uuid.New(), MarketID: m.ID, UserID: "alice", Option: "Yes", Amount: decimal.RequireFromString("0.1")}
	return events.New(events.BetPlaced, m, now).WithBet(bet)
}

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	c.msgs = append(c.msgs, msgs...)
	return c.err
}

func TestKafkaPublisher_KeysByMarket(t *testing.T) {
	w := &captureWriter{}
	e := sampleEvent()
	if err := events.NewKafkaPublisher(w).Publish(context.Background(), e); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("wrote %d messages, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != e.MarketID.String() {
		t.Errorf("key = %s, want market id %s", msg.Key, e.MarketID)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != string(events.BetPlaced) {
		t.Errorf("headers = %v, want type=bet_placed", msg.Headers)
	}
	var decoded events.Event
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if decoded.Bet == nil || !decoded.Bet.Amount.Equal(decimal.RequireFromString("0.1")) {
		t.Errorf("decoded bet = %+v", decoded.Bet)
	}
	if decoded.Market == nil || !decoded.Market.TotalPool.Equal(decimal.RequireFromString("0.4")) {
		t.Errorf("decoded market = %+v", decoded.Market)
	}
}

func TestKafkaPublisher_WrapsWriteError(t *testing.T) {
	boom := errors.New("broker down")
	err := events.NewKafkaPublisher(&captureWriter{err: boom}).Publish(context.Background(), sampleEvent())
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
}

type fakeRedis struct {
	channel string
	payload []byte
	err     error
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.payload, _ = message.([]byte)
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func TestRedisPublisher(t *testing.T) {
	r := &fakeRedis{}
	if err := events.NewRedisPublisher(r, "").Publish(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if r.channel != events.Channel {
		t.Errorf("channel = %q, want %q", r.channel, events.Channel)
	}
	if !json.Valid(r.payload) {
		t.Errorf("payload is not JSON: %s", r.payload)
	}

	r.err = errors.New("READONLY")
	if err := events.NewRedisPublisher(r, "custom").Publish(context.Background(), sampleEvent()); err == nil {
		t.Error("Publish should surface redis errors")
	}
}

func TestFanout_DeliversToAllAndJoinsErrors(t *testing.T) {
	var got []string
	ok := events.PublisherFunc(func(context.Context, events.Event) error {
		got = append(got, "ok")
		return nil
	})
	boom := errors.New("boom")
	bad := events.PublisherFunc(func(context.Context, events.Event) error {
		got = append(got, "bad")
		return boom
	})

	err := events.Fanout{bad, nil, ok}.Publish(context.Background(), sampleEvent())
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
	if len(got) != 2 || got[1] != "ok" {
		t.Errorf("delivery order = %v, want [bad ok]", got)
	}
}
