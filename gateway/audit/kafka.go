package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	log "github.com/sirupsen/logrus"
)

// queueCapacity bounds the in-flight event queue; once full, Publish drops
// the oldest queued event to make room for the new one.
const queueCapacity = 1024

// KafkaSink publishes audit events to a Kafka topic via franz-go: records
// are handed to the client asynchronously and delivery failures are logged,
// never propagated back to the request path.
type KafkaSink struct {
	client *kgo.Client
	topic  string
	events chan Event
	done   chan struct{}
}

// NewKafkaSink builds a KafkaSink seeded from the given broker list and
// starts its drain goroutine.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID("flowgate-audit"),
	)
	if err != nil {
		return nil, err
	}

	s := &KafkaSink{
		client: client,
		topic:  topic,
		events: make(chan Event, queueCapacity),
		done:   make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// ParseBrokers splits a KAFKA_HOSTS-style value into a broker list.
func ParseBrokers(hosts string) []string {
	var out []string
	for _, h := range strings.Split(hosts, ",") {
		h = strings.TrimSpace(h)
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}

// Publish implements Sink. It never blocks: when the queue is full the
// oldest queued event is dropped to make room.
func (s *KafkaSink) Publish(e Event) {
	select {
	case s.events <- e:
		return
	default:
	}

	select {
	case <-s.events:
	default:
	}
	select {
	case s.events <- e:
	default:
		log.WithField("api_id", e.APIID).Warn("audit: dropped event, queue still full after eviction")
	}
}

func (s *KafkaSink) run() {
	for {
		select {
		case e, ok := <-s.events:
			if !ok {
				return
			}
			s.produce(e)
		case <-s.done:
			return
		}
	}
}

func (s *KafkaSink) produce(e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		log.WithError(err).Error("audit: failed to marshal event")
		return
	}

	rec := &kgo.Record{Topic: s.topic, Key: []byte(e.APIID), Value: payload}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.client.Produce(ctx, rec, func(_ *kgo.Record, err error) {
		if err != nil {
			log.WithError(err).WithField("api_id", e.APIID).Error("audit: produce failed")
		}
	})
}

// Close stops the drain goroutine and closes the underlying client.
func (s *KafkaSink) Close() {
	close(s.done)
	s.client.Close()
}
