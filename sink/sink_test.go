package sink

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/Abhaythakor/fingerprintweb/model"
	"github.com/Abhaythakor/fingerprintweb/util"
)

type fakeSink struct {
	name       string
	startErr   error
	publishErr error
	closeErr   error
	published  []string
	closed     bool
}

func (f *fakeSink) Start(ctx context.Context) error { return f.startErr }
func (f *fakeSink) Publish(ctx context.Context, r model.Result) error {
	f.published = append(f.published, r.URL)
	return f.publishErr
}
func (f *fakeSink) Close() error {
	f.closed = true
	return f.closeErr
}
func (f *fakeSink) Name() string { return f.name }

func TestFanout(t *testing.T) {
	ok := &fakeSink{name: "ok"}
	down := &fakeSink{name: "down", startErr: errors.New("unreachable")}
	flaky := &fakeSink{name: "flaky", publishErr: errors.New("boom"), closeErr: errors.New("flush failed")}

	f := Start(context.Background(), []Sink{ok, down, flaky})
	if f.Len() != 2 {
		t.Fatalf("Expected 2 running sinks, got %d", f.Len())
	}

	f.Publish(context.Background(), model.Result{URL: "http://a"})
	f.Publish(context.Background(), model.Result{URL: "http://b"})
	if len(ok.published) != 2 || len(flaky.published) != 2 || len(down.published) != 0 {
		t.Errorf("Unexpected deliveries ok=%v flaky=%v down=%v", ok.published, flaky.published, down.published)
	}

	err := f.Close()
	if err == nil || !strings.Contains(err.Error(), "flaky: flush failed") {
		t.Errorf("Expected joined close error, got %v", err)
	}
	if !ok.closed || !flaky.closed || down.closed {
		t.Error("Only started sinks should be closed")
	}

	var nilFanout *Fanout
	nilFanout.Publish(context.Background(), model.Result{})
	if nilFanout.Len() != 0 || nilFanout.Close() != nil {
		t.Error("nil Fanout must be inert")
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSink(util.NewLogger(&buf, util.LevelInfo, "test", false))
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	r := model.Result{URL: "http://a.com", Matches: []model.Match{{Name: "Nginx", Origin: model.SignalHeader}}}
	if err := s.Publish(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"url":"http://a.com"`) || !strings.Contains(buf.String(), `"app":"Nginx"`) {
		t.Errorf("Unexpected log output %q", buf.String())
	}
	if s.Name() != "log" || s.Close() != nil {
		t.Error("Unexpected Name/Close")
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("SINKS", "log, kafka,postgres")
	sinks, err := FromEnv("scan-1")
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	if strings.Join(names, ",") != "log,kafka,postgres" {
		t.Errorf("Unexpected sinks %v", names)
	}

	t.Setenv("SINKS", "")
	if sinks, err := FromEnv("scan-1"); err != nil || len(sinks) != 0 {
		t.Errorf("Expected no sinks, got %v %v", sinks, err)
	}

	t.Setenv("SINKS", "log,s3")
	if _, err := FromEnv("scan-1"); err == nil {
		t.Error("Expected error for unknown sink")
	}
}

func TestNewKafkaSinkFromEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("KAFKA_TOPIC", "fp.results")
	t.Setenv("KAFKA_ACKS", "")
	t.Setenv("KAFKA_TLS_SKIP_VERIFY", "true")

	s := NewKafkaSinkFromEnv("scan-1")
	if strings.Join(s.config.Brokers, ",") != "k1:9092,k2:9092" {
		t.Errorf("Brokers = %v", s.config.Brokers)
	}
	if s.config.Topic != "fp.results" || s.config.Acks != "all" || !s.config.TLSSkipVerify {
		t.Errorf("Unexpected config %+v", s.config)
	}

	t.Setenv("KAFKA_BROKERS", "")
	if got := NewKafkaSinkFromEnv("scan-1").config.Brokers; len(got) != 1 || got[0] != "localhost:9092" {
		t.Errorf("Expected default broker, got %v", got)
	}
}

func TestKafkaConfigMap(t *testing.T) {
	tests := []struct {
		name   string
		config KafkaConfig
		want   map[string]kafka.ConfigValue
		absent []string
	}{
		{
			name:   "plain",
			config: KafkaConfig{Brokers: []string{"a:1", "b:2"}, Acks: "all"},
			want:   map[string]kafka.ConfigValue{"bootstrap.servers": "a:1,b:2", "acks": "all"},
			absent: []string{"security.protocol", "compression.type"},
		},
		{
			name:   "sasl",
			config: KafkaConfig{Brokers: []string{"a:1"}, SASLMechanism: "PLAIN", SASLUser: "u", SASLPassword: "p", Compression: "zstd"},
			want: map[string]kafka.ConfigValue{
				"security.protocol": "SASL_SSL", "sasl.mechanism": "PLAIN",
				"sasl.username": "u", "sasl.password": "p", "compression.type": "zstd",
			},
		},
		{
			name:   "tls only",
			config: KafkaConfig{Brokers: []string{"a:1"}, TLSCAPath: "/ca.pem", TLSSkipVerify: true},
			want: map[string]kafka.ConfigValue{
				"security.protocol": "SSL", "ssl.ca.location": "/ca.pem",
				"ssl.endpoint.identification.algorithm": "none",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cm := (&KafkaSink{config: tt.config}).configMap()
			for k, v := range tt.want {
				if cm[k] != v {
					t.Errorf("%s = %v, want %v", k, cm[k], v)
				}
			}
			for _, k := range tt.absent {
				if _, ok := cm[k]; ok {
					t.Errorf("%s should not be set", k)
				}
			}
		})
	}
}

func TestKafkaMessage(t *testing.T) {
	s := NewKafkaSink([]string{"a:1"}, "fp.results", "scan-42")
	msg, err := s.message(model.Result{URL: "https://a.com/", Matches: []model.Match{{Name: "React"}}})
	if err != nil {
		t.Fatal(err)
	}
	if string(msg.Key) != "https://a.com/" || *msg.TopicPartition.Topic != "fp.results" {
		t.Errorf("Unexpected key/topic %q %q", msg.Key, *msg.TopicPartition.Topic)
	}
	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["scan_id"] != "scan-42" || headers["schema"] != Schema {
		t.Errorf("Unexpected headers %v", headers)
	}
	if !strings.Contains(string(msg.Value), `"app":"React"`) {
		t.Errorf("Unexpected value %s", msg.Value)
	}
}

func TestKafkaSinkWithoutProducer(t *testing.T) {
	s := NewKafkaSink([]string{"a:1"}, "t", "scan-1")
	if s.Name() != "kafka" {
		t.Errorf("Name() = %q", s.Name())
	}
	if err := s.Publish(context.Background(), model.Result{URL: "http://a"}); !errors.Is(err, errProducerNotStarted) {
		t.Errorf("Expected errProducerNotStarted, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() without Start should not error: %v", err)
	}
}
