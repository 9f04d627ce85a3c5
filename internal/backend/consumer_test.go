package backend_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	amqp "github.com/rabbitmq/amqp091-go"

	"procodus.dev/tempmon/internal/backend"
	"procodus.dev/tempmon/internal/ingest"
	"procodus.dev/tempmon/internal/store"
	"procodus.dev/tempmon/internal/submission"
	"procodus.dev/tempmon/pkg/logger"
	"procodus.dev/tempmon/pkg/metrics"
	"procodus.dev/tempmon/pkg/mq/mock"
)

// acknowledger records how each delivery was settled.
type acknowledger struct {
	mu      sync.Mutex
	acked   []uint64
	nacked  []uint64
	requeue []bool
}

func (a *acknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *acknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = append(a.nacked, tag)
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *acknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *acknowledger) settled() (acked, nacked []uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]uint64(nil), a.acked...), append([]uint64(nil), a.nacked...)
}

type submitCall struct {
	sub    submission.Submission
	origin ingest.Origin
}

type fakeIngester struct {
	mu    sync.Mutex
	calls []submitCall
	err   error
}

func (f *fakeIngester) Submit(_ context.Context, sub submission.Submission, origin ingest.Origin) (ingest.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, submitCall{sub: sub, origin: origin})
	if f.err != nil {
		return ingest.Receipt{}, f.err
	}
	return ingest.Receipt{ID: int64(len(f.calls))}, nil
}

func (f *fakeIngester) Calls() []submitCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submitCall(nil), f.calls...)
}

var _ = Describe("Consumer", func() {
	Describe("NewConsumer", func() {
		DescribeTable("rejects incomplete configuration",
			func(cfg *backend.ConsumerConfig, msg string) {
				consumer, err := backend.NewConsumer(cfg)
				Expect(err).To(MatchError(ContainSubstring(msg)))
				Expect(consumer).To(BeNil())
			},
			Entry("nil config", nil, "config cannot be nil"),
			Entry("no logger", &backend.ConsumerConfig{Client: mock.NewMockClient(), Ingester: &fakeIngester{}, QueueName: "q"}, "logger cannot be nil"),
			Entry("no client", &backend.ConsumerConfig{Logger: logger.Discard(), Ingester: &fakeIngester{}, QueueName: "q"}, "mq client cannot be nil"),
			Entry("no ingester", &backend.ConsumerConfig{Logger: logger.Discard(), Client: mock.NewMockClient(), QueueName: "q"}, "ingester cannot be nil"),
			Entry("no queue", &backend.ConsumerConfig{Logger: logger.Discard(), Client: mock.NewMockClient(), Ingester: &fakeIngester{}}, "queue name cannot be empty"),
		)
	})

	Context("when running", func() {
		var (
			client     *mock.MockClient
			deliveries chan amqp.Delivery
			ingester   *fakeIngester
			ack        *acknowledger
			m          *metrics.MQMetrics
			consumer   *backend.Consumer
		)

		BeforeEach(func() {
			deliveries = make(chan amqp.Delivery)
			client = mock.NewMockClient()
			client.ConsumeChannel = deliveries
			ingester = &fakeIngester{}
			ack = &acknowledger{}
			m = metrics.NewMQMetrics("test", prometheus.NewRegistry())

			var err error
			consumer, err = backend.NewConsumer(&backend.ConsumerConfig{
				Logger:     logger.Discard(),
				Client:     client,
				Ingester:   ingester,
				Metrics:    m,
				QueueName:  "q",
				RetryDelay: 10 * time.Millisecond,
			})
			Expect(err).NotTo(HaveOccurred())
			consumer.Start(context.Background())
			DeferCleanup(func() { Expect(consumer.Stop()).To(Succeed()) })
		})

		deliver := func(tag uint64, body string, headers amqp.Table) {
			d := amqp.Delivery{
				Acknowledger: ack,
				DeliveryTag:  tag,
				Body:         []byte(body),
				Headers:      headers,
			}
			Eventually(deliveries).Should(BeSent(d))
		}

		It("acks a stored submission and passes the header identity on", func() {
			deliver(1, `{"type":"TEMPERATURE","temperature":22}`, amqp.Table{
				backend.HeaderMACAddress: "AA:BB:CC:DD:EE:FF",
				backend.HeaderDeviceName: "Office",
				backend.HeaderSourceIP:   "10.1.2.3",
			})

			Eventually(func() []uint64 { acked, _ := ack.settled(); return acked }).Should(Equal([]uint64{1}))
			calls := ingester.Calls()
			Expect(calls).To(HaveLen(1))
			Expect(calls[0].origin).To(Equal(ingest.Origin{
				Transport:  ingest.TransportAMQP,
				RemoteIP:   "10.1.2.3",
				MACAddress: "AA:BB:CC:DD:EE:FF",
				DeviceName: "Office",
			}))
			Expect(testutil.ToFloat64(m.DeliveriesTotal.WithLabelValues("q", metrics.OutcomeAcked))).To(Equal(1.0))
		})

		It("acks and drops an undecodable message without ingesting it", func() {
			deliver(2, `{"type":"PRESSURE"}`, nil)

			Eventually(func() []uint64 { acked, _ := ack.settled(); return acked }).Should(Equal([]uint64{2}))
			Expect(ingester.Calls()).To(BeEmpty())
			Expect(testutil.ToFloat64(m.DeliveriesTotal.WithLabelValues("q", metrics.OutcomeDropped))).To(Equal(1.0))
		})

		It("acks and drops an empty submission", func() {
			ingester.mu.Lock()
			ingester.err = ingest.ErrEmptySubmission
			ingester.mu.Unlock()

			deliver(3, `{"type":"HUMIDITY"}`, nil)

			Eventually(func() []uint64 { acked, _ := ack.settled(); return acked }).Should(Equal([]uint64{3}))
		})

		It("rejects without requeue when the store fails", func() {
			ingester.mu.Lock()
			ingester.err = &store.Error{Op: store.OpSave, Err: errors.New("connection refused")}
			ingester.mu.Unlock()

			deliver(4, `{"type":"HUMIDITY","humidity":50}`, nil)

			Eventually(func() []uint64 { _, nacked := ack.settled(); return nacked }).Should(Equal([]uint64{4}))
			ack.mu.Lock()
			Expect(ack.requeue).To(Equal([]bool{false}))
			ack.mu.Unlock()
			Expect(testutil.ToFloat64(m.DeliveriesTotal.WithLabelValues("q", metrics.OutcomeRejected))).To(Equal(1.0))
		})

		It("subscribes again when the delivery channel closes", func() {
			Eventually(client.ConsumeCount).Should(Equal(1))
			close(deliveries)
			Eventually(client.ConsumeCount).Should(BeNumerically(">=", 2))
		})
	})

	It("waits for the client to become ready before subscribing", func() {
		client := mock.NewMockClient()
		client.NotReady = true

		consumer, err := backend.NewConsumer(&backend.ConsumerConfig{
			Logger:     logger.Discard(),
			Client:     client,
			Ingester:   &fakeIngester{},
			QueueName:  "q",
			RetryDelay: 10 * time.Millisecond,
		})
		Expect(err).NotTo(HaveOccurred())
		consumer.Start(context.Background())
		defer func() { _ = consumer.Stop() }()

		Consistently(client.ConsumeCount, 100*time.Millisecond).Should(BeZero())
	})
})
