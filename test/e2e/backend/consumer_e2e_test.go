package backend

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/tempmon/internal/backend"
	"procodus.dev/tempmon/internal/producer"
	"procodus.dev/tempmon/internal/store"
	"procodus.dev/tempmon/internal/submission"
	"procodus.dev/tempmon/pkg/generator"
	"procodus.dev/tempmon/pkg/mq"
)

var _ = Describe("Queue ingestion E2E", func() {
	var (
		client *mq.Client
		ctx    context.Context
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)

		var err error
		client, err = mq.New(rabbitmq.ClientConfig(testLogger, queueName))
		Expect(err).NotTo(HaveOccurred())
		Eventually(client.Ready).WithTimeout(10 * time.Second).Should(BeTrue())
	})

	AfterEach(func() {
		cancel()
		_ = client.Close()
	})

	measurements := func() []store.Measurement {
		return allMeasurements(nil).Measurements
	}

	It("stores submissions published by the simulator sink", func() {
		sink, err := producer.NewAMQPSink(client)
		Expect(err).NotTo(HaveOccurred())

		sensor, err := generator.NewSensor("Server Room")
		Expect(err).NotTo(HaveOccurred())

		reading := generator.NewReadingGenerator().GenerateReading(time.Now())
		Expect(sink.Send(ctx, sensor, producer.Build(submission.TagTemperatureHumidity, reading))).To(Succeed())

		Eventually(measurements).WithTimeout(10 * time.Second).Should(HaveLen(1))

		row := measurements()[0]
		Expect(*row.MACAddress).To(Equal(sensor.MACAddress))
		Expect(*row.DeviceName).To(Equal("Server Room"))
		Expect(*row.IPAddress).To(Equal(sensor.IPAddress))
		Expect(*row.Temperature).To(Equal(reading.Temperature))
		Expect(*row.Humidity).To(Equal(reading.Humidity))
	})

	It("drops undecodable messages and keeps consuming", func() {
		Expect(client.Publish(ctx, mq.Message{Body: []byte("not json")})).To(Succeed())
		Expect(client.Publish(ctx, mq.Message{
			Body:    []byte(`{"type":"HUMIDITY","humidity":44.5}`),
			Headers: map[string]string{backend.HeaderDeviceName: "Bathroom"},
		})).To(Succeed())

		Eventually(measurements).WithTimeout(10 * time.Second).Should(HaveLen(1))
		Consistently(measurements).WithTimeout(time.Second).Should(HaveLen(1))
		Expect(*measurements()[0].DeviceName).To(Equal("Bathroom"))
	})
})
