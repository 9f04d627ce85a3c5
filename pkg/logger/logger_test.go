package logger_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/tempmon/pkg/logger"
)

func decode(buf *bytes.Buffer) map[string]any {
	var entry map[string]any
	Expect(json.Unmarshal(buf.Bytes(), &entry)).To(Succeed())
	return entry
}

var _ = Describe("Logger", func() {
	Describe("New", func() {
		It("falls back to defaults for a nil config", func() {
			Expect(logger.New(nil)).NotTo(BeNil())
		})

		It("writes JSON records with the standard keys", func() {
			buf := &bytes.Buffer{}
			log := logger.New(&logger.Config{Output: buf})
			log.Info("stored measurement", "id", 7)

			entry := decode(buf)
			Expect(entry).To(HaveKey("time"))
			Expect(entry).To(HaveKeyWithValue("level", "INFO"))
			Expect(entry).To(HaveKeyWithValue("msg", "stored measurement"))
			Expect(entry).To(HaveKeyWithValue("id", float64(7)))
		})

		It("writes logfmt records in text format", func() {
			buf := &bytes.Buffer{}
			log := logger.New(&logger.Config{Output: buf, Format: logger.FormatText})
			log.Info("hello", "room", "Kitchen")

			Expect(buf.String()).To(ContainSubstring(`msg=hello`))
			Expect(buf.String()).To(ContainSubstring(`room=Kitchen`))
		})

		It("includes the source position when asked to", func() {
			buf := &bytes.Buffer{}
			log := logger.New(&logger.Config{Output: buf, AddSource: true})
			log.Info("with source")

			Expect(decode(buf)).To(HaveKey("source"))
		})
	})

	DescribeTable("level filtering",
		func(level slog.Level, logFunc func(*slog.Logger), shouldAppear bool) {
			buf := &bytes.Buffer{}
			logFunc(logger.New(&logger.Config{Level: level, Output: buf}))
			Expect(len(strings.TrimSpace(buf.String())) > 0).To(Equal(shouldAppear))
		},
		Entry("debug at debug", slog.LevelDebug, func(l *slog.Logger) { l.Debug("m") }, true),
		Entry("debug at info", slog.LevelInfo, func(l *slog.Logger) { l.Debug("m") }, false),
		Entry("warn at info", slog.LevelInfo, func(l *slog.Logger) { l.Warn("m") }, true),
		Entry("info at error", slog.LevelError, func(l *slog.Logger) { l.Info("m") }, false),
	)

	DescribeTable("ParseLevel",
		func(input string, expected slog.Level) {
			Expect(logger.ParseLevel(input)).To(Equal(expected))
		},
		Entry("debug", "debug", slog.LevelDebug),
		Entry("upper case", "DEBUG", slog.LevelDebug),
		Entry("padded", " warn ", slog.LevelWarn),
		Entry("warning", "warning", slog.LevelWarn),
		Entry("error", "error", slog.LevelError),
		Entry("invalid defaults to info", "verbose", slog.LevelInfo),
		Entry("empty defaults to info", "", slog.LevelInfo),
	)

	DescribeTable("ParseFormat",
		func(input string, expected logger.Format) {
			Expect(logger.ParseFormat(input)).To(Equal(expected))
		},
		Entry("text", "text", logger.FormatText),
		Entry("TEXT", "TEXT", logger.FormatText),
		Entry("json", "json", logger.FormatJSON),
		Entry("unknown", "yaml", logger.FormatJSON),
	)

	Describe("Component", func() {
		It("tags every record with the component", func() {
			buf := &bytes.Buffer{}
			log := logger.Component(logger.New(&logger.Config{Output: buf}), "store")
			log.Info("ready")

			Expect(decode(buf)).To(HaveKeyWithValue("component", "store"))
		})
	})

	Describe("Discard", func() {
		It("returns a usable logger", func() {
			Expect(func() { logger.Discard().Error("dropped") }).NotTo(Panic())
		})
	})
})
