package store_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/tempmon/internal/store"
	"procodus.dev/tempmon/pkg/logger"
)

var _ = Describe("Database", func() {
	Describe("NewDB", func() {
		It("rejects a nil config", func() {
			db, err := store.NewDB(nil)
			Expect(err).To(MatchError(ContainSubstring("config cannot be nil")))
			Expect(db).To(BeNil())
		})

		It("rejects a config without logger", func() {
			db, err := store.NewDB(&store.DBConfig{Host: "localhost", Port: 5432})
			Expect(err).To(MatchError(ContainSubstring("logger cannot be nil")))
			Expect(db).To(BeNil())
		})

		It("fails when the host cannot be resolved", func() {
			db, err := store.NewDB(&store.DBConfig{
				Logger:   logger.Discard(),
				Host:     "invalid-host-that-does-not-exist",
				Port:     5432,
				User:     "postgres",
				Password: "postgres",
				DBName:   "TempMon",
				SSLMode:  "disable",
			})
			Expect(err).To(HaveOccurred())
			Expect(db).To(BeNil())
		})
	})

	Describe("DSN", func() {
		It("renders every connection field", func() {
			cfg := &store.DBConfig{
				Host:     "db",
				Port:     5433,
				User:     "postgres",
				Password: "secret",
				DBName:   "TempMon",
				SSLMode:  "disable",
			}
			Expect(cfg.DSN()).To(Equal("host=db port=5433 user=postgres password=secret dbname=TempMon sslmode=disable"))
		})
	})

	Describe("CloseDB", func() {
		It("accepts a nil database", func() {
			Expect(store.CloseDB(nil, nil)).To(Succeed())
		})
	})
})
