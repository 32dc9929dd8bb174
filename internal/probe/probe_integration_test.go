// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DSNGuard Contributors

//go:build integration

package probe_test

import (
	"context"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dsnguard/dsnguard/internal/audit"
	"github.com/dsnguard/dsnguard/internal/dsn"
	"github.com/dsnguard/dsnguard/internal/probe"
	"github.com/dsnguard/dsnguard/pkg/errutil"
)

var _ = Describe("Probe", Ordered, func() {
	var (
		container *postgres.PostgresContainer
		connStr   string
	)

	BeforeAll(func() {
		ctx := context.Background()
		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("dsnguard_test"),
			postgres.WithUsername("dsnguard"),
			postgres.WithPassword("dsnguard"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		Expect(err).NotTo(HaveOccurred())

		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if container != nil {
			_ = container.Terminate(context.Background())
		}
	})

	resolve := func(raw string) dsn.Decision {
		r, err := dsn.NewResolver(dsn.DefaultConfig(),
			dsn.WithLookup(dsn.MapLookup(map[string]string{"DATABASE_URL": raw})),
			dsn.WithSink(audit.Discard),
		)
		Expect(err).NotTo(HaveOccurred())
		d, err := r.Resolve(context.Background(), dsn.Options{Strict: true, Role: "probe", App: "it"})
		Expect(err).NotTo(HaveOccurred())
		return d
	}

	Describe("Check", func() {
		It("connects with the resolved DSN and sees its application name", func() {
			d := resolve(connStr)

			report, err := probe.Check(context.Background(), nil, d.DSN, probe.Expect{
				Database:         d.Database,
				MinServerVersion: ">= 16",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Database).To(Equal("dsnguard_test"))
			Expect(report.User).To(Equal("dsnguard"))
			Expect(report.ApplicationName).To(Equal("it:probe"))
			Expect(report.Version().Major()).To(BeNumerically("==", 16))
		})

		It("rejects a server older than required", func() {
			_, err := probe.Check(context.Background(), nil, connStr, probe.Expect{MinServerVersion: ">= 99"})
			Expect(err).To(HaveOccurred())
			Expect(errutil.Code(err)).To(Equal("SERVER_VERSION_UNSUPPORTED"))
		})
	})

	Describe("Connect", func() {
		It("classifies a missing database", func() {
			missing := strings.Replace(connStr, "/dsnguard_test", "/does_not_exist", 1)

			_, err := probe.Connect(context.Background(), missing)
			Expect(err).To(HaveOccurred())
			Expect(errutil.Code(err)).To(Equal("DB_NOT_FOUND"))
		})

		It("classifies a wrong password", func() {
			wrong := strings.Replace(connStr, "dsnguard:dsnguard@", "dsnguard:wrong@", 1)

			_, err := probe.Connect(context.Background(), wrong)
			Expect(err).To(HaveOccurred())
			Expect(errutil.Code(err)).To(Equal("AUTH_FAILED"))
		})
	})
})
