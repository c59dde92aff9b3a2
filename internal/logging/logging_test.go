package logging

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Logger", func() {
	var (
		buf    *bytes.Buffer
		logger logr.Logger
	)

	newLogger := func(verbosity int) logr.Logger {
		l := New(buf, verbosity)
		l.GetSink().(*sink).now = func() time.Time {
			return time.Date(2021, 3, 1, 8, 0, 0, 123e6, time.UTC)
		}
		return l
	}

	BeforeEach(func() {
		buf = new(bytes.Buffer)
		logger = newLogger(0)
	})

	It("writes timestamp, level and message", func() {
		logger.Info("Data collected", "features", 3)
		Expect(buf.String()).To(Equal("2021-03-01 08:00:00,123 INFO Data collected \"features\"=3\n"))
	})

	It("quotes string values", func() {
		logger.Info("CSV Created", "path", "out dir/vacinacao.csv", "empty", "", "plain", "ok")
		Expect(buf.String()).To(ContainSubstring(`"path"="out dir/vacinacao.csv" "empty"="" "plain"="ok"`))
	})

	It("adds the error to error lines", func() {
		logger.Error(errors.New("boom"), "run aborted", "stage", "fetch")
		Expect(buf.String()).To(Equal("2021-03-01 08:00:00,123 ERROR run aborted \"error\"=\"boom\" \"stage\"=\"fetch\"\n"))
	})

	It("drops debug lines below the verbosity", func() {
		logger.V(1).Info("hidden")
		Expect(buf.Len()).To(BeZero())

		logger = newLogger(1)
		logger.V(1).Info("shown")
		Expect(buf.String()).To(ContainSubstring("DEBUG shown"))
	})

	It("carries names and values", func() {
		logger.WithName("report").WithValues("run", 7).Info("merged", "rows", 3)
		Expect(buf.String()).To(ContainSubstring(`INFO report: merged "run"=7 "rows"=3`))
	})

	It("omits the key/value part when there is none", func() {
		logger.Info("CSV unchanged")
		Expect(buf.String()).To(Equal("2021-03-01 08:00:00,123 INFO CSV unchanged\n"))
	})

	It("joins nested names", func() {
		logger.WithName("tasks").WithName("fetch").Info("Data collected")
		Expect(buf.String()).To(ContainSubstring("INFO tasks/fetch: Data collected"))
	})

	It("does not share values between derived loggers", func() {
		base := logger.WithValues("run", 1)
		base.WithValues("stage", "merge").Info("a")
		base.Info("b")
		Expect(buf.String()).To(ContainSubstring(`INFO b "run"=1` + "\n"))
	})

	It("marks a dangling key", func() {
		logger.Info("odd", "lonely")
		Expect(buf.String()).To(ContainSubstring(`"lonely"="<no-value>"`))
	})
})

var _ = Describe("Open", func() {
	It("creates the directory and appends", func() {
		path := filepath.Join(GinkgoT().TempDir(), "logs", "scraping.log")

		for _, line := range []string{"first\n", "second\n"} {
			f, err := Open(path)
			Expect(err).NotTo(HaveOccurred())
			_, err = f.WriteString(line)
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Close()).To(Succeed())
		}

		b, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(b)).To(Equal("first\nsecond\n"))
	})
})
