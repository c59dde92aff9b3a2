package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"vacinacao/internal/config"
)

var envKeys = []string{
	"SCRAPER_CONFIG", "ENV_VACC", "ENV_WEBHOOK", "BACKUP_DIR", "REPORT_PATH", "LOG_PATH",
	"LOG_VERBOSITY", "REPORT_TIMEZONE", "BACKUP_SCHEMA_POLICY", "HTTP_TIMEOUT", "FETCH_RETRIES",
	"FETCH_BACKOFF", "FETCH_MAX_BACKOFF", "RUN_TIMEOUT", "METRICS_TEXTFILE", "NOTIFY_USERNAME",
	"NOTIFY_AVATAR_URL", "NOTIFY_MAX_CONTENT", "NOTIFY_RATE", "OPENAI_API_KEY", "OPENAI_MODEL",
}

var _ = Describe("LoadConfig", func() {
	BeforeEach(func() {
		// GinkgoT().Setenv restores the previous value afterwards
		for _, k := range envKeys {
			GinkgoT().Setenv(k, "")
			Expect(os.Unsetenv(k)).To(Succeed())
		}
	})

	It("applies defaults", func() {
		cfg, err := config.LoadConfig()
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.FeedURL).To(BeEmpty())
		Expect(cfg.Webhooks).To(BeEmpty())
		Expect(cfg.BackupDir).To(Equal("backup"))
		Expect(cfg.ReportPath).To(Equal("vacinacao.csv"))
		Expect(cfg.LogPath).To(Equal("logs/scraping.log"))
		Expect(cfg.SchemaPolicy).To(Equal(config.SchemaPolicyUnion))
		Expect(cfg.HTTPTimeout).To(Equal(20 * time.Second))
		Expect(cfg.FetchRetries).To(Equal(3))
		Expect(cfg.RunTimeout).To(Equal(2 * time.Minute))
		Expect(cfg.NotifyUsername).To(Equal("Dados Vaccinacao"))
		Expect(cfg.NotifyMaxContent).To(Equal(2000))
		Expect(cfg.NotifyRate).To(Equal(2.0))
		Expect(cfg.Location).To(Equal(time.Local))

		Expect(cfg.Validate()).To(MatchError(config.ErrMissingFeedURL))
	})

	It("reads the environment", func() {
		GinkgoT().Setenv("ENV_VACC", " https://example.com/query?f=json ")
		GinkgoT().Setenv("ENV_WEBHOOK", "https://a.example/hook, ,https://b.example/hook,")
		GinkgoT().Setenv("REPORT_TIMEZONE", "Europe/Lisbon")
		GinkgoT().Setenv("FETCH_RETRIES", "5")
		GinkgoT().Setenv("FETCH_BACKOFF", "250ms")
		GinkgoT().Setenv("BACKUP_SCHEMA_POLICY", "STRICT")

		cfg, err := config.LoadConfig()
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Validate()).To(Succeed())

		Expect(cfg.FeedURL).To(Equal("https://example.com/query?f=json"))
		Expect(cfg.Webhooks).To(Equal([]string{"https://a.example/hook", "https://b.example/hook"}))
		Expect(cfg.Location.String()).To(Equal("Europe/Lisbon"))
		Expect(cfg.FetchRetries).To(Equal(5))
		Expect(cfg.FetchBackoff).To(Equal(250 * time.Millisecond))
		Expect(cfg.SchemaPolicy).To(Equal(config.SchemaPolicyStrict))
	})

	It("loads a .env file from the working directory", func() {
		dir := GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(dir, ".env"), []byte("ENV_VACC=https://dotenv.example/query\nFETCH_RETRIES=4\n"), 0644)).To(Succeed())
		wd, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(dir)).To(Succeed())
		DeferCleanup(os.Chdir, wd)

		cfg, err := config.LoadConfig()
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.FeedURL).To(Equal("https://dotenv.example/query"))
		Expect(cfg.FetchRetries).To(Equal(4))
	})

	It("lets the environment win over .env", func() {
		dir := GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(dir, ".env"), []byte("ENV_VACC=https://dotenv.example/query\n"), 0644)).To(Succeed())
		wd, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(dir)).To(Succeed())
		DeferCleanup(os.Chdir, wd)
		GinkgoT().Setenv("ENV_VACC", "https://env.example/query")

		cfg, err := config.LoadConfig()
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.FeedURL).To(Equal("https://env.example/query"))
	})

	It("layers the environment over the YAML file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "scraper.yml")
		Expect(os.WriteFile(path, []byte(`
feed_url: https://from-yaml.example/query
webhooks: [https://yaml.example/hook]
report_path: data/vacinacao.csv
http:
  timeout: 7s
  retries: 2
notify:
  username: Bot
`), 0644)).To(Succeed())

		GinkgoT().Setenv("SCRAPER_CONFIG", path)
		GinkgoT().Setenv("REPORT_PATH", "env/vacinacao.csv")

		cfg, err := config.LoadConfig()
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.FeedURL).To(Equal("https://from-yaml.example/query"))
		Expect(cfg.Webhooks).To(Equal([]string{"https://yaml.example/hook"}))
		Expect(cfg.ReportPath).To(Equal("env/vacinacao.csv"))
		Expect(cfg.HTTPTimeout).To(Equal(7 * time.Second))
		Expect(cfg.FetchRetries).To(Equal(2))
		Expect(cfg.NotifyUsername).To(Equal("Bot"))
		Expect(cfg.BackupDir).To(Equal("backup"))
	})

	It("lets an empty ENV_WEBHOOK disable YAML webhooks", func() {
		path := filepath.Join(GinkgoT().TempDir(), "scraper.yml")
		Expect(os.WriteFile(path, []byte("webhooks: [https://yaml.example/hook]\n"), 0644)).To(Succeed())
		GinkgoT().Setenv("SCRAPER_CONFIG", path)
		GinkgoT().Setenv("ENV_WEBHOOK", "")

		cfg, err := config.LoadConfig()
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Webhooks).To(BeEmpty())
	})

	DescribeTable("rejects malformed values",
		func(key, value string) {
			GinkgoT().Setenv(key, value)

			_, err := config.LoadConfig()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring(key))
		},
		Entry("retries", "FETCH_RETRIES", "three"),
		Entry("timeout", "HTTP_TIMEOUT", "soon"),
		Entry("time zone", "REPORT_TIMEZONE", "Mars/Olympus"),
		Entry("schema policy", "BACKUP_SCHEMA_POLICY", "loose"),
		Entry("notify rate", "NOTIFY_RATE", "fast"),
	)

	It("requires at least one fetch attempt", func() {
		GinkgoT().Setenv("ENV_VACC", "https://example.com")
		GinkgoT().Setenv("FETCH_RETRIES", "0")

		cfg, err := config.LoadConfig()
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Validate()).To(MatchError(ContainSubstring("FETCH_RETRIES")))
	})
})

var _ = Describe("ParseWebhooks", func() {
	It("returns nothing for an empty list", func() {
		Expect(config.ParseWebhooks("")).To(BeEmpty())
		Expect(config.ParseWebhooks(" , ")).To(BeEmpty())
	})
})
