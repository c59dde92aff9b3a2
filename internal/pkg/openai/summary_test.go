package openai_test

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/tidwall/gjson"

	"vacinacao/internal/pkg/openai"
	"vacinacao/internal/testhelpers"
)

var openaiResFmt = `{
  "id": "resp_67ccd2bed1ec8190b14f964abc0542670bb6a6b452d3795b",
  "object": "response",
  "created_at": 1741476542,
  "status": "completed",
  "error": null,
  "model": "gpt-5.1",
  "output": [
    {
      "type": "message",
      "id": "msg_67ccd2bf17f0819081ff3bb2cf6508e60bb6a6b452d3795b",
      "status": "completed",
      "role": "assistant",
      "content": [
        {
          "type": "output_text",
          "text": "%s",
          "annotations": []
        }
      ]
    }
  ],
  "parallel_tool_calls": true,
  "tool_choice": "auto",
  "tools": [],
  "usage": {
    "input_tokens": 36,
    "input_tokens_details": {"cached_tokens": 0},
    "output_tokens": 24,
    "output_tokens_details": {"reasoning_tokens": 0},
    "total_tokens": 60
  },
  "metadata": {}
}`

var _ = Describe("Summarizer", func() {
	BeforeEach(func() {
		testhelpers.Activate()
	})

	AfterEach(func() {
		testhelpers.Deactivate()
	})

	It("requires an API key", func() {
		_, err := openai.NewSummarizer("", "", nil)
		Expect(err).To(MatchError(openai.ErrMissingAPIKey))
	})

	It("returns the model output", func() {
		exp := testhelpers.New("https://api.openai.com").
			Post("/v1/responses").Reply(200).
			BodyString(fmt.Sprintf(openaiResFmt, "Em 3 de janeiro foram vacinadas 1.234.567 pessoas.")).
			Header("Content-Type", "application/json")

		s, err := openai.NewSummarizer("test-key", "", http.DefaultClient)
		Expect(err).NotTo(HaveOccurred())

		summary, err := s.Summarize(context.Background(), "Data  Vacinados\n1609632000000  1.234.567")
		Expect(err).NotTo(HaveOccurred())
		Expect(summary).To(Equal("Em 3 de janeiro foram vacinadas 1.234.567 pessoas."))
		Expect(testhelpers.IsDone()).To(BeTrue())

		Expect(exp.ReceivedHeaders.Get("Authorization")).To(Equal("Bearer test-key"))
		Expect(gjson.GetBytes(exp.ReceivedBody, "model").String()).To(Equal("gpt-5.1"))
		Expect(gjson.GetBytes(exp.ReceivedBody, "input.#").Int()).To(Equal(int64(2)))
		Expect(gjson.GetBytes(exp.ReceivedBody, "input.1.content").String()).To(ContainSubstring("1.234.567"))
	})

	It("uses the configured model", func() {
		exp := testhelpers.New("https://api.openai.com").
			Post("/v1/responses").Reply(200).
			BodyString(fmt.Sprintf(openaiResFmt, "ok")).
			Header("Content-Type", "application/json")

		s, err := openai.NewSummarizer("test-key", "gpt-4.1-mini", http.DefaultClient)
		Expect(err).NotTo(HaveOccurred())

		_, err = s.Summarize(context.Background(), "table")
		Expect(err).NotTo(HaveOccurred())
		Expect(gjson.GetBytes(exp.ReceivedBody, "model").String()).To(Equal("gpt-4.1-mini"))
	})

	It("cuts long tables on a character boundary", func() {
		exp := testhelpers.New("https://api.openai.com").
			Post("/v1/responses").Reply(200).
			BodyString(fmt.Sprintf(openaiResFmt, "ok")).
			Header("Content-Type", "application/json")

		s, err := openai.NewSummarizer("test-key", "", http.DefaultClient)
		Expect(err).NotTo(HaveOccurred())

		// one ASCII byte first so the 16 KiB limit falls inside a two-byte rune
		table := "x" + strings.Repeat("á", 16*1024)
		_, err = s.Summarize(context.Background(), table)
		Expect(err).NotTo(HaveOccurred())

		content := gjson.GetBytes(exp.ReceivedBody, "input.1.content").String()
		Expect(utf8.ValidString(content)).To(BeTrue())
		Expect(content).NotTo(ContainSubstring("\uFFFD"))
		Expect(content).To(ContainSubstring("xáá"))
		Expect(content).To(HaveSuffix("á\n\n[...truncated for brevity...]"))
	})

	It("fails on an empty answer", func() {
		testhelpers.New("https://api.openai.com").
			Post("/v1/responses").Reply(200).
			BodyString(fmt.Sprintf(openaiResFmt, "  ")).
			Header("Content-Type", "application/json")

		s, err := openai.NewSummarizer("test-key", "", http.DefaultClient)
		Expect(err).NotTo(HaveOccurred())

		_, err = s.Summarize(context.Background(), "table")
		Expect(err).To(HaveOccurred())
	})

	It("fails on API errors without retrying", func() {
		testhelpers.New("https://api.openai.com").
			Post("/v1/responses").Reply(500).
			BodyString(`{"error":{"message":"server error","type":"server_error"}}`).
			Header("Content-Type", "application/json")

		s, err := openai.NewSummarizer("test-key", "", http.DefaultClient)
		Expect(err).NotTo(HaveOccurred())

		_, err = s.Summarize(context.Background(), "table")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("call OpenAI"))
		Expect(testhelpers.IsDone()).To(BeTrue())
	})
})
