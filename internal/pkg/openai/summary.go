package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"
)

const (
	defaultModel     = shared.ResponsesModel("gpt-5.1")
	previewByteLimit = 16 * 1024 // cap what we send to the model
)

var (
	// ErrMissingAPIKey is returned when OPENAI_API_KEY was not configured.
	ErrMissingAPIKey = errors.New("OPENAI_API_KEY is not set")
)

const systemPrompt = `És um assistente que resume dados públicos de vacinação em Portugal.
Recebes uma tabela com uma linha por dia. Escreve no máximo duas frases em português europeu,
destacando o último dia e a variação face ao dia anterior. Não inventes números.`

// Summarizer is a thin wrapper around the OpenAI responses client that turns a
// rendered table of daily records into a short text.
type Summarizer struct {
	client *openai.Client
	model  shared.ResponsesModel
}

// NewSummarizer builds a Summarizer. A nil httpClient uses the SDK default.
func NewSummarizer(apiKey, model string, httpClient *http.Client) (*Summarizer, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	m := defaultModel
	if model != "" {
		m = shared.ResponsesModel(model)
	}

	client := openai.NewClient(opts...)
	return &Summarizer{client: &client, model: m}, nil
}

// Summarize asks the model for a short summary of table.
func (s *Summarizer) Summarize(ctx context.Context, table string) (string, error) {
	if s == nil || s.client == nil {
		return "", errors.New("Summarizer is not initialized")
	}

	resp, err := s.client.Responses.New(ctx, responses.ResponseNewParams{
		Model: s.model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: responses.ResponseInputParam{
				responses.ResponseInputItemParamOfMessage(systemPrompt, responses.EasyInputMessageRoleSystem),
				responses.ResponseInputItemParamOfMessage(buildPrompt(table), responses.EasyInputMessageRoleUser),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("call OpenAI: %w", err)
	}

	output := strings.TrimSpace(resp.OutputText())
	if output == "" {
		return "", errors.New("model returned an empty response")
	}

	return output, nil
}

func buildPrompt(table string) string {
	if len(table) > previewByteLimit {
		cut := previewByteLimit
		for cut > 0 && !utf8.RuneStart(table[cut]) {
			cut--
		}
		table = table[:cut] + "\n\n[...truncated for brevity...]"
	}

	builder := strings.Builder{}
	builder.WriteString("Dados de vacinação recolhidos hoje:\n")
	builder.WriteString(table)

	return builder.String()
}
