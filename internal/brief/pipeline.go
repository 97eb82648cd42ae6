package brief

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// SourceFetcher performs one upstream data-source call.
type SourceFetcher interface {
	Fetch(ctx context.Context, address, action, subAction string, params map[string]string) (string, error)
}

// section describes one upstream data source feeding the brief.
// Essential sections fail the whole pipeline when exhausted; the rest
// degrade to an unavailability notice.
type section struct {
	name      string
	action    string
	subAction string
	essential bool
}

var briefSections = []section{
	{name: "Inbox", action: "mail", subAction: "unread"},
	{name: "Calendar", action: "calendar", subAction: "today"},
}

const systemPrompt = "You are an assistant that writes a short, friendly morning brief. " +
	"Summarize the provided inbox and calendar data into a few scannable paragraphs. " +
	"If a section is marked unavailable, say so in one sentence and move on."

// PipelineConfig carries the tunables for one generation run.
type PipelineConfig struct {
	Model          string
	MaxTokens      int
	RetryAttempts  int
	RetryBaseDelay time.Duration
	InterCallDelay time.Duration
}

// Pipeline gathers upstream data and turns it into a brief via a text
// completion. Sources are called strictly one after another with a
// fixed pause in between; upstream rate limits leave no room for
// parallel gathering.
type Pipeline struct {
	sources SourceFetcher
	ai      *openai.Client
	cfg     PipelineConfig
	log     *zap.Logger
}

// NewOpenAIClient builds the completion client, optionally pointed at
// an OpenAI-compatible base URL.
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

func NewPipeline(sources SourceFetcher, ai *openai.Client, cfg PipelineConfig, log *zap.Logger) *Pipeline {
	return &Pipeline{sources: sources, ai: ai, cfg: cfg, log: log}
}

// Generate runs the full gather→summarize pipeline for one user.
func (p *Pipeline) Generate(ctx context.Context, userID, contactAddress string) (string, error) {
	gathered := make(map[string]string, len(briefSections))
	var missing []string

	for i, s := range briefSections {
		if i > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(p.cfg.InterCallDelay):
			}
		}
		payload, err := retryDo(ctx, p.cfg.RetryAttempts, p.cfg.RetryBaseDelay, func(ctx context.Context) (string, error) {
			return p.sources.Fetch(ctx, contactAddress, s.action, s.subAction, nil)
		})
		if err != nil {
			if s.essential {
				return "", fmt.Errorf("%s source: %w", s.name, err)
			}
			p.log.Warn("data source unavailable, continuing without it",
				zap.String("user", userID), zap.String("section", s.name), zap.Error(err))
			missing = append(missing, s.name)
			continue
		}
		gathered[s.name] = payload
	}

	if len(missing) > 0 {
		p.log.Info("generating with partial data", zap.String("user", userID), zap.Strings("missing", missing))
	}
	content, err := p.summarize(ctx, gathered)
	if err != nil {
		p.log.Warn("completion failed, returning degraded brief",
			zap.String("user", userID), zap.Error(err))
		return degradedBrief(gathered), nil
	}
	return content, nil
}

func (p *Pipeline) summarize(ctx context.Context, gathered map[string]string) (string, error) {
	var b strings.Builder
	for _, s := range briefSections {
		b.WriteString("## " + s.name + "\n")
		if payload, ok := gathered[s.name]; ok {
			b.WriteString(payload + "\n\n")
		} else {
			b.WriteString("(unavailable)\n\n")
		}
	}

	resp, err := p.ai.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     p.cfg.Model,
		MaxTokens: p.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: b.String()},
		},
	})
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion: no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// degradedBrief is the fallback artifact when the completion call
// fails: raw section payloads plus an explicit notice for anything
// that could not be fetched.
func degradedBrief(gathered map[string]string) string {
	var b strings.Builder
	b.WriteString("Your daily brief (summary service unavailable, raw data below)\n")
	for _, s := range briefSections {
		b.WriteString("\n## " + s.name + "\n")
		if payload, ok := gathered[s.name]; ok {
			b.WriteString(payload + "\n")
		} else {
			b.WriteString(s.name + " is currently unavailable.\n")
		}
	}
	return b.String()
}
