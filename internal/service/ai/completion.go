package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/coderoom/backend/internal/config"
)

// ErrEmptyCode is returned when a completion is requested for a blank buffer.
var ErrEmptyCode = errors.New("code is required")

// ErrStreamingDisabled is returned by Stream when streaming is turned off.
var ErrStreamingDisabled = errors.New("streaming disabled in configuration")

const systemPrompt = `You are a code completion engine embedded in a collaborative editor.
Continue the user's code from exactly where it ends.
Reply with the code to insert and nothing else: no explanations and no markdown fences.`

// Service 基于 eino chain 为编辑器提供代码补全。
type Service struct {
	chatModel model.ChatModel
	chain     compose.Runnable[map[string]any, *schema.Message]
	streaming bool
}

// NewService 使用 Ark 配置创建补全服务。
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel, cfg.StreamResponse)
}

// NewServiceWithModel builds the completion chain around chatModel.
func NewServiceWithModel(ctx context.Context, chatModel model.ChatModel, streaming bool) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(systemPrompt),
		// The buffer goes in as a message so braces in code are never
		// treated as template variables.
		schema.MessagesPlaceholder("code", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile completion chain: %w", err)
	}

	return &Service{chatModel: chatModel, chain: runnable, streaming: streaming}, nil
}

// StreamingEnabled 指示是否开启 SSE 流式输出。
func (s *Service) StreamingEnabled() bool {
	return s.streaming
}

// Complete returns the suggested continuation of code.
func (s *Service) Complete(ctx context.Context, code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", ErrEmptyCode
	}

	response, err := s.chain.Invoke(ctx, chainInput(code))
	if err != nil {
		return "", fmt.Errorf("failed to run completion chain: %w", err)
	}

	suggestion := CleanSuggestion(response.Content)
	log.Printf("[ai] completion generated, input=%d output=%d", len(code), len(suggestion))
	return suggestion, nil
}

// Stream streams the raw completion chunks. Callers clean the concatenated
// result with CleanSuggestion.
func (s *Service) Stream(ctx context.Context, code string) (*schema.StreamReader[*schema.Message], error) {
	if !s.streaming {
		return nil, ErrStreamingDisabled
	}
	if strings.TrimSpace(code) == "" {
		return nil, ErrEmptyCode
	}

	stream, err := s.chain.Stream(ctx, chainInput(code))
	if err != nil {
		return nil, fmt.Errorf("failed to stream completion chain output: %w", err)
	}
	return stream, nil
}

func chainInput(code string) map[string]any {
	return map[string]any{
		"code": []*schema.Message{schema.UserMessage(code)},
	}
}

// CleanSuggestion strips a surrounding markdown fence from a model reply.
func CleanSuggestion(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return raw
	}

	text = strings.TrimPrefix(text, "```")
	// Drop the info string, e.g. ```python.
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	} else {
		text = ""
	}
	text = strings.TrimSuffix(strings.TrimRight(text, " \t\n"), "```")
	return strings.TrimRight(text, "\n")
}
