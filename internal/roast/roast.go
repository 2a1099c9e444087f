// Package roast wraps the text-generation collaborator: given a stored
// swap image and a tone directive it produces a short caption.
package roast

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/lazylama/memeswap/internal/model"
)

const defaultTimeout = 30 * time.Second

type Generator struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// New builds the generator. A missing API key is a configuration error,
// surfaced as ErrCredentialMissing by the caller of Generate.
func New(apiKey, baseURL, chatModel string) *Generator {
	if apiKey == "" {
		return &Generator{}
	}
	if chatModel == "" {
		chatModel = "grok-beta"
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)

	return &Generator{client: &client, model: chatModel, timeout: defaultTimeout}
}

// Generate produces a roast for an image. The call is bounded by the
// generator timeout; any failure maps to ErrGenerationUnavailable.
func (g *Generator) Generate(ctx context.Context, imageData []byte, contentType, tone string) (string, error) {
	if g.client == nil {
		return "", model.ErrCredentialMissing
	}
	if tone == "" {
		tone = "playful"
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	imageURL := fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(imageData))
	prompt := fmt.Sprintf("Write a short, %s roast caption for this face-swapped meme. Two sentences max, no hashtags.", tone)

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: g.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
							openai.TextContentPart(prompt),
							openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
								URL:    imageURL,
								Detail: "low",
							}),
						},
					},
				},
			},
		},
		MaxTokens: openai.Int(120),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s", model.ErrGenerationUnavailable, err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: empty completion", model.ErrGenerationUnavailable)
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
