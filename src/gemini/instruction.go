package gemini

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// baseSystemInstruction frames the assistant's role; the corpus fetched from
// the system-instruction provider is appended under "Additional Data".
const baseSystemInstruction = `You are a professional AI assistant trained in customer service and sales communication.

Your role is to provide clear, helpful, and concise answers (1-3 lines max) based strictly on the provided company profile. Do not use external sources.

Key guidelines:
1. Stay within the document scope. If a request goes beyond the provided material, reply: "I can only answer questions based on the provided company profile."
2. Keep answers short and focused - no long explanations or fluff.
3. Do not provide prices unless asked directly.
4. If the question is vague, ask the caller to share what they are looking for.

Always respond in short answers, just to the point.`

const instructionTimeout = 15 * time.Second

// FetchSystemInstruction GETs the additional instruction corpus and appends
// it to the base prompt. A non-200 response is a fatal construction error
// for the call.
func FetchSystemInstruction(ctx context.Context, endpoint string) (string, error) {
	if endpoint == "" {
		return baseSystemInstruction, nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, instructionTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("gemini: bad instruction endpoint: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini: failed to fetch system instruction: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini: system instruction endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gemini: failed to read system instruction: %w", err)
	}

	return baseSystemInstruction + "\n\nAdditional Data:\n" + string(body), nil
}
