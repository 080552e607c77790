package llm

import (
	"context"
	"fmt"
	"log/slog"
)

// completeWithFallback tries each model in order and returns the first
// successful response. Routing failures count as failures of that model.
func (c *Client) completeWithFallback(ctx context.Context, models []string, base Request) (*Response, error) {
	var lastErr error
	for i, model := range models {
		provider, name, err := c.route(model)
		if err == nil {
			req := base
			req.Model = name
			var resp *Response
			resp, err = provider.SendMessage(ctx, &req)
			if err == nil {
				if i > 0 {
					c.logger.InfoContext(ctx, "model fallback succeeded",
						slog.String("model", model),
						slog.Int("attempt", i+1),
					)
				}
				resp.Backend = provider.Name()
				resp.Model = name
				return resp, nil
			}
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if i < len(models)-1 {
			c.logger.WarnContext(ctx, "model failed, trying next",
				slog.String("model", model),
				slog.String("error", err.Error()),
				slog.Int("attempt", i+1),
				slog.Int("remaining", len(models)-i-1),
			)
		}
	}
	if len(models) == 1 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("all %d models failed, last error: %w", len(models), lastErr)
}
