package usecase

import "context"

const (
	ChannelUI     = "ui"
	ChannelAPI    = "api"
	ChannelOpenAI = "openai"
	ChannelMCP    = "mcp"
	ChannelCLI    = "cli"
)

type channelKey struct{}

// WithChannel tags the context with the surface a turn came from.
func WithChannel(ctx context.Context, channel string) context.Context {
	return context.WithValue(ctx, channelKey{}, channel)
}

func ChannelFromContext(ctx context.Context) string {
	if ch, ok := ctx.Value(channelKey{}).(string); ok && ch != "" {
		return ch
	}
	return "unknown"
}
