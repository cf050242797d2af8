// Package ctxkey centralizes the gin.Context keys set by middleware and
// read by relay/controller handlers, so every call site shares the exact
// same string instead of retyping literals (a source of silent bugs when a
// key is renamed in one place but not another).
package ctxkey

const (
	Id       = "id"
	Username = "username"
	Role     = "role"
	Group    = "group"

	TokenId              = "token_id"
	TokenName            = "token_name"
	TokenQuota           = "token_quota"
	TokenQuotaUnlimited  = "token_quota_unlimited"
	RequestModel         = "request_model"
	AvailableModels      = "available_models"
	SpecificChannelId    = "specific_channel_id"
	UserQuota            = "user_quota"
	RateLimit            = "rate_limit"
	RequestId            = "X-Request-Id"

	Channel      = "channel"
	ChannelId    = "channel_id"
	ChannelModel = "channel_model"
	ChannelName  = "channel_name"
	ChannelRatio = "channel_ratio"
	BaseURL      = "base_url"
	Config       = "config"
	Meta         = "meta"
	ModelMapping = "model_mapping"
	APIFormat    = "api_format"
	RelayMode    = "relay_mode"
	ContentType  = "content_type"

	OriginalModel   = "original_model"
	ConversationId  = "conversation_id"
	SystemPrompt    = "system_prompt"
	ResponseFormat  = "response_format"

	ConvertedRequest  = "converted_request"
	ConvertedResponse = "converted_response"
	KeyRequestBody    = "key_request_body"

	ClaudeDirectPassthrough     = "claude_direct_passthrough"
	ClaudeMessagesConversion    = "claude_messages_conversion"
	ClaudeMessagesNative        = "claude_messages_native"
	OriginalClaudeRequest       = "original_claude_request"
	ResponseAPIRequestOriginal  = "response_api_request_original"

	ClientRequestPayloadLogged       = "client_request_payload_logged"
	DebugResponseWriter              = "debug_response_writer"
	SkipAdaptorResponseBodyLog       = "skip_adaptor_response_body_log"
	UpstreamRequestPossiblyForwarded = "upstream_request_possibly_forwarded"

	ResponseRewriteApplied        = "response_rewrite_applied"
	ResponseRewriteHandler        = "response_rewrite_handler"
	ResponseStreamRewriteHandler  = "response_stream_rewrite_handler"

	StreamingQuotaTracker = "streaming_quota_tracker"

	OutputAudioSeconds     = "output_audio_seconds"
	OutputAudioTokens      = "output_audio_tokens"
	OutputImageCount       = "output_image_count"
	OutputVideoResolution  = "output_video_resolution"
	OutputVideoSeconds     = "output_video_seconds"

	ToolInvocationCounts  = "tool_invocation_counts"
	ToolInvocationSummary = "tool_invocation_summary"
	WebSearchCallCount    = "web_search_call_count"
)
