// Package store holds the gateway's own persisted schema (spec.md §6),
// kept independent of the teacher's legacy model package (which predates
// the multi-provider/endpoint/key schema this gateway needs). Grounded on
// the teacher's gorm conventions in model/cost.go and model/mcp_types.go
// (bigint tags, JSON-column driver.Valuer/sql.Scanner wrappers) and the
// idempotent-migration discipline of model/ability_migration.go.
package store

import (
	"time"

	"github.com/Laisky/errors/v2"
	"gorm.io/gorm"
)

// DB is the process-wide gorm handle for the gateway's own tables. Set by
// Init; kept as a package var to match the teacher's model.DB convention.
var DB *gorm.DB

// Init assigns db and runs AutoMigrate over every table this package owns.
// AutoMigrate only adds columns/indexes, never drops them, so repeated
// calls across deploys are safe the same way the teacher's migrations are.
func Init(db *gorm.DB) error {
	DB = db
	if err := DB.AutoMigrate(
		&Provider{},
		&ProviderEndpoint{},
		&ProviderAPIKey{},
		&GlobalModel{},
		&Model{},
		&VideoTask{},
		&Usage{},
		&DimensionCollector{},
		&ClientKey{},
	); err != nil {
		return errors.Wrap(err, "auto-migrate gateway schema")
	}
	return nil
}

// Provider is the persisted root of the (provider, endpoint, key) triple
// spec.md §3 describes: a provider has N endpoints and M keys.
type Provider struct {
	ID        int64  `gorm:"primaryKey;bigint" json:"id"`
	Name      string `gorm:"size:128;not null" json:"name"`
	Enabled   bool   `gorm:"not null;default:true" json:"enabled"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Endpoints []ProviderEndpoint `gorm:"foreignKey:ProviderID" json:"-"`
	Keys      []ProviderAPIKey   `gorm:"foreignKey:ProviderID" json:"-"`
}

// ProviderEndpoint is one `provider_endpoints` row, per spec.md §6.
type ProviderEndpoint struct {
	ID           int64          `gorm:"primaryKey;bigint" json:"id"`
	ProviderID   int64          `gorm:"index;bigint;not null" json:"provider_id"`
	BaseURL      string         `gorm:"size:512;not null" json:"base_url"`
	APIFamily    string         `gorm:"size:32;not null" json:"api_family"`
	EndpointKind string         `gorm:"size:32;not null" json:"endpoint_kind"`

	FormatAcceptanceConfig JSONColumn `gorm:"type:text" json:"format_acceptance_config"`
	BodyRules              JSONColumn `gorm:"type:text" json:"body_rules"`
	ExtraHeaders           JSONColumn `gorm:"type:text" json:"extra_headers"`

	Enabled   bool `gorm:"not null;default:true" json:"enabled"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProviderAPIKey is one `provider_api_keys` row. APIKey is stored encrypted
// at rest via common.EncryptSecret/DecryptSecret.
type ProviderAPIKey struct {
	ID               int64      `gorm:"primaryKey;bigint" json:"id"`
	ProviderID       int64      `gorm:"index;bigint;not null" json:"provider_id"`
	APIKeyEncrypted  string     `gorm:"column:api_key;size:1024;not null" json:"-"`
	APIFormats       JSONList   `gorm:"type:text" json:"api_formats"`
	InternalPriority int        `gorm:"not null;default:0" json:"internal_priority"`
	Enabled          bool       `gorm:"not null;default:true" json:"enabled"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// GlobalModel is one `global_models` row: a model identity shared across providers.
type GlobalModel struct {
	ID        int64      `gorm:"primaryKey;bigint" json:"id"`
	Name      string     `gorm:"size:128;not null;uniqueIndex" json:"name"`
	Config    JSONColumn `gorm:"type:text" json:"config"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Model is one `models` row: a provider's concrete mapping of a GlobalModel.
type Model struct {
	ID            int64      `gorm:"primaryKey;bigint" json:"id"`
	GlobalModelID int64      `gorm:"index;bigint;not null" json:"global_model_id"`
	ProviderID    int64      `gorm:"index;bigint;not null" json:"provider_id"`
	Config        JSONColumn `gorm:"type:text" json:"config"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// VideoTaskStatus enumerates spec.md §3's VideoTask.status values.
type VideoTaskStatus string

const (
	VideoTaskPending    VideoTaskStatus = "pending"
	VideoTaskSubmitted  VideoTaskStatus = "submitted"
	VideoTaskQueued     VideoTaskStatus = "queued"
	VideoTaskProcessing VideoTaskStatus = "processing"
	VideoTaskCompleted  VideoTaskStatus = "completed"
	VideoTaskFailed     VideoTaskStatus = "failed"
	VideoTaskCancelled  VideoTaskStatus = "cancelled"
)

// VideoTask is the persistent record of spec.md §3's VideoTask.
type VideoTask struct {
	ID             int64  `gorm:"primaryKey;bigint" json:"id"`
	ShortID        string `gorm:"size:32;not null;uniqueIndex" json:"short_id"`
	ExternalTaskID string `gorm:"size:256;index" json:"-"`

	UserID     int64 `gorm:"index;bigint;not null" json:"user_id"`
	APIKeyID   int64 `gorm:"bigint;not null" json:"api_key_id"`
	ProviderID int64 `gorm:"bigint;not null" json:"provider_id"`
	EndpointID int64 `gorm:"bigint;not null" json:"endpoint_id"`
	KeyID      int64 `gorm:"bigint;not null" json:"key_id"`

	ClientAPIFormat   string `gorm:"size:32;not null" json:"client_api_format"`
	ProviderAPIFormat string `gorm:"size:32;not null" json:"provider_api_format"`
	FormatConverted   bool   `gorm:"not null;default:false" json:"format_converted"`

	Model                 string `gorm:"size:128;not null" json:"model"`
	Prompt                string `gorm:"type:text" json:"prompt"`
	OriginalRequestBody    []byte `gorm:"type:blob" json:"-"`
	ConvertedRequestBody   []byte `gorm:"type:blob" json:"-"`

	DurationSeconds int     `json:"duration_seconds"`
	Resolution      string  `gorm:"size:32" json:"resolution"`
	AspectRatio     string  `gorm:"size:16" json:"aspect_ratio"`

	Status             VideoTaskStatus `gorm:"size:16;not null;index" json:"status"`
	ProgressPercent    int             `json:"progress_percent"`
	PollIntervalSeconds int            `gorm:"not null;default:5" json:"poll_interval_seconds"`
	NextPollAt         time.Time       `gorm:"index" json:"next_poll_at"`
	PollCount          int             `gorm:"not null;default:0" json:"poll_count"`
	MaxPollCount       int             `gorm:"not null;default:360" json:"max_poll_count"`
	RetryCount         int             `gorm:"not null;default:0" json:"retry_count"`

	VideoURL             string     `gorm:"size:1024" json:"video_url"`
	VideoURLs            JSONList   `gorm:"type:text" json:"video_urls"`
	VideoExpiresAt       *time.Time `json:"video_expires_at"`
	VideoDurationSeconds *float64   `json:"video_duration_seconds"`

	RequestMetadata JSONColumn `gorm:"type:text" json:"request_metadata"`

	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Usage is one `usage` row; request_metadata carries billing_shadow and
// billing_snapshot (spec.md §6).
type Usage struct {
	ID         int64  `gorm:"primaryKey;bigint" json:"id"`
	UserID     int64  `gorm:"index;bigint;not null" json:"user_id"`
	APIKeyID   int64  `gorm:"bigint;not null" json:"api_key_id"`
	ProviderID int64  `gorm:"bigint;not null" json:"provider_id"`
	Model      string `gorm:"size:128;not null" json:"model"`
	TaskType   string `gorm:"size:32;not null" json:"task_type"`

	InputTokens     int `json:"input_tokens"`
	OutputTokens    int `json:"output_tokens"`
	CachedTokens    int `json:"cached_tokens"`
	ReasoningTokens int `json:"reasoning_tokens"`

	RequestCostUSD string `gorm:"size:32" json:"request_cost_usd"`

	RequestMetadata JSONColumn `gorm:"type:text" json:"request_metadata"`

	CreatedAt time.Time
}

// ClientKey is a gateway-issued API key a tenant presents on the six
// client-facing routes. Distinct from ProviderAPIKey (an upstream vendor
// credential): this is the inbound side of auth.ExtractClientCredential,
// resolving Usage.user_id/api_key_id the same way the teacher's
// model.Token resolved ctxkey.Id/ctxkey.TokenId, but scoped to this
// gateway's own schema rather than the teacher's dashboard user system.
type ClientKey struct {
	ID        int64  `gorm:"primaryKey;bigint" json:"id"`
	UserID    int64  `gorm:"index;bigint;not null" json:"user_id"`
	Name      string `gorm:"size:128" json:"name"`
	KeyHash   string `gorm:"size:64;not null;uniqueIndex" json:"-"`
	Enabled   bool   `gorm:"not null;default:true" json:"enabled"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DimensionCollector is one `dimension_collectors` row, per spec.md §6.
type DimensionCollector struct {
	ID                 int64  `gorm:"primaryKey;bigint" json:"id"`
	APIFormat          string `gorm:"size:32;not null;index:idx_dc_lookup" json:"api_format"`
	TaskType           string `gorm:"size:32;not null;index:idx_dc_lookup" json:"task_type"`
	DimensionName      string `gorm:"size:64;not null" json:"dimension_name"`
	SourceType         string `gorm:"size:16;not null" json:"source_type"`
	SourcePath         string `gorm:"size:256" json:"source_path"`
	ValueType          string `gorm:"size:16;not null" json:"value_type"`
	TransformExpression string `gorm:"type:text" json:"transform_expression"`
	DefaultValue       string `gorm:"size:64" json:"default_value"`
	Priority           int    `gorm:"not null;default:0" json:"priority"`
	IsEnabled          bool   `gorm:"not null;default:true" json:"is_enabled"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
