package model

import "time"

// UnknownTypePolicy decides where questions without a recognized type go.
type UnknownTypePolicy string

const (
	// UnknownAsOpen routes untyped questions to the judgment engine.
	UnknownAsOpen UnknownTypePolicy = "open"
	// UnknownAsPending leaves untyped questions pending for manual review.
	UnknownAsPending UnknownTypePolicy = "pending"
)

// GradingConfig holds the grading switches set via CLI flags.
type GradingConfig struct {
	UnknownTypePolicy UnknownTypePolicy `validate:"oneof=open pending"`
	DeferOpenOnSubmit bool              // mark open questions pending at submission time
	PromptVariant     string            `validate:"oneof=strict standard lenient"`
	MaxImageDim       int               `validate:"gte=256"`
	MaxUploadSize     int64             `validate:"gt=0"`
}

// Config is the resolved process configuration, built once at start-up.
type Config struct {
	Addr         string `validate:"required"`
	DBDriver     string `validate:"oneof=sqlite postgres"`
	DBDSN        string `validate:"required"`
	Lang         string `validate:"required"`
	APITokenHash string
	CORSOrigins  []string

	LLMURL     string        `validate:"required,url"`
	LLMKey     string        `validate:"required"`
	LLMModel   string        `validate:"required"`
	LLMTimeout time.Duration `validate:"gt=0"`

	OCRURL     string        `validate:"required,url"`
	OCRTimeout time.Duration `validate:"gt=0"`

	BlobDriver    string `validate:"oneof=fs minio"`
	UploadDir     string `validate:"required_if=BlobDriver fs"`
	PublicBaseURL string // prefix for fs upload URLs
	MinIO         MinIOConfig

	Grading GradingConfig
}

// MinIOConfig configures the S3-compatible upload bucket.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}
