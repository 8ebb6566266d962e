package config

// BlobConfig contains artifact store (S3 or S3-compatible) configuration.
type BlobConfig struct {
	Bucket string `env:"BUCKET" envDefault:"rowmill-artifacts"`
	Region string `env:"REGION" envDefault:""`
	// Endpoint points at an S3-compatible store (MinIO, localstack); empty
	// means AWS.
	Endpoint        string `env:"ENDPOINT"          envDefault:""`
	AccessKeyID     string `env:"ACCESS_KEY_ID"     envDefault:""`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY" envDefault:""`
	ForcePathStyle  bool   `env:"FORCE_PATH_STYLE"  envDefault:"false"`
}
