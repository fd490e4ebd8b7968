package config

import "time"

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"canon-pipeline" validate:"required"`
	Port                          int      `env:"PORT" env-default:"3010" validate:"required,min=1,max=65535"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn error"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST"`

	// Tracing
	TracingEnabled  bool   `env:"TRACING_ENABLED" env-default:"false"`
	TracingEndpoint string `env:"TRACING_OTLP_ENDPOINT" env-default:"localhost:4318"`

	// PostgreSQL
	DatabaseDriver                string        `env:"DB_DRIVER" env-default:"postgres" validate:"required"`
	DatabaseHost                  string        `env:"DB_HOST" env-default:""`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"canon"`
	DatabaseSSLMode               string        `env:"DB_SQL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Redis (run lock)
	RedisHost     string        `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int           `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string        `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int           `env:"REDIS_DB" env-default:"0"`
	RunLockTTL    time.Duration `env:"RUN_LOCK_TTL" env-default:"30m"`

	// Kafka producer (run lifecycle events)
	KafkaEnabled      bool     `env:"KAFKA_ENABLED" env-default:"false"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaRunTopic     string   `env:"KAFKA_RUN_TOPIC" env-default:"canon-run-events"`
	KafkaBatchSize    int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string   `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Pipeline
	ParseWorkerCount    int      `env:"PARSE_WORKER_COUNT" env-default:"4"`
	ParseBatchSize      int      `env:"PARSE_BATCH_SIZE" env-default:"500"`
	DenylistedStoreIDs  []string `env:"DENYLISTED_STORE_IDS" env-default:"108"`
	MinPayloadBytes     int      `env:"MIN_PAYLOAD_BYTES" env-default:"50"`
	ScheduleInterval    time.Duration `env:"SCHEDULE_INTERVAL" env-default:"0"`

	// Geography bounding box (defaults cover NCR)
	GeoMinLatitude  float64 `env:"GEO_MIN_LATITUDE" env-default:"14.2"`
	GeoMaxLatitude  float64 `env:"GEO_MAX_LATITUDE" env-default:"14.9"`
	GeoMinLongitude float64 `env:"GEO_MIN_LONGITUDE" env-default:"120.9"`
	GeoMaxLongitude float64 `env:"GEO_MAX_LONGITUDE" env-default:"121.2"`

	// Quality score weights. These must stay comparable across runs; change
	// them only with analyst sign-off.
	QualityWeightTransactionID int `env:"QUALITY_WEIGHT_TRANSACTION_ID" env-default:"20"`
	QualityWeightTotalAmount   int `env:"QUALITY_WEIGHT_TOTAL_AMOUNT" env-default:"20"`
	QualityWeightTimestamp     int `env:"QUALITY_WEIGHT_TIMESTAMP" env-default:"15"`
	QualityWeightMunicipality  int `env:"QUALITY_WEIGHT_MUNICIPALITY" env-default:"15"`
	QualityWeightDeviceID      int `env:"QUALITY_WEIGHT_DEVICE_ID" env-default:"10"`
	QualityWeightStoreID       int `env:"QUALITY_WEIGHT_STORE_ID" env-default:"10"`
	QualityWeightTranscript    int `env:"QUALITY_WEIGHT_TRANSCRIPT" env-default:"10"`

	// Substitution confidence step function (transcript length thresholds)
	SubstitutionShortThreshold int     `env:"SUBSTITUTION_SHORT_THRESHOLD" env-default:"20"`
	SubstitutionLongThreshold  int     `env:"SUBSTITUTION_LONG_THRESHOLD" env-default:"50"`
	SubstitutionLowConfidence  float64 `env:"SUBSTITUTION_LOW_CONFIDENCE" env-default:"0.5"`
	SubstitutionMidConfidence  float64 `env:"SUBSTITUTION_MID_CONFIDENCE" env-default:"0.7"`
	SubstitutionHighConfidence float64 `env:"SUBSTITUTION_HIGH_CONFIDENCE" env-default:"0.9"`
}
