package observability

import (
	"testing"
	"time"

	"github.com/smallbiznis/tollgate/internal/config"
	"github.com/stretchr/testify/assert"
	gormlogger "gorm.io/gorm/logger"
)

func TestLoadConfigQueryLogging(t *testing.T) {
	t.Setenv("LOG_LEVEL", "info")
	t.Setenv("DB_LOG_LEVEL", "")
	t.Setenv("DB_SLOW_QUERY_THRESHOLD", "")

	cfg := LoadConfig(config.Config{Environment: "production"})
	assert.Equal(t, "warn", cfg.DBLogLevel)
	assert.Equal(t, 200*time.Millisecond, cfg.DBSlowThreshold)

	gormCfg := provideGormLoggerConfig(cfg)
	assert.Equal(t, gormlogger.Warn, gormCfg.Level)
	assert.True(t, gormCfg.IgnoreRecordNotFound)

	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DB_SLOW_QUERY_THRESHOLD", "50ms")
	cfg = LoadConfig(config.Config{Environment: "production"})
	assert.Equal(t, "info", cfg.DBLogLevel)
	assert.Equal(t, 50*time.Millisecond, cfg.DBSlowThreshold)

	t.Setenv("DB_LOG_LEVEL", "error")
	t.Setenv("DB_SLOW_QUERY_THRESHOLD", "soon")
	cfg = LoadConfig(config.Config{Environment: "production"})
	assert.Equal(t, "error", cfg.DBLogLevel)
	assert.Equal(t, 200*time.Millisecond, cfg.DBSlowThreshold)
}
