package logger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestTableFromSQL(t *testing.T) {
	cases := map[string]string{
		"UPDATE users SET balance = balance + ?, updated_at = ? WHERE id = ?": "users",
		"INSERT INTO `wallet_transactions` (`id`,`user_id`) VALUES (?,?)":     "wallet_transactions",
		`SELECT * FROM "usage_records" WHERE user_id = $1 ORDER BY id`:        "usage_records",
		"SELECT count(*) FROM public.api_keys":                                "api_keys",
		"PRAGMA foreign_keys":                                                 "unknown",
	}
	for sql, want := range cases {
		assert.Equal(t, want, tableFromSQL(sql), sql)
	}
}

func TestParseGormLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, ParseGormLevel("off"))
	assert.Equal(t, gormlogger.Error, ParseGormLevel("ERROR"))
	assert.Equal(t, gormlogger.Info, ParseGormLevel("debug"))
	assert.Equal(t, gormlogger.Warn, ParseGormLevel(""))
	assert.Equal(t, gormlogger.Warn, ParseGormLevel("loud"))
}

func TestSlowBalanceWriteIsTaggedAsLedgerWrite(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	l := NewGormLogger(GormLoggerConfig{Level: gormlogger.Warn, SlowThreshold: time.Millisecond})
	l.Trace(context.Background(), time.Now().Add(-time.Second), func() (string, int64) {
		return "UPDATE users SET balance = balance + ? WHERE id = ?", 1
	}, nil)
	l.Trace(context.Background(), time.Now().Add(-time.Second), func() (string, int64) {
		return "SELECT * FROM api_keys WHERE key_hash = ?", 1
	}, nil)

	entries := logs.All()
	require.Len(t, entries, 2)

	first := entries[0].ContextMap()
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "users", first["table"])
	assert.Equal(t, true, first["ledger_write"])
	assert.Equal(t, true, first["slow"])

	second := entries[1].ContextMap()
	assert.Equal(t, "api_keys", second["table"])
	assert.NotContains(t, second, "ledger_write")
}

func TestRecordNotFoundIsQuietByDefault(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	l := NewGormLogger(DefaultGormLoggerConfig())
	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "SELECT * FROM users WHERE username = ?", 0
	}, gormlogger.ErrRecordNotFound)

	assert.Zero(t, logs.Len())
}
