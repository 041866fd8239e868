package gormlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestShortCaller(t *testing.T) {
	cases := map[string]string{
		"/home/dev/repo/internal/platform/db/db.go:38": "internal/platform/db/db.go:38",
		"/src/pkg/tool/id.go:9":                        "pkg/tool/id.go:9",
		"/a/b/c/d.go:1":                                "b/c/d.go:1",
		"x.go:3":                                       "x.go:3",
		"":                                             "",
	}
	for in, want := range cases {
		assert.Equal(t, want, shortCaller(in), in)
	}
}

func TestTrace_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core).Sugar(), 10*time.Millisecond)
	ctx := context.Background()
	sql := func() (string, int64) { return "SELECT 1", 1 }

	l.Trace(ctx, time.Now(), sql, nil)
	l.Trace(ctx, time.Now().Add(-time.Second), sql, nil)
	l.Trace(ctx, time.Now(), sql, errors.New("boom"))
	l.Trace(ctx, time.Now(), sql, gorm.ErrRecordNotFound)

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)
	assert.Equal(t, "gorm", entries[0].Message)
	assert.Equal(t, "gorm_slow", entries[1].Message)
	assert.Equal(t, "gorm_trace", entries[2].Message)

	silent := l.LogMode(gormlogger.Silent)
	silent.Trace(ctx, time.Now(), sql, errors.New("ignored"))
	assert.Len(t, logs.AllUntimed(), 3)
}
