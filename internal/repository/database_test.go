package repository

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aimd54/ranked-matchmaking/internal/testutil"
)

func TestGormLogLevel(t *testing.T) {
	tests := []struct {
		level zerolog.Level
		want  gormlogger.LogLevel
	}{
		{zerolog.TraceLevel, gormlogger.Info},
		{zerolog.DebugLevel, gormlogger.Info},
		{zerolog.InfoLevel, gormlogger.Warn},
		{zerolog.WarnLevel, gormlogger.Warn},
		{zerolog.ErrorLevel, gormlogger.Error},
		{zerolog.Disabled, gormlogger.Silent},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, gormLogLevel(tt.level))
		})
	}
}

func TestDB_Health(t *testing.T) {
	db := &DB{testutil.NewSQLiteDB(t)}
	assert.NoError(t, db.Health(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, db.Health(ctx))

	assert.NoError(t, db.Close())
	assert.Error(t, db.Health(context.Background()))
}
