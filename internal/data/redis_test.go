package data

import (
	"context"
	"os"
	"testing"

	"EscrowLane/internal/conf"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"
)

// Test NewRedisClient - connects against a live address
func TestNewRedisClient_Connected(t *testing.T) {
	mr := miniredis.RunT(t)

	c := &conf.Data{
		Redis: &conf.Redis{
			Addr:         mr.Addr(),
			ReadTimeout:  durationpb.New(0),
			WriteTimeout: durationpb.New(0),
		},
	}

	rdb, cleanup, err := NewRedisClient(c, log.NewStdLogger(os.Stdout))
	require.NoError(t, err)
	require.NotNil(t, rdb)
	defer cleanup()

	assert.NoError(t, rdb.Ping(context.Background()).Err())
}

// Test NewRedisClient - an empty address disables Redis without failing startup
func TestNewRedisClient_Disabled(t *testing.T) {
	rdb, cleanup, err := NewRedisClient(&conf.Data{Redis: &conf.Redis{}}, log.NewStdLogger(os.Stdout))
	require.NoError(t, err)
	assert.Nil(t, rdb)
	cleanup()

	rdb, cleanup, err = NewRedisClient(&conf.Data{}, log.NewStdLogger(os.Stdout))
	require.NoError(t, err)
	assert.Nil(t, rdb)
	cleanup()
}
