package mongoutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestValidateAndSetDefaults(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
		wantURI string
	}{
		{name: "nothing", cfg: Config{}, wantErr: true},
		{name: "no database", cfg: Config{Uri: "mongodb://x"}, wantErr: true},
		{name: "uri kept", cfg: Config{Uri: "mongodb://h:27017", Database: "chat"}, wantURI: "mongodb://h:27017"},
		{
			name:    "built from address",
			cfg:     Config{Address: []string{"a:1", "b:2"}, Database: "chat", Username: "u", Password: "p@ss"},
			wantURI: "mongodb://u:p%40ss@a:1,b:2/chat?authSource=chat&maxPoolSize=100",
		},
		{
			name:    "explicit auth source",
			cfg:     Config{Address: []string{"a:1"}, Database: "chat", AuthSource: "admin", MaxPoolSize: 5},
			wantURI: "mongodb://a:1/chat?authSource=admin&maxPoolSize=5",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := cfg.ValidateAndSetDefaults()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantURI, cfg.Uri)
			assert.Equal(t, defaultMaxRetry, cfg.MaxRetry)
		})
	}
}

func TestShouldRetry(t *testing.T) {
	ctx := context.Background()
	assert.True(t, shouldRetry(ctx, errors.New("dial tcp: refused")))
	assert.False(t, shouldRetry(ctx, mongo.CommandError{Code: 18}))
	assert.True(t, shouldRetry(ctx, mongo.CommandError{Code: 11600}))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.False(t, shouldRetry(cancelled, errors.New("x")))
}
