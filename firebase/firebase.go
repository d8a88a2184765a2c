package firebase

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// NewApp initializes the Firebase Admin SDK. credentials is either a path to
// a service account file or the JSON document itself; empty falls back to
// application default credentials.
func NewApp(ctx context.Context, credentials, bucket string, logger *zap.Logger) (*firebase.App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var opts []option.ClientOption
	switch {
	case strings.HasPrefix(strings.TrimSpace(credentials), "{"):
		logger.Info("using firebase credentials from environment variable")
		opts = append(opts, option.WithCredentialsJSON([]byte(credentials)))
	case credentials != "":
		logger.Info("using firebase credentials from file", zap.String("path", credentials))
		opts = append(opts, option.WithCredentialsFile(credentials))
	default:
		logger.Warn("GOOGLE_APPLICATION_CREDENTIALS not set, using default credentials")
	}

	var cfg *firebase.Config
	if bucket != "" {
		cfg = &firebase.Config{StorageBucket: bucket}
	}

	app, err := firebase.NewApp(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase init: %w", err)
	}
	logger.Info("firebase initialized")
	return app, nil
}
