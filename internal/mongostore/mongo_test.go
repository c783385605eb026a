package mongostore

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"schedulease/internal/store"
	"schedulease/internal/store/storetest"
)

func TestStoreConformance(t *testing.T) {
	uri := os.Getenv("SCHEDULEASE_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("SCHEDULEASE_TEST_MONGO_URI not set")
	}
	logger := zerolog.New(io.Discard)

	storetest.Run(t, func(t *testing.T) store.Store {
		id := store.NewID()
		s, err := Open(context.Background(), uri, "schedulease_test_"+id[len(id)-12:], &logger)
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = s.Drop(context.Background())
			_ = s.Close()
		})
		return s
	})
}
