//go:build integration

package mongo

import (
	"context"
	"os"
	"testing"
	"time"
)

// Run with: MONGO_URI=mongodb://localhost:27017 go test -tags=integration ./internal/kv/mongo

func TestIntegration_MongoStore(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := New(ctx, uri, "secovi_test", "kv_store_test")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Close()
	defer s.collection.Drop(ctx)

	if err := s.Set(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, "k", []byte("v2")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || string(got) != "v2" {
		t.Fatalf("unexpected get %q ok=%v err=%v", got, ok, err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatalf("expected key to be deleted")
	}
}
