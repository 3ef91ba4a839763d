package redis

import (
	"context"
	"testing"
)

func TestNewUniversalClientRequiresAddrs(t *testing.T) {
	_, err := NewUniversalClient(context.Background(), Config{})
	if err == nil {
		t.Fatal("expected error for empty address list")
	}
}

func TestNewClientFromURLValidation(t *testing.T) {
	if _, err := NewClientFromURL(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty url")
	}
	if _, err := NewClientFromURL(context.Background(), "http://not-redis"); err == nil {
		t.Fatal("expected error for non-redis scheme")
	}
}
