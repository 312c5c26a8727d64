package feed

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/VanDung-dev/HieraChain-Replica/types"
)

func testBlock(height uint64) *types.Block {
	return &types.Block{
		Header: types.Header{Height: height, Author: 1, Parent: []byte{0xaa}},
		Body:   []types.Transaction{{Data: []byte("tx")}},
	}
}

func TestBlockFeedPublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	f, err := NewBlockFeed(ctx, "tcp://127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("NewBlockFeed failed: %v", err)
	}
	defer f.Close()

	endpoint := f.Endpoint()
	if strings.HasSuffix(endpoint, ":0") {
		t.Fatalf("endpoint %s still has port 0", endpoint)
	}

	sub, err := Subscribe(ctx, endpoint)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	// PUB drops messages until the subscription has propagated, so keep
	// publishing until one arrives.
	want := testBlock(7)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = f.Publish(want)
			}
		}
	}()

	got, err := sub.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("block mismatch (-want +got):\n%s", diff)
	}
	if f.Sent() == 0 {
		t.Error("Sent should count published blocks")
	}
}

func TestBlockFeedClosed(t *testing.T) {
	f, err := NewBlockFeed(context.Background(), "tcp://127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("NewBlockFeed failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if err := f.Publish(testBlock(1)); !errors.Is(err, ErrFeedClosed) {
		t.Errorf("expected ErrFeedClosed, got %v", err)
	}
}

func TestBlockFeedBindFailure(t *testing.T) {
	if _, err := NewBlockFeed(context.Background(), "bogus://nowhere", nil); err == nil {
		t.Error("expected bind failure")
	}
}
