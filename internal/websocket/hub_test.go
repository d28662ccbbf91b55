package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailtrace/backend/internal/domain"
)

func TestHub_DeliverToOwnerOnly(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	owner := &Client{ID: "c1", UserID: "user-1", send: make(chan []byte, 1)}
	other := &Client{ID: "c2", UserID: "user-2", send: make(chan []byte, 1)}
	hub.register <- owner
	hub.register <- other

	hub.Notify(&domain.TrackingEvent{
		Type:       domain.EventOpen,
		UserID:     "user-1",
		TrackingID: "tid-1",
		Recipient:  "rcpt@example.com",
		OccurredAt: time.Now(),
	})

	select {
	case payload := <-owner.send:
		var msg Message
		require.NoError(t, json.Unmarshal(payload, &msg))
		assert.Equal(t, MessageTypeTracking, msg.Type)
	case <-time.After(time.Second):
		t.Fatal("event was not delivered to the owning user")
	}

	// 事件不会泄漏给其他用户的连接
	select {
	case <-other.send:
		t.Fatal("event delivered to another user")
	default:
	}

	hub.unregister <- owner
	hub.unregister <- other
}

func TestHub_DropClientAfterShutdown(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	cancel()
	<-hub.done

	// 主循环退出后归还客户端不能阻塞读循环
	finished := make(chan struct{})
	go func() {
		hub.dropClient(&Client{ID: "c1", UserID: "user-1", send: make(chan []byte, 1)})
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("dropClient blocked after hub shutdown")
	}
}
