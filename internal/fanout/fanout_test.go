package fanout

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stoik/mailhouse/internal/domain"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	f := New()
	userID := uuid.New()
	ch, unsubscribe := f.Subscribe(userID, 4)
	defer unsubscribe()

	f.Publish(userID, domain.Message{Subject: "hello"})

	select {
	case msg := <-ch:
		assert.Equal(t, "hello", msg.Subject)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestPublishToNoSubscribersIsNoop(t *testing.T) {
	f := New()
	f.Publish(uuid.New(), domain.Message{Subject: "nobody listening"})
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	f := New()
	userID := uuid.New()
	_, unsubscribe := f.Subscribe(userID, 4)
	unsubscribe()

	require.Equal(t, 0, f.SubscriberCount(userID))
	f.Publish(userID, domain.Message{Subject: "too late"})
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	f := New()
	userID := uuid.New()
	ch, unsubscribe := f.Subscribe(userID, 1)
	defer unsubscribe()

	f.Publish(userID, domain.Message{Subject: "first"})
	f.Publish(userID, domain.Message{Subject: "dropped"})

	msg := <-ch
	assert.Equal(t, "first", msg.Subject)
	select {
	case <-ch:
		t.Fatal("expected no second message")
	default:
	}
}

func TestMultipleSubscribersEachGetTheMessage(t *testing.T) {
	f := New()
	userID := uuid.New()
	ch1, unsub1 := f.Subscribe(userID, 4)
	ch2, unsub2 := f.Subscribe(userID, 4)
	defer unsub1()
	defer unsub2()

	f.Publish(userID, domain.Message{Subject: "broadcast"})

	for _, ch := range []<-chan domain.Message{ch1, ch2} {
		select {
		case msg := <-ch:
			assert.Equal(t, "broadcast", msg.Subject)
		case <-time.After(time.Second):
			t.Fatal("message not delivered to all subscribers")
		}
	}
}
