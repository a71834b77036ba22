package notification_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"racedirector/pkg/model"
	"racedirector/pkg/notification"
	"racedirector/pkg/settings"

	"github.com/smartystreets/goconvey/convey"
)

type sent struct {
	message string
	chatIDs []int64
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sent
}

func (f *fakeSender) Send(_ context.Context, _, message string, chatIDs []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{message: message, chatIDs: chatIDs})
	return nil
}

func (f *fakeSender) Sent() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

type fakeLister map[model.ConnectionStatus][]settings.Subscriber

func (f fakeLister) ListSubscribers(_ context.Context, status model.ConnectionStatus) ([]settings.Subscriber, error) {
	return f[status], nil
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestManager(t *testing.T) {
	convey.Convey("Given a notifier with static chats and subscribers", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sender := &fakeSender{}
		m := notification.NewManager(sender,
			notification.WithChatIDs(10, 20),
			notification.WithLister(fakeLister{
				model.Error:        {{ChatID: 20}, {ChatID: 30}},
				model.Disconnected: {{ChatID: 30}},
			}),
		)
		go func() { _ = m.Serve(ctx) }()

		convey.Convey("When the connection flaps", func() {
			for _, s := range []model.ConnectionStatus{
				model.Connecting, model.Connected, model.Error, model.Disconnected,
				model.Connecting, model.Error, model.Disconnected, model.Connecting, model.Connected,
			} {
				m.Notify(s, "http://localhost:6397")
			}

			convey.Convey("Then alerts go to the right chats and silent statuses are skipped", func() {
				convey.So(eventually(func() bool { return len(sender.Sent()) == 6 }), convey.ShouldBeTrue)
				time.Sleep(20 * time.Millisecond)
				got := sender.Sent()
				convey.So(got, convey.ShouldHaveLength, 6)
				convey.So(got[0].chatIDs, convey.ShouldResemble, []int64{10, 20})
				convey.So(got[0].message, convey.ShouldContainSubstring, "Connected")
				convey.So(got[1].chatIDs, convey.ShouldResemble, []int64{10, 20, 30})
				convey.So(got[2].chatIDs, convey.ShouldResemble, []int64{30})
				convey.So(got[3].message, convey.ShouldContainSubstring, "Lost")
				convey.So(got[4].chatIDs, convey.ShouldResemble, []int64{30})
				convey.So(got[5].message, convey.ShouldContainSubstring, "http://localhost:6397")
			})
		})

		convey.Convey("When the same status is reported twice in a row", func() {
			m.Notify(model.Error, "")
			m.Notify(model.Error, "")
			m.Notify(model.Connected, "")

			convey.Convey("Then the repeat is suppressed", func() {
				convey.So(eventually(func() bool { return len(sender.Sent()) == 2 }), convey.ShouldBeTrue)
				time.Sleep(20 * time.Millisecond)
				convey.So(sender.Sent(), convey.ShouldHaveLength, 2)
			})
		})
	})

	convey.Convey("Given a notifier that resolves the endpoint itself", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sender := &fakeSender{}
		m := notification.NewManager(sender,
			notification.WithChatIDs(10),
			notification.WithEndpoint(func() string { return "http://sim:6397" }),
		)
		go func() { _ = m.Serve(ctx) }()

		convey.Convey("When an alert is queued without an endpoint", func() {
			m.Notify(model.Connected, "")

			convey.Convey("Then the resolved endpoint is in the message", func() {
				convey.So(eventually(func() bool { return len(sender.Sent()) == 1 }), convey.ShouldBeTrue)
				convey.So(sender.Sent()[0].message, convey.ShouldContainSubstring, "http://sim:6397")
			})
		})
	})

	convey.Convey("Given a notifier nobody listens to", t, func() {
		sender := &fakeSender{}
		m := notification.NewManager(sender)

		convey.Convey("When more alerts than the queue holds arrive", func() {
			for i := 0; i < 100; i++ {
				m.Notify(model.Error, "")
			}

			convey.Convey("Then Notify did not block and nothing was sent", func() {
				convey.So(sender.Sent(), convey.ShouldBeEmpty)
			})
		})
	})
}
