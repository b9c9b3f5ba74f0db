package mqtt

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/orbus.go/pkg/framework"
	"github.com/robotalks/orbus.go/pkg/orbus"
)

// Topics relative to <prefix><node>/.
const (
	TopicPackets = "pkt/"
	TopicSend    = "send"
	TopicState   = "state"
	TopicInfo    = "info"
	TopicTime    = "time"
)

// StateOffline is published as will when the bridge disappears.
const StateOffline = "OFFLINE"

// Bridge forwards packets between a Controller and MQTT:
// received packets of selected categories are published to <node>/pkt/<category>,
// batches published to <node>/send are queued and flushed by the loop.
type Bridge struct {
	Queue        *Queue
	Controller   *orbus.Controller
	Node         string
	Categories   []byte
	FlushTimeout time.Duration

	sub *Subscription
}

// NewBridge creates a Bridge from broker URL.
func NewBridge(brokerURL, node string, ctl *orbus.Controller) (*Bridge, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(topicPrefix+node+"/"+TopicState, []byte(StateOffline), 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("orbus:" + node)
	}
	b := &Bridge{
		Queue:        NewQueue(opts, topicPrefix),
		Controller:   ctl,
		Node:         node,
		FlushTimeout: orbus.DefaultTimeout,
	}
	b.Queue.OnConnect = func(*Queue) { b.publishState(ctl.State()) }
	return b, nil
}

// Topic gets the full topic relative to the queue prefix.
func (b *Bridge) Topic(name string) string {
	return b.Node + "/" + name
}

// PacketTopic gets the topic for packets of the category.
func (b *Bridge) PacketTopic(category byte) string {
	return b.Topic(TopicPackets + strconv.Itoa(int(category)))
}

// Setup registers packet handlers and subscribes outgoing batches.
func (b *Bridge) Setup() error {
	for n, cat := range b.Categories {
		if err := b.Controller.Register(cat, b); err != nil {
			for _, registered := range b.Categories[:n] {
				b.Controller.Clear(registered)
			}
			return err
		}
	}
	b.sub = b.Queue.Sub(b.Topic(TopicSend), b.handleSend)
	return nil
}

// Teardown undoes Setup.
func (b *Bridge) Teardown() {
	for _, cat := range b.Categories {
		b.Controller.Clear(cat)
	}
	if b.sub != nil {
		if err := b.sub.Close(); err != nil {
			glog.Warningf("unsubscribe: %v", err)
		}
		b.sub = nil
	}
}

// HandlePacket implements orbus.Handler.
func (b *Bridge) HandlePacket(ctx context.Context, pkt *orbus.Packet) {
	b.Queue.Pub(b.PacketTopic(pkt.Category), EncodePacket(pkt))
}

// StateChanged implements orbus.StateNotifier.
func (b *Bridge) StateChanged(ctx context.Context, state orbus.ConnState) {
	b.publishState(state)
}

// PublishJSON publishes a retained JSON document under the node.
func (b *Bridge) PublishJSON(name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b.Queue.PubWith(b.Topic(name), data, 1, true)
	return nil
}

// RunTask implements fx.Task, it sends queued packets.
func (b *Bridge) RunTask(ctx context.Context) error {
	if b.Controller.Pending() == 0 || b.Controller.State() != orbus.StateOpen {
		return nil
	}
	return b.Controller.SendPending(b.FlushTimeout)
}

// AddToLoop implements fx.LoopAdder.
// The loop also starts the bridge as a Runnable.
func (b *Bridge) AddToLoop(loop *fx.Loop) {
	loop.AddTask(fx.PrLvAcuate, b)
}

// Run implements fx.Runnable.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.Setup(); err != nil {
		return err
	}
	defer b.Teardown()
	token := b.Queue.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return err
	}
	<-ctx.Done()
	token = b.Queue.PubWith(b.Topic(TopicState), []byte(StateOffline), 1, true)
	token.WaitTimeout(time.Second)
	b.Queue.Close()
	return nil
}

func (b *Bridge) publishState(state orbus.ConnState) {
	b.Queue.PubWith(b.Topic(TopicState), []byte(state.String()), 1, true)
}

func (b *Bridge) handleSend(topic string, payload []byte) {
	pkts, err := DecodeBatch(payload)
	if err != nil {
		glog.Warningf("%s: %v", topic, err)
		return
	}
	for _, pkt := range pkts {
		if pkt.IsAlive() {
			glog.Warningf("%s: drop liveness packet", topic)
			continue
		}
		b.Controller.Enqueue(pkt)
	}
}
