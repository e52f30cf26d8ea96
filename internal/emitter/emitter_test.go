package emitter

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type publish struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeClient implements the parts of mqtt.Client the emitter uses.
type fakeClient struct {
	mqtt.Client
	err       error
	published []publish
}

func (c *fakeClient) IsConnected() bool { return true }
func (c *fakeClient) Disconnect(uint)   {}
func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.published = append(c.published, publish{topic: topic, qos: qos, payload: payload.([]byte)})
	return &fakeToken{err: c.err}
}

func connectedEmitter(c *fakeClient) *MQTTEmitter {
	e := NewMQTTEmitter("localhost:1883", "attest/status/", "attest-test", nil)
	e.Client = c
	e.setConnected(true)
	return e
}

func TestNoop(t *testing.T) {
	var e Emitter = Noop{}
	if err := e.Emit(Event{Type: TypeTaskDone}); err != nil {
		t.Errorf("Emit() error = %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestEmitPublishesToTypedTopic(t *testing.T) {
	c := &fakeClient{}
	e := connectedEmitter(c)

	if err := e.Emit(Event{Type: TypeTaskDone, Job: "blink", Board: "A1", Success: true}); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	if len(c.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(c.published))
	}
	p := c.published[0]
	if p.topic != "attest/status/task_done" || p.qos != 1 {
		t.Errorf("topic = %s qos = %d", p.topic, p.qos)
	}

	var got Event
	if err := json.Unmarshal(p.payload, &got); err != nil {
		t.Fatal(err)
	}
	if got.Job != "blink" || !got.Success || got.Timestamp.IsZero() {
		t.Errorf("payload = %+v", got)
	}
	if st := e.Stats(); st.Published["attest/status/task_done"] != 1 || st.Errors != 0 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestEmitErrors(t *testing.T) {
	e := NewMQTTEmitter("localhost:1883", "attest", "attest-test", nil)
	if err := e.Emit(Event{Type: TypeDiscovery}); err == nil {
		t.Error("Emit() without connection succeeded")
	}

	c := &fakeClient{err: errors.New("broker gone")}
	e = connectedEmitter(c)
	if err := e.Emit(Event{Type: TypeDiscovery}); err == nil {
		t.Error("Emit() with failing publish succeeded")
	}
	if st := e.Stats(); st.Errors != 1 {
		t.Errorf("Errors = %d, want 1", st.Errors)
	}

	e.Close()
	if e.Stats().Connected {
		t.Error("still connected after Close()")
	}
}

func TestBrokerURL(t *testing.T) {
	if got := NewMQTTEmitter("broker:1883", "t", "c", nil).brokerURL(); got != "tcp://broker:1883" {
		t.Errorf("brokerURL() = %s", got)
	}
	if got := NewMQTTEmitter("ssl://broker:8883", "t", "c", nil).brokerURL(); got != "ssl://broker:8883" {
		t.Errorf("brokerURL() = %s", got)
	}
}
