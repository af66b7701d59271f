package publisher

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"ride-replay/internal/replay"
)

type NATSPublisher struct {
	nc          *nats.Conn
	prefix      string
	session     string
	logSubjects bool
	metrics     PublisherMetrics
	sub         *nats.Subscription
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, logSubjects bool, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("ride-replay"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{
		nc:          nc,
		prefix:      subjectPrefix(prefix),
		session:     uuid.NewString(),
		logSubjects: logSubjects,
		metrics:     m,
	}, nil
}

func (p *NATSPublisher) Close() {
	if p.sub != nil {
		_ = p.sub.Unsubscribe()
	}
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

// Session identifies this replay process in message ids.
func (p *NATSPublisher) Session() string { return p.session }

// FrameSubject is where committed frames are published.
func (p *NATSPublisher) FrameSubject() string { return p.prefix + ".frame" }

// ControlSubject is where time commands are received.
func (p *NATSPublisher) ControlSubject() string { return p.prefix + ".control.time" }

// PublishFrame publishes f as JSON. The message id lets JetStream streams
// deduplicate redeliveries of the same frame.
func (p *NATSPublisher) PublishFrame(f replay.Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(p.FrameSubject())
	msg.Header.Set(nats.MsgIdHdr, frameMsgID(p.session, f.Seq))
	msg.Data = b
	if p.logSubjects {
		log.Printf("nats publish subject=%s seq=%d", msg.Subject, f.Seq)
	}
	start := time.Now()
	err = p.nc.PublishMsg(msg)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

// TimeCommand is the payload accepted on the control subject.
type TimeCommand struct {
	Time *float64 `json:"time"`
}

type commandReply struct {
	Frame *replay.Frame `json:"frame,omitempty"`
	Error string        `json:"error,omitempty"`
}

// SetTimeFunc applies a time command and returns the resolved frame.
type SetTimeFunc func(t float64) (replay.Frame, error)

// SubscribeTimeCommands applies every command received on the control
// subject. Requests with a reply subject get the resolved frame back.
func (p *NATSPublisher) SubscribeTimeCommands(apply SetTimeFunc) error {
	sub, err := p.nc.Subscribe(p.ControlSubject(), func(m *nats.Msg) {
		reply := handleTimeCommand(m.Data, apply)
		if m.Reply == "" {
			if reply.Error != "" {
				log.Printf("time command rejected: %s", reply.Error)
			}
			return
		}
		b, err := json.Marshal(reply)
		if err != nil {
			log.Printf("marshal time command reply: %v", err)
			return
		}
		if err := m.Respond(b); err != nil {
			log.Printf("respond to time command: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", p.ControlSubject(), err)
	}
	p.sub = sub
	log.Printf("listening for time commands on %s", p.ControlSubject())
	return nil
}

func handleTimeCommand(data []byte, apply SetTimeFunc) commandReply {
	var cmd TimeCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return commandReply{Error: fmt.Sprintf("invalid command: %v", err)}
	}
	if cmd.Time == nil {
		return commandReply{Error: "missing time"}
	}
	f, err := apply(*cmd.Time)
	if err != nil {
		return commandReply{Error: err.Error()}
	}
	return commandReply{Frame: &f}
}

func frameMsgID(session string, seq uint64) string {
	return fmt.Sprintf("%s-%d", session, seq)
}

func subjectPrefix(s string) string {
	parts := strings.Split(strings.TrimSpace(s), ".")
	out := parts[:0]
	for _, p := range parts {
		if p = subjectToken(p); p != "_" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return "replay"
	}
	return strings.Join(out, ".")
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
