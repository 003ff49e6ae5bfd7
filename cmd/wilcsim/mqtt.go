package main

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	mqtt "github.com/soypat/natiu-mqtt"
)

var pubFlags, _ = mqtt.NewPublishFlags(mqtt.QoS0, false, false)

// publisher sends simulation events to an MQTT broker.
type publisher struct {
	mu     sync.Mutex
	conn   net.Conn
	client *mqtt.Client
	vars   mqtt.VariablesPublish
	logger *slog.Logger
}

func dialPublisher(addr, clientID, topic string, logger *slog.Logger) (*publisher, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, err
	}
	client := mqtt.NewClient(mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, 4096)},
		OnPub: func(pubHead mqtt.Header, varPub mqtt.VariablesPublish, r io.Reader) error {
			logger.Debug("mqtt:received", slog.String("topic", string(varPub.TopicName)))
			return nil
		},
	})
	var varconn mqtt.VariablesConnect
	varconn.SetDefaultMQTT([]byte(clientID))
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	if err = client.StartConnect(conn, &varconn); err != nil {
		conn.Close()
		return nil, err
	}
	for retries := 50; retries > 0 && !client.IsConnected(); retries-- {
		if err = client.HandleNext(); err != nil {
			break
		}
	}
	if !client.IsConnected() {
		conn.Close()
		return nil, errors.Join(errors.New("mqtt connect failed"), err, client.Err())
	}
	logger.Info("mqtt:connected", slog.String("broker", addr), slog.String("topic", topic))
	return &publisher{
		conn:   conn,
		client: client,
		vars:   mqtt.VariablesPublish{TopicName: []byte(topic), PacketIdentifier: 1},
		logger: logger,
	}, nil
}

// publish sends payload. A nil publisher discards it.
func (p *publisher) publish(payload string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn.SetDeadline(time.Now().Add(5 * time.Second))
	p.vars.PacketIdentifier++
	if err := p.client.PublishPayload(pubFlags, p.vars, []byte(payload)); err != nil {
		p.logger.Error("mqtt:publish-failed", slog.String("err", err.Error()))
	}
}

func (p *publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.conn.Close()
}
