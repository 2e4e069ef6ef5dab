package conn

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
	"github.com/grovetools/cncctl/config"
	"github.com/sirupsen/logrus"
)

// Channel is one open duplex connection to the controller.
type Channel interface {
	// Receive blocks for the next inbound payload, decoded to plain Go values.
	Receive() (interface{}, error)
	// Send writes a text message.
	Send(msg string) error
	Close() error
}

// Dialer opens channels.
type Dialer interface {
	Dial(ctx context.Context, cfg config.ControllerConfig) (Channel, error)
}

const writeWait = 10 * time.Second

var cborDecoder = func() cbor.DecMode {
	mode, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// WebsocketDialer dials the controller's websocket endpoint. Text frames
// carry JSON, binary frames CBOR.
type WebsocketDialer struct {
	Logger *logrus.Entry
}

// Dial connects to cfg.WebsocketURL().
func (d *WebsocketDialer) Dial(ctx context.Context, cfg config.ControllerConfig) (Channel, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.WebsocketURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to controller: %w", err)
	}

	ch := &wsChannel{
		conn:         conn,
		pingInterval: cfg.PingInterval,
		done:         make(chan struct{}),
		logger:       d.Logger,
	}

	if ch.pingInterval > 0 {
		ch.conn.SetReadDeadline(time.Now().Add(ch.readTimeout()))
		ch.conn.SetPongHandler(func(string) error {
			ch.conn.SetReadDeadline(time.Now().Add(ch.readTimeout()))
			return nil
		})
		go ch.pingPump()
	}

	return ch, nil
}

type wsChannel struct {
	conn         *websocket.Conn
	pingInterval time.Duration
	writeMu      sync.Mutex
	done         chan struct{}
	closeOnce    sync.Once
	logger       *logrus.Entry
}

func (c *wsChannel) readTimeout() time.Duration {
	return 3 * c.pingInterval
}

func (c *wsChannel) Receive() (interface{}, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if c.pingInterval > 0 {
			// Any traffic proves the peer alive.
			c.conn.SetReadDeadline(time.Now().Add(c.readTimeout()))
		}

		var v interface{}
		switch messageType {
		case websocket.TextMessage:
			err = json.Unmarshal(data, &v)
		case websocket.BinaryMessage:
			err = cborDecoder.Unmarshal(data, &v)
		default:
			continue
		}
		if err != nil {
			if c.logger != nil {
				c.logger.WithError(err).Debug("Dropping undecodable frame")
			}
			continue
		}
		return v, nil
	}
}

func (c *wsChannel) Send(msg string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (c *wsChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// pingPump keeps the connection alive and detects dead peers.
func (c *wsChannel) pingPump() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				c.conn.Close()
				return
			}
		}
	}
}
