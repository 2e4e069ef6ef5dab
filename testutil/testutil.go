package testutil

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
	"github.com/grovetools/cncctl/config"
)

// WebsocketPath is where the fake controller serves its delta channel.
const WebsocketPath = "/websocket"

// Request is a recorded command API request.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
	Fields map[string]string
	Files  map[string]FileUpload
}

// FileUpload is a multipart file part of a recorded request.
type FileUpload struct {
	Name string
	Data []byte
}

type response struct {
	status int
	body   string
}

// FakeController serves the controller's HTTP API and websocket delta
// channel for tests.
type FakeController struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu        sync.Mutex
	requests  []Request
	responses map[string]response
	plans     map[string][]interface{}
	device    interface{}
	template  interface{}
	initial   interface{}
	conns     map[*websocket.Conn]struct{}
	connects  int
	inbound   []string

	writeMu sync.Mutex
}

// NewFakeController starts a fake controller that is closed with the test.
func NewFakeController(t *testing.T) *FakeController {
	t.Helper()

	f := &FakeController{
		t:         t,
		responses: make(map[string]response),
		plans:     make(map[string][]interface{}),
		device:    map[string]interface{}{},
		template:  map[string]interface{}{},
		conns:     make(map[*websocket.Conn]struct{}),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.Close)
	return f
}

// Close drops all connections and stops the server.
func (f *FakeController) Close() {
	f.DropConnections()
	f.server.Close()
}

// URL returns the server's base URL.
func (f *FakeController) URL() string { return f.server.URL }

// Config returns client settings pointing at the fake controller with short
// intervals suitable for tests.
func (f *FakeController) Config() config.ControllerConfig {
	u, _ := url.Parse(f.server.URL)
	host, portStr, _ := net.SplitHostPort(u.Host)
	port, _ := strconv.Atoi(portStr)
	return config.ControllerConfig{
		Host:              host,
		Port:              port,
		WebsocketPath:     WebsocketPath,
		APIPath:           "/api",
		ReconnectInterval: 20 * time.Millisecond,
		RequestTimeout:    2 * time.Second,
		PingInterval:      time.Second,
	}
}

// SetResponse makes METHOD path answer with status and body.
func (f *FakeController) SetResponse(method, path string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[method+" "+path] = response{status: status, body: body}
}

// SetPlan scripts GET /api/path/<name>; each request takes the next
// response and the last one repeats.
func (f *FakeController) SetPlan(name string, responses ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plans[name] = responses
}

// SetDeviceConfig sets the body of GET /api/config/load.
func (f *FakeController) SetDeviceConfig(v interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.device = v
}

// SetTemplate sets the body of GET /config-template.json.
func (f *FakeController) SetTemplate(v interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.template = v
}

// SetInitialState sets a delta pushed to every new websocket connection.
func (f *FakeController) SetInitialState(v interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initial = v
}

// Push sends v as a JSON text frame to every connected client.
func (f *FakeController) Push(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		f.t.Errorf("marshal push: %v", err)
		return
	}
	f.PushRaw(websocket.TextMessage, data)
}

// PushCBOR sends v as a CBOR binary frame to every connected client.
func (f *FakeController) PushCBOR(v interface{}) {
	data, err := cbor.Marshal(v)
	if err != nil {
		f.t.Errorf("marshal push: %v", err)
		return
	}
	f.PushRaw(websocket.BinaryMessage, data)
}

// PushRaw sends a frame to every connected client.
func (f *FakeController) PushRaw(messageType int, data []byte) {
	f.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(f.conns))
	for c := range f.conns {
		conns = append(conns, c)
	}
	f.mu.Unlock()

	for _, c := range conns {
		f.write(c, messageType, data)
	}
}

// DropConnections closes every websocket connection.
func (f *FakeController) DropConnections() {
	f.mu.Lock()
	conns := f.conns
	f.conns = make(map[*websocket.Conn]struct{})
	f.mu.Unlock()

	for c := range conns {
		c.Close()
	}
}

// Connects returns how many websocket connections were accepted.
func (f *FakeController) Connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

// Connected returns the number of open websocket connections.
func (f *FakeController) Connected() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

// Inbound returns text frames received from clients.
func (f *FakeController) Inbound() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.inbound...)
}

// Requests returns recorded API requests.
func (f *FakeController) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}

// RequestsTo returns recorded requests matching method and path.
func (f *FakeController) RequestsTo(method, path string) []Request {
	var out []Request
	for _, r := range f.Requests() {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// Eventually polls cond until it holds or the timeout expires.
func Eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

func (f *FakeController) write(c *websocket.Conn, messageType int, data []byte) {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	c.SetWriteDeadline(time.Now().Add(time.Second))
	_ = c.WriteMessage(messageType, data)
}

func (f *FakeController) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == WebsocketPath {
		f.serveWebsocket(w, r)
		return
	}

	rec := Request{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone()}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err == nil {
			rec.Fields = make(map[string]string)
			rec.Files = make(map[string]FileUpload)
			for k, v := range r.MultipartForm.Value {
				if len(v) > 0 {
					rec.Fields[k] = v[0]
				}
			}
			for k, headers := range r.MultipartForm.File {
				if len(headers) == 0 {
					continue
				}
				file, err := headers[0].Open()
				if err != nil {
					continue
				}
				data, _ := io.ReadAll(file)
				file.Close()
				rec.Files[k] = FileUpload{Name: headers[0].Filename, Data: data}
			}
		}
	} else {
		rec.Body, _ = io.ReadAll(r.Body)
	}

	f.mu.Lock()
	f.requests = append(f.requests, rec)
	resp, scripted := f.responses[r.Method+" "+r.URL.Path]
	var body interface{}
	switch {
	case scripted:
	case r.Method == http.MethodGet && r.URL.Path == "/config-template.json":
		body = f.template
	case r.Method == http.MethodGet && r.URL.Path == "/api/config/load":
		body = f.device
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/path/"):
		name := strings.TrimPrefix(r.URL.Path, "/api/path/")
		list := f.plans[name]
		if len(list) == 0 {
			f.mu.Unlock()
			http.NotFound(w, r)
			return
		}
		body = list[0]
		if len(list) > 1 {
			f.plans[name] = list[1:]
		}
	default:
		body = map[string]interface{}{}
	}
	f.mu.Unlock()

	if scripted {
		w.WriteHeader(resp.status)
		io.WriteString(w, resp.body)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func (f *FakeController) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	f.mu.Lock()
	f.conns[conn] = struct{}{}
	f.connects++
	initial := f.initial
	f.mu.Unlock()

	if initial != nil {
		if data, err := json.Marshal(initial); err == nil {
			f.write(conn, websocket.TextMessage, data)
		}
	}

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			f.mu.Lock()
			delete(f.conns, conn)
			f.mu.Unlock()
			conn.Close()
			return
		}
		if messageType == websocket.TextMessage {
			f.mu.Lock()
			f.inbound = append(f.inbound, string(data))
			f.mu.Unlock()
		}
	}
}
