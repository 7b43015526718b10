//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"rubberweigh/internal/config"
	"rubberweigh/internal/link"
	"rubberweigh/internal/modules/deliveries/types"
	"rubberweigh/internal/mqtt"
	shared "rubberweigh/shared/types"
)

const repoRootRel = ".."
const gatewayPkgRel = "./cmd/gateway"

const mqttPort = nat.Port("1883/tcp")

type backendRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

func TestPipeline_StationToBackend(t *testing.T) {
	repoRoot := repoRootPath(t)
	brokerHost, brokerPort := startMosquitto(t)

	var (
		mu       sync.Mutex
		received []backendRequest
	)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		received = append(received, backendRequest{Method: r.Method, Path: r.URL.Path, Body: body})
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	t.Cleanup(backend.Close)

	bin := buildBinary(t, repoRoot)
	addr := pickFreeAddr(t)

	cmd := exec.Command(bin)
	cmd.Env = append(os.Environ(),
		"APP_ENV=dev",
		"LOG_LEVEL=debug",
		"HTTP_ADDR="+addr,
		"SQLITE_PATH="+filepath.Join(t.TempDir(), "gateway.db"),
		"BACKEND_URL="+backend.URL,
		"HTTP_RETRY_DELAY=100ms",
		"MQTT_BROKER="+brokerHost,
		"MQTT_PORT="+strconv.Itoa(brokerPort),
		"MQTT_TOPIC_PREFIX=e2e",
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start gateway: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	})

	client := &http.Client{Timeout: 2 * time.Second}
	waitForMQTT(t, client, "http://"+addr+"/healthz", 15*time.Second)

	station, err := mqtt.NewClient(config.Base{
		MQTTBroker:   brokerHost,
		MQTTPort:     brokerPort,
		MQTTClientID: "e2e-scale-3",
	}, slog.Default())
	if err != nil {
		t.Fatalf("station client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := station.Connect(ctx); err != nil {
		t.Fatalf("station connect: %v", err)
	}
	t.Cleanup(station.Disconnect)

	sender := link.New(link.NewMQTTRadio(station, "e2e", "scale-3"), link.DefaultOptions(), slog.Default())
	res, err := sender.Send(ctx, shared.WeightRecord{TagID: "04A1B2C3", Payload: "0.35", Kind: shared.KindMoistureRatio})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !res.Delivered || res.Attempts != 1 {
		t.Fatalf("send result = %+v; want delivered on first attempt", res)
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	mu.Lock()
	got := append([]backendRequest(nil), received...)
	mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("backend received %d requests; want 1", len(got))
	}
	req := got[0]
	if req.Method != http.MethodPut || req.Path != "/giaodich/tsc-drc/" {
		t.Errorf("request = %s %s; want PUT /giaodich/tsc-drc/", req.Method, req.Path)
	}
	if req.Body["RFID"] != "04A1B2C3" || req.Body["TSC"] != 0.35 {
		t.Errorf("body = %v", req.Body)
	}

	var deliveries []types.Delivery
	getJSON(t, client, "http://"+addr+"/api/deliveries?limit=5", &deliveries)
	if len(deliveries) != 1 || deliveries[0].Outcome != types.OutcomeDelivered || deliveries[0].StationID != "scale-3" || deliveries[0].StatusCode != http.StatusCreated {
		t.Fatalf("deliveries = %+v", deliveries)
	}

	var stations []types.Station
	getJSON(t, client, "http://"+addr+"/api/stations", &stations)
	if len(stations) != 1 || stations[0].ID != "scale-3" || stations[0].Source != "mqtt" {
		t.Fatalf("stations = %+v", stations)
	}

	stopGateway(t, cmd)
}

func startMosquitto(t *testing.T) (string, int) {
	t.Helper()
	ctx := context.Background()

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "eclipse-mosquitto:2",
			Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
			ExposedPorts: []string{string(mqttPort)},
			WaitingFor:   wait.ForListeningPort(mqttPort).WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start mosquitto container: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Terminate(ctx)
	})

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("mosquitto host: %v", err)
	}
	port, err := c.MappedPort(ctx, mqttPort)
	if err != nil {
		t.Fatalf("mosquitto port: %v", err)
	}
	return host, port.Int()
}

func repoRootPath(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	repo := filepath.Clean(filepath.Join(wd, repoRootRel))
	if _, err := os.Stat(filepath.Join(repo, "go.mod")); err != nil {
		t.Fatalf("repo root %q does not contain go.mod: %v", repo, err)
	}
	return repo
}

func buildBinary(t *testing.T, repoRoot string) string {
	t.Helper()

	out := filepath.Join(t.TempDir(), "rubberweigh-gateway")
	build := exec.Command("go", "build", "-o", out, gatewayPkgRel)
	build.Dir = repoRoot
	build.Env = os.Environ()

	b, err := build.CombinedOutput()
	if err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(b))
	}
	return out
}

func pickFreeAddr(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen :0: %v", err)
	}
	defer ln.Close()

	return ln.Addr().String()
}

// waitForMQTT polls /healthz until the gateway reports a connected broker,
// which also means its records subscription is in place.
func waitForMQTT(t *testing.T, client *http.Client, url string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			var body map[string]string
			_ = json.NewDecoder(resp.Body).Decode(&body)
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK && body["mqtt"] == "connected" {
				// Let the asynchronous resubscribe settle.
				time.Sleep(500 * time.Millisecond)
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("gateway not connected to mqtt after %s: %s", timeout, url)
}

func getJSON(t *testing.T, client *http.Client, url string, v any) {
	t.Helper()

	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status=%d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func stopGateway(t *testing.T, cmd *exec.Cmd) {
	t.Helper()

	_ = cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("gateway exited with error: %v", err)
		}
	case <-time.After(10 * time.Second):
		_ = cmd.Process.Kill()
		t.Fatalf("gateway did not exit after SIGTERM")
	}
}
