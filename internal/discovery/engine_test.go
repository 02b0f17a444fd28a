package discovery

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/avr-control/internal/catalog"
	"github.com/nerrad567/avr-control/internal/registry"
	"github.com/nerrad567/avr-control/internal/request"
)

// doerFunc adapts a function to request.Doer.
type doerFunc func(ctx context.Context, req *request.Request) (*request.Response, error)

func (f doerFunc) Do(ctx context.Context, req *request.Request) (*request.Response, error) {
	return f(ctx, req)
}

// unreachable is a doer for which every host is down.
var unreachable = doerFunc(func(context.Context, *request.Request) (*request.Response, error) {
	return nil, request.ErrTransport
})

type stubModels struct {
	models []catalog.ReceiverModel
}

func (s stubModels) FindModel(_ context.Context, manufacturer, name string) (*catalog.ReceiverModel, error) {
	for i := range s.models {
		if strings.EqualFold(s.models[i].Manufacturer, manufacturer) && s.models[i].Name == name {
			m := s.models[i]
			return &m, nil
		}
	}
	return nil, catalog.ErrModelNotFound
}

var x2300w = catalog.ReceiverModel{ID: 1, Manufacturer: "Denon", Name: "AVR-X2300W"}

// fakeClock returns a fixed time until advanced.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingNotifier struct {
	mu      sync.Mutex
	sighted []bool
	expired []int
}

func (n *recordingNotifier) DeviceSighted(_ registry.Device, created bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sighted = append(n.sighted, created)
}

func (n *recordingNotifier) DevicesExpired(count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.expired = append(n.expired, count)
}

func newTestEngine(t *testing.T, doer request.Doer) (*Engine, *registry.MemoryRepository, *fakeClock) {
	t.Helper()
	repo := registry.NewMemoryRepository()
	e := NewEngine(repo, stubModels{models: []catalog.ReceiverModel{x2300w}}, Options{})
	e.SetDoer(doer)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	e.SetClock(clock.Now)
	e.arpTable = func() map[string]string { return nil }
	e.lookupHost = func(context.Context, string) string { return "" }
	e.localIP = func() (net.IP, error) { return nil, errors.New("offline") }
	return e, repo, clock
}

func TestRecordSighting_MergesSameAddress(t *testing.T) {
	tests := []struct {
		name   string
		first  registry.Method
		second registry.Method
	}{
		{"passive then active", registry.MethodPassive, registry.MethodActiveScan},
		{"active then active", registry.MethodActiveScan, registry.MethodActiveScan},
		{"active then passive", registry.MethodActiveScan, registry.MethodPassive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, repo, _ := newTestEngine(t, unreachable)
			ctx := context.Background()

			first, err := e.RecordSighting(ctx, Sighting{Address: "192.168.1.50", Hostname: "denon.lan", MAC: "00:05:cd:aa:bb:cc", Method: tt.first})
			if err != nil {
				t.Fatalf("RecordSighting() error = %v", err)
			}
			// Clock not advanced: LastSeen must still increase.
			second, err := e.RecordSighting(ctx, Sighting{Address: "192.168.1.50", Method: tt.second})
			if err != nil {
				t.Fatalf("RecordSighting() second error = %v", err)
			}

			devices, err := repo.ListDevices(ctx, false)
			if err != nil {
				t.Fatalf("ListDevices() error = %v", err)
			}
			if len(devices) != 1 {
				t.Fatalf("records = %d, want 1", len(devices))
			}
			d := devices[0]
			if second.ID != first.ID {
				t.Errorf("ID = %s, want %s", second.ID, first.ID)
			}
			if !d.LastSeen.After(first.LastSeen) {
				t.Errorf("LastSeen = %v, want after %v", d.LastSeen, first.LastSeen)
			}
			if !d.Active {
				t.Error("Active = false, want true")
			}
			if d.Hostname != "denon.lan" || d.MAC != "00:05:cd:aa:bb:cc" {
				t.Errorf("hostname/MAC lost: %q %q", d.Hostname, d.MAC)
			}
			if d.Method != tt.first {
				t.Errorf("Method = %s, want %s", d.Method, tt.first)
			}
		})
	}
}

func TestRecordSighting_ReactivatesAndUpdates(t *testing.T) {
	e, repo, clock := newTestEngine(t, unreachable)
	ctx := context.Background()

	first, err := e.RecordSighting(ctx, Sighting{Address: "10.0.0.5", Method: registry.MethodPassive})
	if err != nil {
		t.Fatalf("RecordSighting() error = %v", err)
	}
	if _, err := repo.MarkInactive(ctx, []string{first.ID}); err != nil {
		t.Fatalf("MarkInactive() error = %v", err)
	}

	later := clock.Now().Add(time.Hour)
	clock.Set(later)
	d, err := e.RecordSighting(ctx, Sighting{Address: "10.0.0.5", Port: 8080, Hostname: "avr.lan", Method: registry.MethodActiveScan})
	if err != nil {
		t.Fatalf("RecordSighting() error = %v", err)
	}
	if !d.Active || !d.LastSeen.Equal(later) || d.Port != 8080 || d.Hostname != "avr.lan" {
		t.Errorf("device = %+v", d)
	}
}

func TestRecordSighting_FriendlyName(t *testing.T) {
	tests := []struct {
		name     string
		sighting Sighting
		want     string
	}{
		{"advertised name", Sighting{Address: "10.0.0.1", Hostname: "h.lan", FriendlyName: "Living Room"}, "Living Room"},
		{"hostname", Sighting{Address: "10.0.0.1", Hostname: "h.lan"}, "h.lan"},
		{"address", Sighting{Address: "10.0.0.1"}, "AVR at 10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _, _ := newTestEngine(t, unreachable)
			tt.sighting.Method = registry.MethodPassive
			d, err := e.RecordSighting(context.Background(), tt.sighting)
			if err != nil {
				t.Fatalf("RecordSighting() error = %v", err)
			}
			if d.FriendlyName != tt.want {
				t.Errorf("FriendlyName = %q, want %q", d.FriendlyName, tt.want)
			}
		})
	}
}

func TestRecordSighting_InvalidAddress(t *testing.T) {
	e, _, _ := newTestEngine(t, unreachable)
	for _, addr := range []string{"", "not-an-ip", "fe80::1"} {
		_, err := e.RecordSighting(context.Background(), Sighting{Address: addr, Method: registry.MethodPassive})
		if !errors.Is(err, ErrInvalidSighting) {
			t.Errorf("RecordSighting(%q) error = %v, want %v", addr, err, ErrInvalidSighting)
		}
	}
}

func TestRecordSighting_ConcurrentFirstSightings(t *testing.T) {
	var identifyCalls atomic.Int32
	slow := doerFunc(func(ctx context.Context, _ *request.Request) (*request.Response, error) {
		identifyCalls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return &request.Response{StatusCode: http.StatusOK, Body: []byte("<title>Denon AVR-X2300W</title>")}, nil
	})
	e, repo, _ := newTestEngine(t, slow)
	notifier := &recordingNotifier{}
	e.SetNotifier(notifier)

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			method := registry.MethodPassive
			if i%2 == 0 {
				method = registry.MethodActiveScan
			}
			if _, err := e.RecordSighting(context.Background(), Sighting{Address: "192.168.1.77", Method: method}); err != nil {
				t.Errorf("RecordSighting() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	devices, err := repo.ListDevices(context.Background(), false)
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("records = %d, want 1", len(devices))
	}
	if devices[0].Model == nil || devices[0].Model.Name != "AVR-X2300W" {
		t.Errorf("Model = %+v, want AVR-X2300W", devices[0].Model)
	}

	created := 0
	for _, c := range notifier.sighted {
		if c {
			created++
		}
	}
	if created != 1 || len(notifier.sighted) != n {
		t.Errorf("notifications = %v, want %d with one creation", notifier.sighted, n)
	}
}

func TestRecordSighting_Identifies(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantModel string
	}{
		{"denon page", http.StatusOK, "<html><title>DENON AVR-X2300W</title></html>", "AVR-X2300W"},
		{"model not in catalog", http.StatusOK, "Denon AVR-X4500H", ""},
		{"other vendor", http.StatusOK, "Yamaha RX-V685", ""},
		{"not 200", http.StatusUnauthorized, "Denon AVR-X2300W", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := doerFunc(func(_ context.Context, req *request.Request) (*request.Response, error) {
				if req.URL != "http://192.168.1.50:80/" {
					t.Errorf("identification URL = %q", req.URL)
				}
				return &request.Response{StatusCode: tt.status, Body: []byte(tt.body)}, nil
			})
			e, _, _ := newTestEngine(t, doer)
			d, err := e.RecordSighting(context.Background(), Sighting{Address: "192.168.1.50", Method: registry.MethodActiveScan})
			if err != nil {
				t.Fatalf("RecordSighting() error = %v", err)
			}

			got := ""
			if d.Model != nil {
				got = d.Model.Name
			}
			if got != tt.wantModel {
				t.Errorf("model = %q, want %q", got, tt.wantModel)
			}
		})
	}
}

func TestExpireStale(t *testing.T) {
	e, repo, clock := newTestEngine(t, unreachable)
	ctx := context.Background()
	now := clock.Now()
	notifier := &recordingNotifier{}
	e.SetNotifier(notifier)

	for addr, age := range map[string]time.Duration{
		"10.0.0.25": 25 * time.Hour,
		"10.0.0.1":  time.Hour,
	} {
		seen := now.Add(-age)
		if err := repo.UpsertDevice(ctx, &registry.Device{
			Address: addr, Active: true, LastSeen: seen, DiscoveredAt: seen, Method: registry.MethodActiveScan,
		}); err != nil {
			t.Fatalf("UpsertDevice() error = %v", err)
		}
	}

	n, err := e.ExpireStale(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("ExpireStale() error = %v", err)
	}
	if n != 1 {
		t.Errorf("ExpireStale() = %d, want 1", n)
	}

	stale, _ := repo.FindDeviceByAddress(ctx, "10.0.0.25")
	fresh, _ := repo.FindDeviceByAddress(ctx, "10.0.0.1")
	if stale.Active {
		t.Error("25h old device still active")
	}
	if !fresh.Active {
		t.Error("1h old device was expired")
	}

	// Records are kept.
	all, _ := repo.ListDevices(ctx, false)
	if len(all) != 2 {
		t.Errorf("records = %d, want 2", len(all))
	}
	if len(notifier.expired) != 1 || notifier.expired[0] != 1 {
		t.Errorf("expired notifications = %v, want [1]", notifier.expired)
	}

	if _, err := e.ExpireStale(ctx, 0); !errors.Is(err, ErrInvalidMaxAge) {
		t.Errorf("ExpireStale(0) error = %v, want %v", err, ErrInvalidMaxAge)
	}
}

func TestListDevices(t *testing.T) {
	doer := doerFunc(func(_ context.Context, req *request.Request) (*request.Response, error) {
		if strings.Contains(req.URL, "10.0.0.2") {
			return &request.Response{StatusCode: http.StatusOK, Body: []byte("denon avr-x2300w")}, nil
		}
		return nil, request.ErrTransport
	})
	e, _, clock := newTestEngine(t, doer)
	ctx := context.Background()

	if _, err := e.RecordSighting(ctx, Sighting{Address: "10.0.0.1", Method: registry.MethodPassive}); err != nil {
		t.Fatalf("RecordSighting() error = %v", err)
	}
	clock.Set(clock.Now().Add(time.Minute))
	if _, err := e.RecordSighting(ctx, Sighting{Address: "10.0.0.2", Method: registry.MethodActiveScan}); err != nil {
		t.Fatalf("RecordSighting() error = %v", err)
	}

	list, err := e.ListDevices(ctx, true)
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len(ListDevices()) = %d, want 2", len(list))
	}
	if list[0].Address != "10.0.0.2" || list[0].Model != "AVR-X2300W" || list[0].Manufacturer != "Denon" {
		t.Errorf("list[0] = %+v", list[0])
	}
	if list[1].Model != UnknownModel || list[1].Manufacturer != UnknownModel {
		t.Errorf("list[1] model = %q/%q, want %q", list[1].Manufacturer, list[1].Model, UnknownModel)
	}
}
