package netman

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ossuary-dev/ossuary-pi/internal/database/models"
	"github.com/ossuary-dev/ossuary-pi/internal/database/repositories"
)

// fakeBackend is an in-memory Backend for testing the state machine without
// real wireless hardware. The default activation behavior brings the
// connection up immediately; tests drive failures and slow transitions
// through the onActivate hook and the deviceState field.
type fakeBackend struct {
	mu sync.Mutex

	hasDevice    bool
	iface        string
	deviceState  DeviceState
	active       *ActiveConnection
	activeAP     *AccessPoint
	accessPoints []AccessPoint
	profiles     []Profile
	stations     int

	scanErr      error
	activateErr  error
	createAPErrs int // number of CreateAPProfile calls that fail

	scanRequests  int
	activated     []string // SSIDs in activation order
	deactivations int
	deleted       []string
	nextProfileID int

	// onActivate, when set, replaces the default bring-up. It runs with the
	// backend lock held and may mutate fake state directly.
	onActivate func(p Profile)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		hasDevice:   true,
		iface:       "wlan0",
		deviceState: DeviceStateDisconnected,
	}
}

func (f *fakeBackend) HasWiFiDevice() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasDevice
}

func (f *fakeBackend) Interface() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.iface
}

func (f *fakeBackend) DeviceState() (DeviceState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deviceState, nil
}

func (f *fakeBackend) ActiveConnection() (*ActiveConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active == nil {
		return nil, nil
	}
	active := *f.active
	return &active, nil
}

func (f *fakeBackend) RequestScan() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanRequests++
	return f.scanErr
}

func (f *fakeBackend) AccessPoints() ([]AccessPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]AccessPoint(nil), f.accessPoints...), nil
}

func (f *fakeBackend) ActiveAccessPoint() (*AccessPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activeAP == nil {
		return nil, nil
	}
	ap := *f.activeAP
	return &ap, nil
}

func (f *fakeBackend) KnownProfiles() ([]Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Profile(nil), f.profiles...), nil
}

func (f *fakeBackend) ActivateProfile(p Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activateErr != nil {
		return f.activateErr
	}
	f.activated = append(f.activated, p.SSID)
	if f.onActivate != nil {
		f.onActivate(p)
		return nil
	}
	f.active = &ActiveConnection{ID: "active-" + p.ID, Profile: p}
	f.deviceState = DeviceStateActivated
	return nil
}

func (f *fakeBackend) CreateAndActivate(spec ProfileSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activateErr != nil {
		return f.activateErr
	}
	f.nextProfileID++
	p := Profile{
		ID:          fmt.Sprintf("profile-%d", f.nextProfileID),
		Name:        spec.SSID,
		SSID:        spec.SSID,
		AutoConnect: spec.AutoConnect,
	}
	f.profiles = append(f.profiles, p)
	f.activated = append(f.activated, p.SSID)
	if f.onActivate != nil {
		f.onActivate(p)
		return nil
	}
	f.active = &ActiveConnection{ID: "active-" + p.ID, Profile: p}
	f.deviceState = DeviceStateActivated
	return nil
}

func (f *fakeBackend) Deactivate(active ActiveConnection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivations++
	if f.active != nil && f.active.ID == active.ID {
		f.active = nil
		f.deviceState = DeviceStateDisconnected
	}
	return nil
}

func (f *fakeBackend) DeleteProfile(profile Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.profiles {
		if p.ID == profile.ID {
			f.profiles = append(f.profiles[:i], f.profiles[i+1:]...)
			break
		}
	}
	f.deleted = append(f.deleted, profile.Name)
	return nil
}

func (f *fakeBackend) SetProfileAutoConnect(profile Profile, autoConnect bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.profiles {
		if f.profiles[i].ID == profile.ID {
			f.profiles[i].AutoConnect = autoConnect
		}
	}
	return nil
}

func (f *fakeBackend) CreateAPProfile(cfg APConfig) (Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createAPErrs > 0 {
		f.createAPErrs--
		return Profile{}, fmt.Errorf("simulated AP profile failure")
	}
	f.nextProfileID++
	p := Profile{
		ID:   fmt.Sprintf("profile-%d", f.nextProfileID),
		Name: cfg.SSID,
		SSID: cfg.SSID,
		IsAP: true,
	}
	f.profiles = append(f.profiles, p)
	return p, nil
}

func (f *fakeBackend) StationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stations
}

func (f *fakeBackend) Close() {}

// addProfile seeds a saved client profile.
func (f *fakeBackend) addProfile(ssid string) Profile {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextProfileID++
	p := Profile{
		ID:          fmt.Sprintf("profile-%d", f.nextProfileID),
		Name:        ssid,
		SSID:        ssid,
		AutoConnect: true,
	}
	f.profiles = append(f.profiles, p)
	return p
}

// setConnected puts the fake into an activated client connection.
func (f *fakeBackend) setConnected(ssid string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := Profile{ID: "profile-" + ssid, Name: ssid, SSID: ssid, AutoConnect: true}
	f.active = &ActiveConnection{ID: "active-" + ssid, Profile: p}
	f.deviceState = DeviceStateActivated
}

func (f *fakeBackend) setDisconnected() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = nil
	f.deviceState = DeviceStateDisconnected
}

func (f *fakeBackend) setState(state DeviceState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deviceState = state
}

func testAPConfig() APConfig {
	return APConfig{
		SSID:      "ossuary-setup",
		Channel:   6,
		IPAddress: "192.168.42.1",
		Subnet:    "192.168.42.0/24",
	}
}

// newTestStore creates a known-network repository backed by an in-memory
// database.
func newTestStore(t *testing.T) *repositories.KnownNetworkRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.KnownNetwork{}))
	return repositories.NewKnownNetworkRepository(db)
}

// testHarness wires a manager, poller, store, and marker store around a fake
// backend with timings short enough for tests.
type testHarness struct {
	backend *fakeBackend
	poller  *Poller
	manager *Manager
	store   *repositories.KnownNetworkRepository
	markers *MarkerStore
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	backend := newFakeBackend()
	store := newTestStore(t)
	markers := NewMarkerStore(filepath.Join(t.TempDir(), "ap-mode.json"))
	apCfg := testAPConfig()
	// Long interval: tests drive Poll directly instead of waiting on ticks.
	poller := NewPoller(backend, apCfg, time.Hour)
	manager := NewManager(backend, poller, store, markers, apCfg, Timing{
		ConnectTimeout:     200 * time.Millisecond,
		ScanSettle:         time.Millisecond,
		APSettle:           time.Millisecond,
		StateCheckInterval: 5 * time.Millisecond,
	})
	return &testHarness{
		backend: backend,
		poller:  poller,
		manager: manager,
		store:   store,
		markers: markers,
	}
}
