package netman

// UnavailableBackend stands in when no WiFi hardware is managed. Reads
// report an empty world and mutations fail with ErrNoWiFiDevice, which
// keeps the rest of the stack running for wired-only deployments.
type UnavailableBackend struct{}

func NewUnavailableBackend() *UnavailableBackend { return &UnavailableBackend{} }

func (u *UnavailableBackend) HasWiFiDevice() bool { return false }

func (u *UnavailableBackend) Interface() string { return "" }

func (u *UnavailableBackend) DeviceState() (DeviceState, error) {
	return DeviceStateUnknown, nil
}

func (u *UnavailableBackend) ActiveConnection() (*ActiveConnection, error) { return nil, nil }

func (u *UnavailableBackend) RequestScan() error { return ErrNoWiFiDevice }

func (u *UnavailableBackend) AccessPoints() ([]AccessPoint, error) { return nil, nil }

func (u *UnavailableBackend) ActiveAccessPoint() (*AccessPoint, error) { return nil, nil }

func (u *UnavailableBackend) KnownProfiles() ([]Profile, error) { return nil, nil }

func (u *UnavailableBackend) ActivateProfile(Profile) error { return ErrNoWiFiDevice }

func (u *UnavailableBackend) CreateAndActivate(ProfileSpec) error { return ErrNoWiFiDevice }

func (u *UnavailableBackend) Deactivate(ActiveConnection) error { return ErrNoWiFiDevice }

func (u *UnavailableBackend) DeleteProfile(Profile) error { return ErrNoWiFiDevice }

func (u *UnavailableBackend) SetProfileAutoConnect(Profile, bool) error { return ErrNoWiFiDevice }

func (u *UnavailableBackend) CreateAPProfile(APConfig) (Profile, error) {
	return Profile{}, ErrNoWiFiDevice
}

func (u *UnavailableBackend) StationCount() int { return 0 }

func (u *UnavailableBackend) Close() {}
