//nolint:paralleltest // Test file - not using parallel tests
package detection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroValues(t *testing.T) {
	assert.Equal(t, Passive, Mode(0))
	assert.Equal(t, Low, Confidence(0))
	assert.Less(t, Passive, Full)
	assert.Less(t, Low, High)
}

func TestDeviceInfo_String(t *testing.T) {
	tests := map[string]DeviceInfo{
		"uart device at /dev/ttyUSB0 (confidence: low)":    {Transport: "uart", Path: "/dev/ttyUSB0", Confidence: Low},
		"i2c device at /dev/i2c-1 (confidence: medium)":    {Transport: "i2c", Path: "/dev/i2c-1", Confidence: Medium},
		"spi device at /dev/spidev0.0 (confidence: high)":  {Transport: "spi", Path: "/dev/spidev0.0", Confidence: High},
		"pcsc device at ACS ACR122U (confidence: unknown)": {Transport: "pcsc", Path: "ACS ACR122U", Confidence: Confidence(7)},
	}
	for want, dev := range tests {
		assert.Equal(t, want, dev.String())
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.Equal(t, Safe, opts.Mode)
	assert.Equal(t, 5*time.Second, opts.Timeout)
	assert.True(t, opts.EnableCache)
	assert.Equal(t, 30*time.Second, opts.CacheTTL)
	assert.Equal(t, DefaultBlocklist(), opts.Blocklist)
}

func TestCache(t *testing.T) {
	clearCache()
	defer clearCache()

	_, ok := getCached("uart", Safe, time.Minute)
	assert.False(t, ok, "empty cache")

	setCached("uart", Safe, []DeviceInfo{{Transport: "uart", Path: "/dev/ttyUSB0"}})
	setCached("i2c", Safe, []DeviceInfo{{Transport: "i2c", Path: "/dev/i2c-1"}})

	got, ok := getCached("uart", Safe, time.Minute)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "/dev/ttyUSB0", got[0].Path)

	got, ok = getCached("i2c", Safe, time.Minute)
	require.True(t, ok)
	assert.Equal(t, "/dev/i2c-1", got[0].Path)

	time.Sleep(time.Millisecond)
	_, ok = getCached("uart", Safe, time.Nanosecond)
	assert.False(t, ok, "entry older than ttl")

	clearCacheForTransport("uart")
	_, ok = getCached("uart", Safe, time.Minute)
	assert.False(t, ok)
	_, ok = getCached("i2c", Safe, time.Minute)
	assert.True(t, ok)
}

func TestCache_SlicesAreCopied(t *testing.T) {
	clearCache()
	defer clearCache()

	devices := []DeviceInfo{{Transport: "uart", Path: "/dev/ttyUSB0"}}
	setCached("uart", Safe, devices)
	devices[0].Path = "/dev/ttyUSB1"

	got, _ := getCached("uart", Safe, time.Minute)
	assert.Equal(t, "/dev/ttyUSB0", got[0].Path)
	got[0].Path = "/dev/ttyUSB2"

	got, _ = getCached("uart", Safe, time.Minute)
	assert.Equal(t, "/dev/ttyUSB0", got[0].Path)
}

func TestIsBlocked(t *testing.T) {
	blocklist := []string{"1234:5678", "abcd:ef01"}

	for vidpid, want := range map[string]bool{
		"1234:5678":         true,
		"ABCD:EF01":         true,
		"  1234:5678  ":     true,
		"VID:1234 PID:5678": true,
		"9999:9999":         false,
		"1234:":             false,
		"":                  false,
	} {
		assert.Equal(t, want, IsBlocked(vidpid, blocklist), vidpid)
	}
}

func TestParseVIDPID(t *testing.T) {
	for in, want := range map[string]string{
		"1234:5678":                    "1234:5678",
		"VID:1234 PID:5678":            "1234:5678",
		"VID=1234 PID=5678":            "1234:5678",
		"vendor=1234 product=5678":     "1234:5678",
		"vid:abcd pid:ef01":            "ABCD:EF01",
		`USB\VID_072F&PID_2200\6&1F3A`: "072F:2200",
		"VID:1234":                     "",
		"PID:5678":                     "",
		"not a descriptor":             "",
		"":                             "",
	} {
		assert.Equal(t, want, ParseVIDPID(in), in)
	}
}

func TestLeadingHex(t *testing.T) {
	for in, want := range map[string]string{
		"1234":        "1234",
		"0x1234":      "0",
		" 1234":       "",
		"072F&PID_22": "072F",
		"xyz":         "",
		"":            "",
	} {
		assert.Equal(t, want, leadingHex(in), in)
	}
	assert.True(t, isHex("1a2B"))
	assert.False(t, isHex("12 34"))
	assert.False(t, isHex(""))
}

func TestDefaultBlocklist(t *testing.T) {
	blocklist := DefaultBlocklist()
	assert.True(t, IsBlocked("vid:2341 pid:0043", blocklist))
	assert.True(t, IsBlocked(`USB\VID_2341&PID_0043\85734323430351F0A1E2`, blocklist))
	assert.False(t, IsBlocked("067B:2303", blocklist), "PL2303 bridges carry PN532 boards")
}

func TestCache_ModesAreSeparate(t *testing.T) {
	clearCache()
	defer clearCache()

	setCached("uart", Passive, []DeviceInfo{{Transport: "uart", Confidence: Medium}})
	_, found := getCached("uart", Safe, time.Minute)
	assert.False(t, found, "a passive listing must not answer a safe scan")

	setCached("uart", Safe, []DeviceInfo{{Transport: "uart", Confidence: High}})
	clearCacheForTransport("uart")
	_, found = getCached("uart", Passive, time.Minute)
	assert.False(t, found)
	_, found = getCached("uart", Safe, time.Minute)
	assert.False(t, found)
}

func TestCache_MetadataIsCopied(t *testing.T) {
	clearCache()
	defer clearCache()

	devices := []DeviceInfo{{Transport: "usb", Metadata: map[string]string{"chip": "PN533"}}}
	setCached("usb", Safe, devices)
	devices[0].Metadata["chip"] = "changed"

	cached, found := getCached("usb", Safe, time.Minute)
	assert.True(t, found)
	assert.Equal(t, "PN533", cached[0].Metadata["chip"])
}

// --- getDetectors Tests ---

// MockDetector implements Detector interface for testing.
type MockDetector struct {
	transport string
}

func (*MockDetector) Detect(_ context.Context, _ *Options) ([]DeviceInfo, error) {
	return nil, ErrNoDevicesFound
}

func (m *MockDetector) Transport() string {
	return m.transport
}

func TestGetDetectors_FilterByTransport(t *testing.T) {
	// Save and restore original registry
	originalRegistry := registry
	defer func() { registry = originalRegistry }()

	// Clear and setup test registry
	registry = nil
	RegisterDetector(&MockDetector{transport: "uart"})
	RegisterDetector(&MockDetector{transport: "i2c"})
	RegisterDetector(&MockDetector{transport: "spi"})

	tests := []struct {
		name       string
		transports []string
		expected   int
	}{
		{"All transports", nil, 3},
		{"Empty transports", []string{}, 3},
		{"Single transport", []string{"uart"}, 1},
		{"Two transports", []string{"uart", "i2c"}, 2},
		{"Non-existent transport", []string{"usb"}, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := getDetectors(tc.transports)
			assert.Len(t, result, tc.expected)
		})
	}
}

// --- DetectAll Error Cases ---

func TestDetectAll_NoDetectors(t *testing.T) {
	originalRegistry := registry
	defer func() { registry = originalRegistry }()

	registry = nil

	opts := DefaultOptions()
	opts.Transports = []string{"nonexistent"}
	opts.Timeout = 100 * time.Millisecond

	_, err := DetectAll(context.Background(), &opts)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no detectors available")
}

func TestDetectAll_Timeout(t *testing.T) {
	originalRegistry := registry
	defer func() { registry = originalRegistry }()

	// Create a detector that blocks
	registry = nil
	RegisterDetector(&BlockingDetector{})

	opts := DefaultOptions()
	opts.Timeout = 10 * time.Millisecond
	opts.EnableCache = false

	_, err := DetectAll(context.Background(), &opts)
	require.ErrorIs(t, err, ErrDetectionTimeout)
}

// BlockingDetector is a detector that never returns.
type BlockingDetector struct{}

func (*BlockingDetector) Detect(ctx context.Context, _ *Options) ([]DeviceInfo, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (*BlockingDetector) Transport() string {
	return "blocking"
}

// StaticDetector returns a fixed device list.
type StaticDetector struct {
	transport string
	devices   []DeviceInfo
}

func (s *StaticDetector) Detect(_ context.Context, _ *Options) ([]DeviceInfo, error) {
	if len(s.devices) == 0 {
		return nil, ErrNoDevicesFound
	}
	return s.devices, nil
}

func (s *StaticDetector) Transport() string {
	return s.transport
}

func TestScan_OrdersByConfidence(t *testing.T) {
	originalRegistry := registry
	defer func() { registry = originalRegistry }()

	registry = nil
	RegisterDetector(&StaticDetector{transport: "uart", devices: []DeviceInfo{
		{Transport: "uart", Path: "/dev/ttyS0", ConnString: "pn532_uart:port=/dev/ttyS0", Confidence: Low},
		{Transport: "uart", Path: "/dev/ttyUSB0", ConnString: "pn532_uart:port=/dev/ttyUSB0", Confidence: High},
		{Transport: "uart", Path: "/dev/ttyUSB1"},
	}})
	RegisterDetector(&StaticDetector{transport: "usb", devices: []DeviceInfo{
		{Transport: "usb", Path: "usb:001:004", ConnString: "pn53x_usb:bus=1:addr=4", Confidence: Medium},
		{Transport: "usb", Path: "usb:001:004", ConnString: "pn53x_usb:bus=1:addr=4", Confidence: Medium},
	}})

	opts := DefaultOptions()
	opts.EnableCache = false

	got, err := ScanWith(context.Background(), &opts)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"pn532_uart:port=/dev/ttyUSB0",
		"pn53x_usb:bus=1:addr=4",
		"pn532_uart:port=/dev/ttyS0",
	}, got)
}

func TestScan_NothingOpenable(t *testing.T) {
	originalRegistry := registry
	defer func() { registry = originalRegistry }()

	registry = nil
	RegisterDetector(&StaticDetector{transport: "spi", devices: []DeviceInfo{{Transport: "spi", Path: "/dev/spidev0.0"}}})

	opts := DefaultOptions()
	opts.EnableCache = false

	_, err := ScanWith(context.Background(), &opts)
	require.ErrorIs(t, err, ErrNoDevicesFound)
}

func TestDetectAll_CachedResultsAreFiltered(t *testing.T) {
	originalRegistry := registry
	defer func() { registry = originalRegistry }()
	clearCache()
	defer clearCache()

	registry = nil
	RegisterDetector(&StaticDetector{transport: "uart"})
	setCached("uart", Safe, []DeviceInfo{
		{Transport: "uart", Path: "/dev/ttyUSB0", Metadata: map[string]string{"vidpid": "1A86:7523"}},
		{Transport: "uart", Path: "/dev/ttyUSB1", Metadata: map[string]string{"vidpid": "0403:6001"}},
		{Transport: "uart", Path: "/dev/ttyUSB2"},
	})

	opts := DefaultOptions()
	opts.Blocklist = []string{"1a86:7523"}
	opts.IgnorePaths = []string{"/dev/ttyUSB2"}

	devices, err := DetectAll(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "/dev/ttyUSB1", devices[0].Path)
}

// --- Public Cache Functions ---

func TestClearDetectionCache(t *testing.T) {
	setCached("uart", Safe, []DeviceInfo{{Transport: "uart"}})
	setCached("i2c", Safe, []DeviceInfo{{Transport: "i2c"}})

	ClearDetectionCache()

	_, found := getCached("uart", Safe, time.Minute)
	assert.False(t, found)

	_, found = getCached("i2c", Safe, time.Minute)
	assert.False(t, found)
}

func TestClearDetectionCacheForTransport(t *testing.T) {
	clearCache()
	defer clearCache()

	setCached("uart", Safe, []DeviceInfo{{Transport: "uart"}})
	setCached("i2c", Safe, []DeviceInfo{{Transport: "i2c"}})

	ClearDetectionCacheForTransport("uart")

	_, found := getCached("uart", Safe, time.Minute)
	assert.False(t, found)

	_, found = getCached("i2c", Safe, time.Minute)
	assert.True(t, found)
}

// FailingDetector always fails with err.
type FailingDetector struct {
	err       error
	transport string
}

func (f *FailingDetector) Detect(context.Context, *Options) ([]DeviceInfo, error) {
	return nil, f.err
}

func (f *FailingDetector) Transport() string {
	return f.transport
}

func TestDetectAll_JoinsDetectorErrors(t *testing.T) {
	originalRegistry := registry
	defer func() { registry = originalRegistry }()

	errNoContext := errors.New("pcscd not running")
	errPerm := errors.New("permission denied")
	registry = nil
	RegisterDetector(&FailingDetector{transport: "pcsc", err: errNoContext})
	RegisterDetector(&FailingDetector{transport: "usb", err: errPerm})

	opts := DefaultOptions()
	opts.EnableCache = false

	_, err := DetectAll(context.Background(), &opts)
	require.ErrorIs(t, err, errNoContext)
	require.ErrorIs(t, err, errPerm)
	assert.Contains(t, err.Error(), "pcsc: pcscd not running")
}

func TestDetectAll_FailuresHiddenByFinds(t *testing.T) {
	originalRegistry := registry
	defer func() { registry = originalRegistry }()

	registry = nil
	RegisterDetector(&FailingDetector{transport: "pcsc", err: errors.New("pcscd not running")})
	RegisterDetector(&StaticDetector{transport: "uart", devices: []DeviceInfo{
		{Transport: "uart", Path: "/dev/ttyUSB0", Confidence: High},
	}})

	opts := DefaultOptions()
	opts.EnableCache = false

	devices, err := DetectAll(context.Background(), &opts)
	require.NoError(t, err)
	assert.Len(t, devices, 1)
}

func TestDetectAll_PartialResultsOnTimeout(t *testing.T) {
	originalRegistry := registry
	defer func() { registry = originalRegistry }()

	registry = nil
	RegisterDetector(&BlockingDetector{})
	RegisterDetector(&StaticDetector{transport: "uart", devices: []DeviceInfo{
		{Transport: "uart", Path: "/dev/ttyUSB0", Confidence: High},
	}})

	opts := DefaultOptions()
	opts.EnableCache = false
	opts.Timeout = 50 * time.Millisecond

	devices, err := DetectAll(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "/dev/ttyUSB0", devices[0].Path)
}
