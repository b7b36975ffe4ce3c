package config

import "time"

const (
	// Serial links
	BaudRate        = 115200                 // Scanner firmware UART speed
	ReadTimeout     = time.Second            // Per-read timeout on a link
	DiscoverTimeout = 5 * time.Second        // How long to listen on a port for its direction tag
	LineQueueSize   = 256                    // Buffered lines per link before the reader blocks
	ResetCommand    = "REBOOT\n"             // Restarts scanner firmware
	BootAnnounce    = "Starting BLE scan..." // Prefix of the firmware boot line

	// Reboot synchronization
	SyncWindow    = 3 * time.Second        // How long to wait for boot announcements
	SyncTolerance = 100 * time.Millisecond // Acceptable boot skew between scanners

	// Calibration
	PoseDuration = 5 * time.Second // Sampling window per pose
	AngleStep    = 10              // Degrees between poses
	FloorRSSI    = -100.0          // Recorded when a direction saw nothing
	OutputDir    = "calibration_runs"

	// Live estimation
	Cadence       = time.Second      // Estimation tick
	RSSIThreshold = -80              // Minimum max-RSSI for a device to be estimated
	MinDirections = 2                // Directions required for an estimate
	DeviceTimeout = 30 * time.Second // Drop devices not seen for this long
	SampleQueue   = 1024             // Shared queue between link readers and the estimator

	// Smoothing
	SmoothingAlpha      = 0.6  // EMA factor (60% new, 40% old)
	MedianWindow        = 3    // Circular median window
	OutlierThresholdDeg = 90.0 // Jumps larger than this hold the previous bearing
	HistoryLength       = 20   // Smoothed bearings kept per device

	// Display
	AspectRatio   = 0.5    // Terminal char aspect correction (chars are ~2:1 tall)
	TargetFPS     = 30     // Target frames per second
	TrailLength   = 10     // History points drawn behind each device
	RingCount     = 3      // Range rings on the polar plot
	SweepSpeedRPM = 12     // Cosmetic sweep rotations per minute
	SweepTrailDeg = 40.0   // Glow trail behind the sweep line
	StrongRSSI    = -30.0  // Plotted near the center
	WeakRSSI      = -100.0 // Plotted at the outer ring
	ThresholdStep = 1      // dB per +/- key press

	// Demo mode
	DemoBeacons  = 4                      // Virtual beacons orbiting the rig
	DemoInterval = 150 * time.Millisecond // Advertisement period per scanner

	// App
	AppName    = "BLE-BEARING"
	AppVersion = "1.0"
)

// Distance is a labelled calibration distance from the rig.
type Distance struct {
	Key   string `yaml:"key"`
	Label string `yaml:"label"`
}

// Distances is the default calibration distance menu.
var Distances = []Distance{
	{Key: "20in", Label: "20 inches"},
	{Key: "60in", Label: "60 inches"},
	{Key: "158in", Label: "158 inches"},
	{Key: "394in", Label: "394 inches"},
}
