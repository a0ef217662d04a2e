//go:build linux

package v4l2

// DeviceInfo contains information about a V4L2 device.
type DeviceInfo struct {
	DevicePath string
	DeviceName string
	DeviceID   string // Stable identifier (from /dev/v4l/by-id/ or synthetic)
	Driver     string
	BusInfo    string
	Caps       uint32
}

// Capability is the decoded result of VIDIOC_QUERYCAP.
type Capability struct {
	Driver  string
	Card    string
	BusInfo string
	Version uint32
	Caps    uint32 // effective capabilities (device caps when reported)
}

// Streaming reports whether the device supports memory-mapped I/O.
func (c Capability) Streaming() bool {
	return c.Caps&v4l2CapStreaming != 0
}

// VideoCapture reports whether the device is a single-planar capture device.
func (c Capability) VideoCapture() bool {
	return c.Caps&v4l2CapVideoCapture != 0
}

// FormatInfo contains information about a supported pixel format.
type FormatInfo struct {
	PixelFormat uint32
	FormatName  string
	Emulated    bool
	Compressed  bool
}

// Resolution represents a supported video resolution.
type Resolution struct {
	Width  uint32
	Height uint32
}

// Framerate represents a supported framerate as a fraction.
type Framerate struct {
	Numerator   uint32
	Denominator uint32
}

// FPS returns the framerate as frames per second.
func (f Framerate) FPS() float64 {
	if f.Numerator == 0 {
		return 0
	}
	return float64(f.Denominator) / float64(f.Numerator)
}

// PixFormat mirrors the single-planar struct v4l2_pix_format.
type PixFormat struct {
	Width        uint32
	Height       uint32
	PixelFormat  uint32
	Field        uint32
	BytesPerLine uint32
	SizeImage    uint32
	Colorspace   uint32
}

// BufferInfo describes a driver buffer as reported by VIDIOC_QUERYBUF.
type BufferInfo struct {
	Index  uint32
	Offset uint32
	Length uint32
}

// Buffer is a filled buffer returned by VIDIOC_DQBUF.
type Buffer struct {
	Index     uint32
	BytesUsed uint32
	Flags     uint32
	Sequence  uint32
	Sec       int64
	Usec      int64
}

// Micros returns the capture timestamp in microseconds.
func (b Buffer) Micros() int64 {
	return b.Sec*1_000_000 + b.Usec
}

// ControlInfo is the decoded result of VIDIOC_QUERYCTRL.
type ControlInfo struct {
	ID      uint32
	Type    uint32
	Name    string
	Minimum int32
	Maximum int32
	Step    int32
	Default int32
	Flags   uint32
}

// Disabled reports whether the driver marked the control permanently disabled.
func (c ControlInfo) Disabled() bool {
	return c.Flags&CtrlFlagDisabled != 0
}

// InputInfo is the decoded result of VIDIOC_ENUMINPUT.
type InputInfo struct {
	Index  uint32
	Name   string
	Type   uint32
	Tuner  uint32
	Std    uint64
	Status uint32
}

// StandardInfo is the decoded result of VIDIOC_ENUMSTD.
type StandardInfo struct {
	Index       uint32
	ID          uint64
	Name        string
	FramePeriod Framerate
	FrameLines  uint32
}

// TunerInfo is the decoded result of VIDIOC_G_TUNER.
type TunerInfo struct {
	Index      uint32
	Name       string
	Type       uint32
	Capability uint32
	RangeLow   uint32
	RangeHigh  uint32
	Signal     int32
}

// DeviceType represents the type of V4L2 device.
type DeviceType int

// Device types.
const (
	DeviceTypeWebcam  DeviceType = 0
	DeviceTypeHDMI    DeviceType = 1
	DeviceTypeUnknown DeviceType = -1
)

// SignalState represents the state of a video signal.
type SignalState int

// Signal states.
const (
	SignalStateNoDevice     SignalState = -1
	SignalStateNoLink       SignalState = 0 // No cable connected
	SignalStateNoSignal     SignalState = 1 // Cable connected, no signal
	SignalStateUnstable     SignalState = 2 // Signal present but unstable
	SignalStateLocked       SignalState = 3 // Signal locked and stable
	SignalStateOutOfRange   SignalState = 4 // Signal out of supported range
	SignalStateNotSupported SignalState = 5 // Device doesn't support DV timings
)

// SignalStatus contains detailed signal information.
type SignalStatus struct {
	State      SignalState
	Width      uint32
	Height     uint32
	FPS        float64
	Interlaced bool
}

// DeviceStatus contains combined device type and ready status.
type DeviceStatus struct {
	DeviceType DeviceType
	Ready      bool
}

// Capability flags.
const (
	v4l2CapVideoCapture = 0x00000001
	v4l2CapStreaming    = 0x04000000
	v4l2CapDeviceCaps   = 0x80000000
)

// Format flags.
const (
	v4l2FmtFlagCompressed = 0x0001
	v4l2FmtFlagEmulated   = 0x0002
)

// Common pixel formats.
const (
	PixFmtGrey   = 0x59455247 // 'GREY'
	PixFmtY16    = 0x20363159 // 'Y16 '
	PixFmtYUYV   = 0x56595559 // 'YUYV'
	PixFmtUYVY   = 0x59565955 // 'UYVY'
	PixFmtYUV420 = 0x32315559 // 'YU12'
	PixFmtNV12   = 0x3231564E // 'NV12'
	PixFmtRGB24  = 0x33424752 // 'RGB3'
	PixFmtBGR24  = 0x33524742 // 'BGR3'
	PixFmtSBGGR8 = 0x31384142 // 'BA81'
	PixFmtSGBRG8 = 0x47524247 // 'GBRG'
	PixFmtSGRBG8 = 0x47425247 // 'GRBG'
	PixFmtSRGGB8 = 0x42474752 // 'RGGB'
	PixFmtMJPEG  = 0x47504A4D // 'MJPG'
	PixFmtH264   = 0x34363248 // 'H264'
	PixFmtHEVC   = 0x43564548 // 'HEVC'
	PixFmtPWC2   = 0x32435750 // 'PWC2', Philips webcam compressed YUV420
)

// Frame size types.
const (
	v4l2FrmsizeTypeDiscrete   = 1
	v4l2FrmsizeTypeContinuous = 2
	v4l2FrmsizeTypeStepwise   = 3
)

// Frame interval types.
const (
	v4l2FrmivalTypeDiscrete   = 1
	v4l2FrmivalTypeContinuous = 2
	v4l2FrmivalTypeStepwise   = 3
)

// Buffer and memory types.
const (
	v4l2BufTypeVideoCapture = 1
	v4l2MemoryMmap          = 1
	v4l2FieldAny            = 0
)

// Event types.
const (
	v4l2EventSourceChange = 5
)

// Control types.
const (
	CtrlTypeInteger     = 1
	CtrlTypeBoolean     = 2
	CtrlTypeMenu        = 3
	CtrlTypeButton      = 4
	CtrlTypeInteger64   = 5
	CtrlTypeCtrlClass   = 6
	CtrlTypeString      = 7
	CtrlTypeBitmask     = 8
	CtrlTypeIntegerMenu = 9
)

// Control flags.
const (
	CtrlFlagDisabled  = 0x0001
	CtrlFlagGrabbed   = 0x0002
	CtrlFlagReadOnly  = 0x0004
	CtrlFlagUpdate    = 0x0008
	CtrlFlagInactive  = 0x0010
	CtrlFlagWriteOnly = 0x0040
)

// Control ID ranges.
const (
	CIDBase            = 0x00980900
	CIDLastP1          = 0x0098092c
	CIDCameraClassBase = 0x009a0900
	CIDCameraLastP1    = 0x009a0930
	CIDPrivateBase     = 0x08000000
)

// User and camera class control IDs.
const (
	CIDBrightness            = CIDBase + 0
	CIDContrast              = CIDBase + 1
	CIDSaturation            = CIDBase + 2
	CIDHue                   = CIDBase + 3
	CIDAudioVolume           = CIDBase + 5
	CIDAudioBalance          = CIDBase + 6
	CIDAudioBass             = CIDBase + 7
	CIDAudioTreble           = CIDBase + 8
	CIDAudioMute             = CIDBase + 9
	CIDAudioLoudness         = CIDBase + 10
	CIDBlackLevel            = CIDBase + 11
	CIDAutoWhiteBalance      = CIDBase + 12
	CIDDoWhiteBalance        = CIDBase + 13
	CIDRedBalance            = CIDBase + 14
	CIDBlueBalance           = CIDBase + 15
	CIDGamma                 = CIDBase + 16
	CIDExposure              = CIDBase + 17
	CIDAutogain              = CIDBase + 18
	CIDGain                  = CIDBase + 19
	CIDHFlip                 = CIDBase + 20
	CIDVFlip                 = CIDBase + 21
	CIDHCenter               = CIDBase + 22
	CIDVCenter               = CIDBase + 23
	CIDPowerLineFrequency    = CIDBase + 24
	CIDHueAuto               = CIDBase + 25
	CIDWhiteBalanceTemp      = CIDBase + 26
	CIDSharpness             = CIDBase + 27
	CIDBacklightCompensation = CIDBase + 28
	CIDExposureAuto          = CIDCameraClassBase + 1
	CIDExposureAbsolute      = CIDCameraClassBase + 2
	CIDExposureAutoPriority  = CIDCameraClassBase + 3
	CIDPanAbsolute           = CIDCameraClassBase + 8
	CIDTiltAbsolute          = CIDCameraClassBase + 9
	CIDFocusAbsolute         = CIDCameraClassBase + 10
	CIDFocusAuto             = CIDCameraClassBase + 12
	CIDZoomAbsolute          = CIDCameraClassBase + 13
)

// Exposure modes of CIDExposureAuto.
const (
	ExposureAuto             = 0
	ExposureManual           = 1
	ExposureShutterPriority  = 2
	ExposureAperturePriority = 3
)

// Input types.
const (
	InputTypeTuner  = 1
	InputTypeCamera = 2
)

// Tuner capability flags.
const (
	TunerCapLow = 0x0001
)
