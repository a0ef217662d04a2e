//go:build linux

package v4l2

import "unsafe"

// Structs whose layout is identical on every supported architecture.
var (
	_ [104]byte = [unsafe.Sizeof(v4l2Capability{})]byte{}
	_ [64]byte  = [unsafe.Sizeof(v4l2Fmtdesc{})]byte{}
	_ [8]byte   = [unsafe.Sizeof(v4l2FrmsizeDiscrete{})]byte{}
	_ [24]byte  = [unsafe.Sizeof(v4l2FrmsizeStepwise{})]byte{}
	_ [44]byte  = [unsafe.Sizeof(v4l2Frmsizeenum{})]byte{}
	_ [8]byte   = [unsafe.Sizeof(v4l2Fract{})]byte{}
	_ [52]byte  = [unsafe.Sizeof(v4l2Frmivalenum{})]byte{}
	_ [124]byte = [unsafe.Sizeof(v4l2BTTimings{})]byte{}
	_ [132]byte = [unsafe.Sizeof(v4l2DVTimings{})]byte{}
	_ [32]byte  = [unsafe.Sizeof(v4l2EventSubscription{})]byte{}
	_ [48]byte  = [unsafe.Sizeof(v4l2PixFormat{})]byte{}
	_ [20]byte  = [unsafe.Sizeof(v4l2Requestbuffers{})]byte{}
	_ [68]byte  = [unsafe.Sizeof(v4l2Queryctrl{})]byte{}
	_ [44]byte  = [unsafe.Sizeof(v4l2Querymenu{})]byte{}
	_ [8]byte   = [unsafe.Sizeof(v4l2Control{})]byte{}
	_ [80]byte  = [unsafe.Sizeof(v4l2Input{})]byte{}
	_ [72]byte  = [unsafe.Sizeof(v4l2Standard{})]byte{}
	_ [84]byte  = [unsafe.Sizeof(v4l2Tuner{})]byte{}
	_ [44]byte  = [unsafe.Sizeof(v4l2Frequency{})]byte{}
)

// IOCTL constants shared by all architectures.
const (
	vidiocQuerycap           = 0x80685600
	vidiocEnumFmt            = 0xc0405602
	vidiocReqbufs            = 0xc0145608
	vidiocStreamon           = 0x40045612
	vidiocStreamoff          = 0x40045613
	vidiocGStd               = 0x80085617
	vidiocSStd               = 0x40085618
	vidiocEnumstd            = 0xc0485619
	vidiocEnuminput          = 0xc050561a
	vidiocGCtrl              = 0xc008561b
	vidiocSCtrl              = 0xc008561c
	vidiocGTuner             = 0xc054561d
	vidiocQueryctrl          = 0xc0445624
	vidiocQuerymenu          = 0xc02c5625
	vidiocGInput             = 0x80045626
	vidiocSInput             = 0xc0045627
	vidiocGFrequency         = 0xc02c5638
	vidiocSFrequency         = 0x402c5639
	vidiocEnumFramesizes     = 0xc02c564a
	vidiocEnumFrameintervals = 0xc034564b
	vidiocGDVTimings         = 0xc0845658
	vidiocSubscribeEvent     = 0x4020565a
	vidiocUnsubscribeEvent   = 0x4020565b
)

// v4l2Capability has size 104 bytes.
type v4l2Capability struct {
	driver       [16]byte  // offset 0
	card         [32]byte  // offset 16
	busInfo      [32]byte  // offset 48
	version      uint32    // offset 80
	capabilities uint32    // offset 84
	deviceCaps   uint32    // offset 88
	reserved     [3]uint32 // offset 92
}

// v4l2Fmtdesc has size 64 bytes.
type v4l2Fmtdesc struct {
	index       uint32    // offset 0
	typ         uint32    // offset 4
	flags       uint32    // offset 8
	description [32]byte  // offset 12
	pixelformat uint32    // offset 44
	mbusCode    uint32    // offset 48
	reserved    [3]uint32 // offset 52
}

type v4l2FrmsizeDiscrete struct {
	width  uint32
	height uint32
}

type v4l2FrmsizeStepwise struct {
	minWidth   uint32
	maxWidth   uint32
	stepWidth  uint32
	minHeight  uint32
	maxHeight  uint32
	stepHeight uint32
}

// v4l2Frmsizeenum has size 44 bytes.
type v4l2Frmsizeenum struct {
	index       uint32              // offset 0
	pixelFormat uint32              // offset 4
	typ         uint32              // offset 8
	discrete    v4l2FrmsizeDiscrete // offset 12 (union with stepwise)
	_           [16]byte            // rest of stepwise
	reserved    [2]uint32           // offset 36
}

type v4l2Fract struct {
	numerator   uint32
	denominator uint32
}

// v4l2Frmivalenum has size 52 bytes.
type v4l2Frmivalenum struct {
	index       uint32    // offset 0
	pixelFormat uint32    // offset 4
	width       uint32    // offset 8
	height      uint32    // offset 12
	typ         uint32    // offset 16
	discrete    v4l2Fract // offset 20 (union with stepwise)
	_           [16]byte  // rest of stepwise
	reserved    [2]uint32 // offset 44
}

// v4l2BTTimings is packed in the kernel, so the 64-bit pixel clock sits on a
// 4-byte boundary inside v4l2DVTimings and is split into two words here.
type v4l2BTTimings struct {
	width         uint32    // offset 0
	height        uint32    // offset 4
	interlaced    uint32    // offset 8
	polarities    uint32    // offset 12
	pixelclockLo  uint32    // offset 16
	pixelclockHi  uint32    // offset 20
	hfrontporch   uint32    // offset 24
	hsync         uint32    // offset 28
	hbackporch    uint32    // offset 32
	vfrontporch   uint32    // offset 36
	vsync         uint32    // offset 40
	vbackporch    uint32    // offset 44
	ilVfrontporch uint32    // offset 48
	ilVsync       uint32    // offset 52
	ilVbackporch  uint32    // offset 56
	standards     uint32    // offset 60
	flags         uint32    // offset 64
	pictureAspect v4l2Fract // offset 68
	cea861Vic     uint8     // offset 76
	hdmiVic       uint8     // offset 77
	reserved      [46]byte  // offset 78 to 124
}

func (bt *v4l2BTTimings) pixelclock() uint64 {
	return uint64(bt.pixelclockHi)<<32 | uint64(bt.pixelclockLo)
}

// v4l2DVTimings has size 132 bytes.
type v4l2DVTimings struct {
	typ uint32        // offset 0
	bt  v4l2BTTimings // offset 4
	_   [4]byte       // union is 128 bytes
}

type v4l2EventSubscription struct {
	typ      uint32
	id       uint32
	flags    uint32
	reserved [5]uint32
}

// v4l2PixFormat has size 48 bytes.
type v4l2PixFormat struct {
	width        uint32
	height       uint32
	pixelformat  uint32
	field        uint32
	bytesperline uint32
	sizeimage    uint32
	colorspace   uint32
	priv         uint32
	flags        uint32
	ycbcrEnc     uint32
	quantization uint32
	xferFunc     uint32
}

type v4l2Requestbuffers struct {
	count        uint32
	typ          uint32
	memory       uint32
	capabilities uint32
	flags        uint8
	reserved     [3]uint8
}

// v4l2Queryctrl has size 68 bytes.
type v4l2Queryctrl struct {
	id           uint32    // offset 0
	typ          uint32    // offset 4
	name         [32]byte  // offset 8
	minimum      int32     // offset 40
	maximum      int32     // offset 44
	step         int32     // offset 48
	defaultValue int32     // offset 52
	flags        uint32    // offset 56
	reserved     [2]uint32 // offset 60
}

// v4l2Querymenu is packed; only the name arm of the union is used.
type v4l2Querymenu struct {
	id       uint32
	index    uint32
	name     [32]byte
	reserved uint32
}

type v4l2Control struct {
	id    uint32
	value int32
}

// v4l2Input has size 80 bytes.
type v4l2Input struct {
	index        uint32    // offset 0
	name         [32]byte  // offset 4
	typ          uint32    // offset 36
	audioset     uint32    // offset 40
	tuner        uint32    // offset 44
	std          uint64    // offset 48
	status       uint32    // offset 56
	capabilities uint32    // offset 60
	reserved     [3]uint32 // offset 64
	_            [4]byte   // tail padding
}

// v4l2Standard has size 72 bytes.
type v4l2Standard struct {
	index       uint32    // offset 0
	_           [4]byte   // padding
	id          uint64    // offset 8
	name        [24]byte  // offset 16
	frameperiod v4l2Fract // offset 40
	framelines  uint32    // offset 48
	reserved    [4]uint32 // offset 52
	_           [4]byte   // tail padding
}

// v4l2Tuner has size 84 bytes.
type v4l2Tuner struct {
	index      uint32
	name       [32]byte
	typ        uint32
	capability uint32
	rangelow   uint32
	rangehigh  uint32
	rxsubchans uint32
	audmode    uint32
	signal     int32
	afc        int32
	reserved   [4]uint32
}

type v4l2Frequency struct {
	tuner     uint32
	typ       uint32
	frequency uint32
	reserved  [8]uint32
}
