package iidc

// CSR space.
const (
	csrBase            uint64 = 0xfffff0000000
	DefaultCommandBase uint64 = 0xfffff0f00000
)

// Command register offsets from the command base.
const (
	regInitialize      = 0x000
	regVFormatInq      = 0x100
	regVModeInq7       = 0x19c
	regVCSRInq7        = 0x2e0
	regBasicFuncInq    = 0x400
	regFeatureHiInq    = 0x404
	regFeatureLoInq    = 0x408
	regAdvFeatureInq   = 0x480
	regFeatureInq      = 0x500
	regAbsCSRInq       = 0x700
	regFeatureCtrl     = 0x800
	regCurVFrameRate   = 0x600
	regCurVMode        = 0x604
	regCurVFormat      = 0x608
	regISOChannel      = 0x60c
	regISOEnable       = 0x614
	regSoftwareTrigger = 0x62c
)

// Format7 CSR offsets.
const (
	f7MaxImageSize   = 0x000
	f7UnitSize       = 0x004
	f7ImagePosition  = 0x008
	f7ImageSize      = 0x00c
	f7ColorCodingID  = 0x010
	f7ColorCodingInq = 0x014
	f7PixelNumber    = 0x034
	f7TotalBytesHi   = 0x038
	f7TotalBytesLo   = 0x03c
	f7PacketParaInq  = 0x040
	f7BytePerPacket  = 0x044
	f7PacketPerFrame = 0x048
	f7ValueSetting   = 0x07c
)

// Absolute value CSR offsets.
const (
	absMin   = 0x000
	absMax   = 0x004
	absValue = 0x008
)

// Inquiry register bits.
const (
	inqPresence = 0x80000000
	inqAbs      = 0x40000000
	inqOnePush  = 0x10000000
	inqReadout  = 0x08000000
	inqOnOff    = 0x04000000
	inqAuto     = 0x02000000
	inqManual   = 0x01000000
)

// Control register bits.
const (
	ctlPresence = 0x80000000
	ctlAbs      = 0x40000000
	ctlOnePush  = 0x04000000
	ctlOn       = 0x02000000
	ctlAuto     = 0x01000000
	ctlValue    = 0x00000fff
)

// Trigger bits.
const (
	trigInqPolarity = 0x02000000
	trigInqSoftware = 0x00010000
	trigCtlOn       = 0x02000000
	trigCtlPolarity = 0x01000000
)

// Misc.
const (
	formatBit7       = 0x01000000
	isoEnableBit     = 0x80000000
	valueSetting1    = 0x40000000
	valueErrorFlag1  = 0x00800000
	initializeBit    = 0x80000000
	softwareTrigBit  = 0x80000000
	format7          = 7
	format7Modes     = 8
	maxColorCodings  = 32
	colorCodingShift = 24
)

// Point Grey advanced registers.
const (
	VendorPointGrey    = 0xb09d
	pgrAdvancedBase    = 0x1000
	pgrFrameInfo       = 0x12f8
	pgrFrameInfoEnable = 0x00000001
)
