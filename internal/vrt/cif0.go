package vrt

import "math"

// CIF0 bit positions, descending from the Context Field Change flag (31)
// down to Data Packet Payload Format (15). Each decodes a field-type
// dependent number of payload words, consumed in strict descending order.
const (
	BitContextFieldChange   = 31
	BitReferencePointID     = 30
	BitBandwidth            = 29
	BitIFReferenceFrequency = 28
	BitRFReferenceFrequency = 27
	BitRFReferenceFreqOffset = 26
	BitIFBandOffset         = 25
	BitReferenceLevel       = 24
	BitGain                 = 23
	BitOverRangeCount       = 22
	BitSampleRate           = 21
	BitTimestampAdjustment  = 20
	BitTimestampCalTime     = 19
	BitTemperature          = 18
	BitDeviceIdentifier     = 17
	BitStateEventIndicators = 16
	BitDataPacketPayloadFmt = 15
)

// CIFFields is the decoded representation of an IF Context packet's CIF0
// payload: the raw CIF0 word plus an optional value for each recognized
// bit.
type CIFFields struct {
	CIF0 uint32

	ContextFieldChange bool

	HasReferencePointID bool
	ReferencePointID    uint32

	HasBandwidth bool
	Bandwidth    float64 // Hz

	HasIFReferenceFrequency bool
	IFReferenceFrequency    float64 // Hz

	HasRFReferenceFrequency bool
	RFReferenceFrequency    float64 // Hz

	HasRFReferenceFrequencyOffset bool
	RFReferenceFrequencyOffset    float64 // Hz

	HasIFBandOffset bool
	IFBandOffset    float64 // Hz

	HasReferenceLevel bool
	ReferenceLevel    float32 // dBm

	HasGain    bool
	GainStage1 float32 // dB
	GainStage2 float32 // dB

	HasOverRangeCount bool
	OverRangeCount    uint32

	HasSampleRate bool
	SampleRate    float64 // Hz

	HasTimestampAdjustment bool
	TimestampAdjustment    uint64 // picoseconds

	HasTimestampCalibrationTime bool
	TimestampCalibrationTimeInt uint32
	TimestampCalibrationTimeFrac uint64

	HasTemperature bool
	Temperature    float32 // degrees C

	HasDeviceIdentifier   bool
	DeviceIdentifierOUI   uint32 // 24 bits
	DeviceIdentifierCode  uint16

	HasStateEventIndicators bool
	StateEventIndicators    uint32

	HasDataPacketPayloadFormat bool
	DataPacketPayloadFormat    uint64
}

// ParseCIF decodes the CIF0 payload of pkt. pkt must be an IF_Context or
// Ext_Context packet with at least one payload word. Fields are consumed in
// strict descending bit order from 30 down to 15 (bit 31 sets only the
// ContextFieldChange flag and consumes no payload); any field whose words
// would read past the payload's bounds fails the whole decode with
// ErrInvalidArgument rather than silently returning zero.
func ParseCIF(pkt *Packet) (*CIFFields, error) {
	if pkt == nil {
		return nil, ErrInvalidArgument
	}
	if pkt.Header.PacketType != PacketTypeIFContext && pkt.Header.PacketType != PacketTypeExtContext {
		return nil, ErrInvalidArgument
	}
	words := pkt.PayloadWords()
	if words < 1 {
		return nil, ErrInvalidArgument
	}

	cif := &CIFFields{CIF0: GetPayloadWord(pkt, 0)}
	offset := 1

	need := func(n int) error {
		if offset+n > words {
			return ErrInvalidArgument
		}
		return nil
	}

	if cif.CIF0&(1<<BitContextFieldChange) != 0 {
		cif.ContextFieldChange = true
	}
	if cif.CIF0&(1<<BitReferencePointID) != 0 {
		if err := need(1); err != nil {
			return nil, err
		}
		cif.HasReferencePointID = true
		cif.ReferencePointID = GetPayloadWord(pkt, offset)
		offset++
	}
	if cif.CIF0&(1<<BitBandwidth) != 0 {
		if err := need(2); err != nil {
			return nil, err
		}
		cif.HasBandwidth = true
		cif.Bandwidth = GetPayloadDouble(pkt, offset)
		offset += 2
	}
	if cif.CIF0&(1<<BitIFReferenceFrequency) != 0 {
		if err := need(2); err != nil {
			return nil, err
		}
		cif.HasIFReferenceFrequency = true
		cif.IFReferenceFrequency = GetPayloadDouble(pkt, offset)
		offset += 2
	}
	if cif.CIF0&(1<<BitRFReferenceFrequency) != 0 {
		if err := need(2); err != nil {
			return nil, err
		}
		cif.HasRFReferenceFrequency = true
		cif.RFReferenceFrequency = GetPayloadDouble(pkt, offset)
		offset += 2
	}
	if cif.CIF0&(1<<BitRFReferenceFreqOffset) != 0 {
		if err := need(2); err != nil {
			return nil, err
		}
		cif.HasRFReferenceFrequencyOffset = true
		cif.RFReferenceFrequencyOffset = GetPayloadDouble(pkt, offset)
		offset += 2
	}
	if cif.CIF0&(1<<BitIFBandOffset) != 0 {
		if err := need(2); err != nil {
			return nil, err
		}
		cif.HasIFBandOffset = true
		cif.IFBandOffset = GetPayloadDouble(pkt, offset)
		offset += 2
	}
	if cif.CIF0&(1<<BitReferenceLevel) != 0 {
		if err := need(1); err != nil {
			return nil, err
		}
		cif.HasReferenceLevel = true
		cif.ReferenceLevel = math.Float32frombits(GetPayloadWord(pkt, offset))
		offset++
	}
	if cif.CIF0&(1<<BitGain) != 0 {
		if err := need(1); err != nil {
			return nil, err
		}
		cif.HasGain = true
		val := GetPayloadWord(pkt, offset)
		stage1 := int16(val >> 16)
		stage2 := int16(val & 0xFFFF)
		// No scaling applied: VITA 49.2 specifies a fixed-point gain
		// representation, but the source this was translated from casts
		// the raw halves straight to float. Preserved as-is; see
		// DESIGN.md's open question on gain units.
		cif.GainStage1 = float32(stage1)
		cif.GainStage2 = float32(stage2)
		offset++
	}
	if cif.CIF0&(1<<BitOverRangeCount) != 0 {
		if err := need(1); err != nil {
			return nil, err
		}
		cif.HasOverRangeCount = true
		cif.OverRangeCount = GetPayloadWord(pkt, offset)
		offset++
	}
	if cif.CIF0&(1<<BitSampleRate) != 0 {
		if err := need(2); err != nil {
			return nil, err
		}
		cif.HasSampleRate = true
		cif.SampleRate = GetPayloadDouble(pkt, offset)
		offset += 2
	}
	if cif.CIF0&(1<<BitTimestampAdjustment) != 0 {
		if err := need(2); err != nil {
			return nil, err
		}
		cif.HasTimestampAdjustment = true
		w1 := uint64(GetPayloadWord(pkt, offset))
		w2 := uint64(GetPayloadWord(pkt, offset+1))
		cif.TimestampAdjustment = w1<<32 | w2
		offset += 2
	}
	if cif.CIF0&(1<<BitTimestampCalTime) != 0 {
		if err := need(3); err != nil {
			return nil, err
		}
		cif.HasTimestampCalibrationTime = true
		cif.TimestampCalibrationTimeInt = GetPayloadWord(pkt, offset)
		f1 := uint64(GetPayloadWord(pkt, offset+1))
		f2 := uint64(GetPayloadWord(pkt, offset+2))
		cif.TimestampCalibrationTimeFrac = f1<<32 | f2
		offset += 3
	}
	if cif.CIF0&(1<<BitTemperature) != 0 {
		if err := need(1); err != nil {
			return nil, err
		}
		cif.HasTemperature = true
		val := GetPayloadWord(pkt, offset)
		// Signed Q16.16: upper 16 bits are the signed integer part, lower
		// 16 bits an unsigned fractional numerator over 65536.
		integer := int16(val >> 16)
		frac := uint16(val & 0xFFFF)
		cif.Temperature = float32(integer) + float32(frac)/65536.0
		offset++
	}
	if cif.CIF0&(1<<BitDeviceIdentifier) != 0 {
		if err := need(2); err != nil {
			return nil, err
		}
		cif.HasDeviceIdentifier = true
		oui := GetPayloadWord(pkt, offset)
		code := GetPayloadWord(pkt, offset+1) >> 16
		cif.DeviceIdentifierOUI = oui & 0xFFFFFF
		cif.DeviceIdentifierCode = uint16(code)
		offset += 2
	}
	if cif.CIF0&(1<<BitStateEventIndicators) != 0 {
		if err := need(1); err != nil {
			return nil, err
		}
		cif.HasStateEventIndicators = true
		cif.StateEventIndicators = GetPayloadWord(pkt, offset)
		offset++
	}
	if cif.CIF0&(1<<BitDataPacketPayloadFmt) != 0 {
		if err := need(2); err != nil {
			return nil, err
		}
		cif.HasDataPacketPayloadFormat = true
		w1 := uint64(GetPayloadWord(pkt, offset))
		w2 := uint64(GetPayloadWord(pkt, offset+1))
		cif.DataPacketPayloadFormat = w1<<32 | w2
		offset += 2
	}

	return cif, nil
}
