package vrt

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func putU32(b []byte, off int, v uint32) {
	binary.BigEndian.PutUint32(b[off*4:], v)
}

// fillContextPacket mirrors original_source/tests/api/test_vita49.c's
// fill_context_packet: a 10-word IF_Context packet with class ID, stream ID
// 0x12345678, and a CIF0 payload selecting sample rate (bit 21) and
// reference point ID (bit 30).
func fillContextPacket() []byte {
	buf := make([]byte, 40)
	hdr := Header{
		PacketType:      PacketTypeIFContext,
		HasClassID:      true,
		PacketSizeWords: 10,
	}
	putU32(buf, 0, hdr.encode())
	putU32(buf, 1, 0x12345678)              // stream ID
	putU32(buf, 2, 0x0012A200)              // OUI
	putU32(buf, 3, 0x00000001)              // info/packet class
	putU32(buf, 4, (1<<BitSampleRate)|(1<<BitReferencePointID))
	putU32(buf, 5, 0)
	putU32(buf, 6, 0)
	putU32(buf, 7, 0)
	putU32(buf, 8, 0)
	putU32(buf, 9, 0)
	return buf
}

func TestParseContextPacketBasic(t *testing.T) {
	buf := fillContextPacket()
	pkt, err := Parse(buf)
	require.NoError(t, err)
	assert.Equal(t, PacketTypeIFContext, pkt.Header.PacketType)
	assert.True(t, pkt.HasStreamID)
	assert.Equal(t, uint32(0x12345678), pkt.StreamID)
	assert.True(t, pkt.HasClassID)
	assert.Equal(t, uint64(0x0012A20000000001), pkt.ClassID)
	assert.Equal(t, 6, pkt.PayloadWords())
	assert.False(t, pkt.HasTimestampInt)
	assert.False(t, pkt.HasTimestampFrac)
	assert.False(t, pkt.HasTrailer)
}

func TestGenerateThenReparseIFDataWithSID(t *testing.T) {
	pkt := &Packet{
		Header: Header{
			PacketType: PacketTypeIFDataWithSID,
			HasTrailer: true,
			TSIFormat:  TSIUTC,
			TSFFormat:  TSFRealTime,
		},
		HasStreamID:      true,
		StreamID:         0x87654321,
		HasTimestampInt:  true,
		TimestampInt:     1000000,
		HasTimestampFrac: true,
		TimestampFrac:    2000000,
		HasTrailer:       true,
		Trailer:          Trailer{ContextPacketCountEnable: true},
	}
	payload := make([]byte, 8)
	putU32(payload, 0, 0xDEADBEEF)
	putU32(payload, 1, 0xCAFEBABE)
	pkt.Payload = payload

	buf := make([]byte, 40)
	n, err := Generate(pkt, buf)
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	pkt2, err := Parse(buf[:n*4])
	require.NoError(t, err)
	assert.Equal(t, uint32(0x87654321), pkt2.StreamID)
	assert.Equal(t, uint32(1000000), pkt2.TimestampInt)
	assert.Equal(t, uint64(2000000), pkt2.TimestampFrac)
	assert.Equal(t, 2, pkt2.PayloadWords())
	assert.Equal(t, uint32(0xDEADBEEF), GetPayloadWord(pkt2, 0))
	assert.Equal(t, uint32(0xCAFEBABE), GetPayloadWord(pkt2, 1))
	assert.True(t, pkt2.Trailer.ContextPacketCountEnable)
}

func TestParseTruncatedBufferFails(t *testing.T) {
	buf := make([]byte, 16) // claims 12 words but only 4 present
	hdr := Header{PacketType: PacketTypeIFDataNoSID, PacketSizeWords: 12}
	putU32(buf, 0, hdr.encode())
	_, err := Parse(buf)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestParseZeroWordsFails(t *testing.T) {
	_, err := Parse(nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestGenerateBufferOneWordTooSmall(t *testing.T) {
	pkt := &Packet{
		Header: Header{PacketType: PacketTypeIFDataWithSID},
		HasStreamID: true,
		StreamID:    1,
	}
	payload := make([]byte, 4*5)
	pkt.Payload = payload
	// Needs header(1) + sid(1) + payload(5) = 7 words; give only 6.
	buf := make([]byte, 4*6)
	_, err := Generate(pkt, buf)
	assert.ErrorIs(t, err, ErrNoBuffer)
}

func TestReservedBitsRoundTrip(t *testing.T) {
	buf := make([]byte, 8)
	hdr := Header{PacketType: PacketTypeIFDataNoSID, Reserved: 0x3, PacketSizeWords: 1}
	putU32(buf, 0, hdr.encode())
	pkt, err := Parse(buf)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x3), pkt.Header.Reserved)

	out := make([]byte, 8)
	_, err = Generate(pkt, out)
	require.NoError(t, err)
	pkt2, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x3), pkt2.Header.Reserved)
}

func TestGeneratedHeaderSizeMatchesReturnedWordCount(t *testing.T) {
	pkt := &Packet{
		Header: Header{PacketType: PacketTypeIFDataNoSID},
	}
	buf := make([]byte, 4)
	n, err := Generate(pkt, buf)
	require.NoError(t, err)
	got, err := Parse(buf[:n*4])
	require.NoError(t, err)
	assert.Equal(t, uint16(n), got.Header.PacketSizeWords)
}

// rapidPacket draws a random valid IF_Data_With_SID packet (no timestamps,
// no class ID, no trailer, to keep the generated+parsed shape simple and
// self-describing) with a random payload.
func rapidPacket(t *rapid.T) (*Packet, []byte) {
	streamID := rapid.Uint32().Draw(t, "streamID")
	payloadWords := rapid.IntRange(0, 16).Draw(t, "payloadWords")
	payload := make([]byte, payloadWords*4)
	for i := range payload {
		payload[i] = byte(rapid.IntRange(0, 255).Draw(t, "byte"))
	}
	pkt := &Packet{
		Header:      Header{PacketType: PacketTypeIFDataWithSID},
		HasStreamID: true,
		StreamID:    streamID,
		Payload:     payload,
	}
	return pkt, payload
}

func TestRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pkt, payload := rapidPacket(t)
		buf := make([]byte, 4096)
		n, err := Generate(pkt, buf)
		require.NoError(t, err)

		got, err := Parse(buf[:n*4])
		require.NoError(t, err)

		assert.Equal(t, pkt.StreamID, got.StreamID)
		assert.Equal(t, pkt.HasStreamID, got.HasStreamID)
		assert.Equal(t, len(payload), len(got.Payload))
		assert.Equal(t, payload, got.Payload)
	})
}

func TestCIFDecodeBandwidthAndSampleRate(t *testing.T) {
	payload := make([]byte, 4*5)
	putU32(payload, 0, (1<<BitSampleRate)|(1<<BitBandwidth))
	SetPayloadDouble(payload, 1, 56_000_000.0) // bandwidth
	SetPayloadDouble(payload, 3, 100_000_000.0) // sample rate

	pkt := &Packet{
		Header:  Header{PacketType: PacketTypeIFContext},
		Payload: payload,
	}
	cif, err := ParseCIF(pkt)
	require.NoError(t, err)
	assert.True(t, cif.HasBandwidth)
	assert.Equal(t, 56_000_000.0, cif.Bandwidth)
	assert.True(t, cif.HasSampleRate)
	assert.Equal(t, 100_000_000.0, cif.SampleRate)
}

func TestCIFDecodeOverreadFails(t *testing.T) {
	// Bandwidth (bit 29) needs 2 words but only 1 word of payload present
	// after CIF0 itself.
	payload := make([]byte, 4*2)
	putU32(payload, 0, 1<<BitBandwidth)
	pkt := &Packet{Header: Header{PacketType: PacketTypeIFContext}, Payload: payload}
	_, err := ParseCIF(pkt)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCIFDecodeExactSizeSucceeds(t *testing.T) {
	payload := make([]byte, 4*3)
	putU32(payload, 0, 1<<BitBandwidth)
	SetPayloadDouble(payload, 1, 1.0)
	pkt := &Packet{Header: Header{PacketType: PacketTypeIFContext}, Payload: payload}
	_, err := ParseCIF(pkt)
	assert.NoError(t, err)
}

func TestCIFWrongPacketTypeFails(t *testing.T) {
	payload := make([]byte, 4)
	pkt := &Packet{Header: Header{PacketType: PacketTypeIFDataNoSID}, Payload: payload}
	_, err := ParseCIF(pkt)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCIFOrderedOffsetsMatchBitPositionWidths(t *testing.T) {
	// Bits 29 (bandwidth, 2 words) and 24 (reference level, 1 word) set;
	// reference level must land at offset 1 + 2 = 3.
	payload := make([]byte, 4*4)
	putU32(payload, 0, (1<<BitBandwidth)|(1<<BitReferenceLevel))
	SetPayloadDouble(payload, 1, 10e6)
	SetPayloadWord(payload, 3, math.Float32bits(-20.5)) // reference level
	pkt := &Packet{Header: Header{PacketType: PacketTypeIFContext}, Payload: payload}
	cif, err := ParseCIF(pkt)
	require.NoError(t, err)
	assert.True(t, cif.HasBandwidth)
	assert.Equal(t, 10e6, cif.Bandwidth)
	assert.True(t, cif.HasReferenceLevel)
	assert.Equal(t, float32(-20.5), cif.ReferenceLevel)
}

func TestGainNoScalingPreserved(t *testing.T) {
	payload := make([]byte, 4*2)
	putU32(payload, 0, 1<<BitGain)
	putU32(payload, 1, (uint32(uint16(5))<<16)|uint32(uint16(0xFFFE))) // stage1=5, stage2=-2
	pkt := &Packet{Header: Header{PacketType: PacketTypeIFContext}, Payload: payload}
	cif, err := ParseCIF(pkt)
	require.NoError(t, err)
	assert.Equal(t, float32(5), cif.GainStage1)
	assert.Equal(t, float32(-2), cif.GainStage2)
}
