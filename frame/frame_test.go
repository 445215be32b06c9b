// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package frame

import "testing"

var encodings = map[string]struct {
	cmd  Command
	data Time
}{
	"start-tick-zero": {StartTick, Time{}},
	"start-tick-time": {StartTick, EncodeRTC(0x6547A1B0, 0x2A)},
	"stop":            {Stop, Time{}},
	"stop-req":        {StopReq, Time{}},
	"poll":            {Poll, Time{}},
}

func Test_EncodeDecodeRoundTrip(t *testing.T) {
	for n, tc := range encodings {
		got := Encode(tc.cmd, tc.data)
		f, ok := Decode(got[:])
		if !ok {
			t.Fatalf("%s: decode rejected a freshly encoded frame: %+v", n, got)
		}
		if f.Cmd != tc.cmd {
			t.Fatalf("%s: cmd mismatch got %v want %v", n, f.Cmd, tc.cmd)
		}
		if f.Data != tc.data {
			t.Fatalf("%s: data mismatch got %+v want %+v", n, f.Data, tc.data)
		}
	}
}

// Test_KnownVector checks the literal frame from spec.md §8 scenario 2:
// RTC 0x6547A1B0, hundredths 0x2A encodes to AA 00 65 47 A1 B0 2A <CRC>.
func Test_KnownVector(t *testing.T) {
	got := Encode(StartTick, EncodeRTC(0x6547A1B0, 0x2A))
	want := [7]byte{0xAA, 0x00, 0x65, 0x47, 0xA1, 0xB0, 0x2A}
	for i, b := range want {
		if got[i] != b {
			t.Fatalf("byte %d: got %#02x want %#02x", i, got[i], b)
		}
	}
	if crc8(got[:7]) != got[7] {
		t.Fatalf("CRC byte %#02x does not verify", got[7])
	}
}

// Test_InitialStartTick checks spec.md §8 scenario 1's literal wire bytes:
// AA 00 00 00 00 00 00 07.
func Test_InitialStartTick(t *testing.T) {
	got := Encode(StartTick, Time{})
	want := [Size]byte{0xAA, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x07}
	if got != want {
		t.Fatalf("got %#v want %#v", got, want)
	}
}

func Test_DecodeRejectsWrongLength(t *testing.T) {
	buf := Encode(StartTick, Time{})
	if _, ok := Decode(buf[:7]); ok {
		t.Fatal("expected rejection of a truncated frame")
	}
	if _, ok := Decode(append(buf[:], 0)); ok {
		t.Fatal("expected rejection of an over-long frame")
	}
}

func Test_DecodeRejectsWrongSOF(t *testing.T) {
	buf := Encode(StartTick, Time{})
	buf[0] = 0xAB
	if _, ok := Decode(buf[:]); ok {
		t.Fatal("expected rejection of a bad SOF")
	}
}

// Test_DecodeRejectsBadCRC mirrors spec.md §8 scenario 5: a received frame
// with the CRC byte XOR'd by 1 must be dropped.
func Test_DecodeRejectsBadCRC(t *testing.T) {
	buf := Encode(StartTick, EncodeRTC(0x6547A1B0, 0x2A))
	buf[7] ^= 1
	if _, ok := Decode(buf[:]); ok {
		t.Fatal("expected rejection of a corrupted CRC")
	}
}

func Test_CoordSignature(t *testing.T) {
	sig := CoordSignature()
	if !sig.IsCoordSignature() {
		t.Fatal("CoordSignature() does not report itself as the coordinator signature")
	}
	if sig.Hundredths() != 0xFF {
		t.Fatalf("coordinator signature hundredths field = %#02x, want 0xFF", sig.Hundredths())
	}
	real := EncodeRTC(1, 0xFE)
	if real.IsCoordSignature() {
		t.Fatal("a real timestamp must never be mistaken for the coordinator signature")
	}
}

func Test_IsZero(t *testing.T) {
	if !(Time{}).IsZero() {
		t.Fatal("zero Time must report IsZero")
	}
	if EncodeRTC(1, 0).IsZero() {
		t.Fatal("non-zero Time must not report IsZero")
	}
}
