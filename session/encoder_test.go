package session

import (
	"strings"
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	in := &Session{
		SessionID:  "sid-1",
		UserID:     "user-1",
		Device:     "Safari on iOS",
		IP:         "2001:db8::1",
		CreatedAt:  1700000000,
		LastActive: 1700000100,
		ExpiresAt:  1700600000,
	}
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	in.SchemaVersion = CurrentSchemaVersion
	if *out != *in {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", out, in)
	}
}

func TestEncodeTruncatesLongDevice(t *testing.T) {
	data, err := Encode(&Session{SessionID: "s", UserID: "u", Device: strings.Repeat("x", 5000)})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(out.Device) != maxDeviceLen {
		t.Fatalf("expected device truncated to %d, got %d", maxDeviceLen, len(out.Device))
	}
}

func TestDecodeRejectsUnsupportedSchemaVersion(t *testing.T) {
	_, err := Decode([]byte{99})
	if err == nil || !strings.Contains(err.Error(), "unsupported session schema version") {
		t.Fatalf("expected unsupported schema version error, got %v", err)
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	data, _ := Encode(&Session{SessionID: "s", UserID: "u"})
	if _, err := Decode(append(data, 0)); err == nil {
		t.Fatal("expected trailing bytes to be rejected")
	}
}

// FuzzSessionDecode checks the decoder never panics on arbitrary input.
func FuzzSessionDecode(f *testing.F) {
	encoded, err := Encode(&Session{
		SessionID:  "sid-fuzz",
		UserID:     "user1",
		Device:     "curl",
		IP:         "127.0.0.1",
		CreatedAt:  1700000000,
		LastActive: 1700000000,
		ExpiresAt:  1700003600,
	})
	if err == nil {
		f.Add(encoded)
		f.Add(encoded[:10])
	}
	f.Add([]byte{})
	f.Add([]byte{1})
	f.Add([]byte{1, 255, 255, 255})

	f.Fuzz(func(t *testing.T, data []byte) {
		s, err := Decode(data)
		if err == nil && s == nil {
			t.Fatal("nil session without error")
		}
	})
}
