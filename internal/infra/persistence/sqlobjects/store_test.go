package sqlobjects

import "testing"

func TestRebind(t *testing.T) {
	got := Rebind(UpdateSQL)
	want := `UPDATE objects SET payload = $1, etag = $2, content_type = $3, metadata = $4, updated_at = $5 WHERE key = $6 AND etag = $7`
	if got != want {
		t.Fatalf("Rebind = %q", got)
	}
	if Rebind(ListSQL) != `SELECT key, LENGTH(payload), etag, content_type, metadata, updated_at FROM objects WHERE key LIKE $1 ESCAPE '\' ORDER BY key` {
		t.Fatalf("unexpected list rebind %q", Rebind(ListSQL))
	}
}

func TestEscapeLike(t *testing.T) {
	if got := escapeLike(`apps/a_b%\`); got != `apps/a\_b\%\\` {
		t.Fatalf("escapeLike = %q", got)
	}
}

func TestMetadataCodec(t *testing.T) {
	raw, err := encodeMetadata(nil)
	if err != nil || raw != "{}" {
		t.Fatalf("empty metadata encodes to %q err %v", raw, err)
	}
	raw, _ = encodeMetadata(map[string]string{"a": "1"})
	md, err := decodeMetadata(raw)
	if err != nil || md["a"] != "1" {
		t.Fatalf("round trip lost data: %v %v", md, err)
	}
	if md, _ := decodeMetadata("{}"); md != nil {
		t.Fatalf("expected nil for empty object")
	}
	if _, err := decodeMetadata("{"); err == nil {
		t.Fatalf("expected decode error")
	}
}
