package archive

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
)

func TestWriteRoundTrip(t *testing.T) {
	entries := []Entry{
		{Name: "a.png", Data: []byte("alpha")},
		{Name: "B.jpg", Data: []byte("beta")},
		{Name: "c.png", Data: []byte("gamma")},
	}

	var buf bytes.Buffer
	if err := Write(&buf, entries); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("output is not a readable zip: %v", err)
	}
	if len(zr.File) != len(entries) {
		t.Fatalf("expected %d members, got %d", len(entries), len(zr.File))
	}

	for i, member := range zr.File {
		if member.Name != entries[i].Name {
			t.Errorf("member %d named %q, expected %q", i, member.Name, entries[i].Name)
		}
		rc, err := member.Open()
		if err != nil {
			t.Fatalf("failed to open member %s: %v", member.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("failed to read member %s: %v", member.Name, err)
		}
		if !bytes.Equal(data, entries[i].Data) {
			t.Errorf("member %s content mismatch", member.Name)
		}
	}
}

func TestWriteEmptyArchive(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, nil); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("empty archive is not readable: %v", err)
	}
	if len(zr.File) != 0 {
		t.Errorf("expected no members, got %d", len(zr.File))
	}
}
