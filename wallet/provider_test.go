package wallet

import (
	"os"
	"path/filepath"
	"testing"
)

func writeKeyfile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wallet.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write keyfile: %v", err)
	}
	return path
}

func TestStaticSource(t *testing.T) {
	src := StaticSource{Asset: "SOL", Address: "  So1anaAddr111  "}
	wallet, err := src.DestinationAddress()
	if err != nil {
		t.Fatalf("DestinationAddress returned error: %v", err)
	}
	if wallet.Address != "So1anaAddr111" {
		t.Errorf("address = %q, want trimmed value", wallet.Address)
	}

	if _, err := (StaticSource{Asset: "SOL"}).DestinationAddress(); err == nil {
		t.Error("expected error for empty address")
	}
}

func TestFileSourceReadsPublicKey(t *testing.T) {
	path := writeKeyfile(t, `{"public_key":"So1anaAddr111","secret_key":"never-read"}`)
	wallet, err := FileSource{Asset: "SOL", Path: path}.DestinationAddress()
	if err != nil {
		t.Fatalf("DestinationAddress returned error: %v", err)
	}
	if wallet.Address != "So1anaAddr111" {
		t.Errorf("address = %q, want So1anaAddr111", wallet.Address)
	}
}

func TestFileSourceFallsBackToAddressField(t *testing.T) {
	path := writeKeyfile(t, `{"address":"So1anaAddr222"}`)
	wallet, err := FileSource{Asset: "SOL", Path: path}.DestinationAddress()
	if err != nil {
		t.Fatalf("DestinationAddress returned error: %v", err)
	}
	if wallet.Address != "So1anaAddr222" {
		t.Errorf("address = %q, want So1anaAddr222", wallet.Address)
	}
}

func TestFileSourceErrors(t *testing.T) {
	if _, err := (FileSource{Asset: "SOL", Path: "/nonexistent/wallet.json"}).DestinationAddress(); err == nil {
		t.Error("expected error for missing file")
	}

	path := writeKeyfile(t, `{"secret_key":"only"}`)
	if _, err := (FileSource{Asset: "SOL", Path: path}).DestinationAddress(); err == nil {
		t.Error("expected error for keyfile without public address")
	}
}
