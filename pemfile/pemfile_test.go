package pemfile

import (
	"crypto/x509"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testParams(t *testing.T) KeyParams {
	t.Helper()
	dir := t.TempDir()
	return KeyParams{
		Hostname:      "hotel.example",
		KeyPath:       filepath.Join(dir, "key.pem"),
		SSHPubKeyPath: filepath.Join(dir, "key.pub"),
		HTTPSCertPath: filepath.Join(dir, "cert.pem"),
		Bits:          1024,
	}
}

func TestEnsure(t *testing.T) {
	params := testParams(t)
	keys, generated, err := params.Ensure()
	if err != nil {
		t.Fatal(err)
	}
	if !generated {
		t.Errorf("first Ensure didn't generate keys")
	}
	cert, err := x509.ParseCertificate(keys.Certificate.Certificate[0])
	if err != nil {
		t.Fatal(err)
	}
	if err := cert.VerifyHostname("hotel.example"); err != nil {
		t.Errorf("certificate not valid for host: %v", err)
	}

	again, generated, err := params.Ensure()
	if err != nil {
		t.Fatal(err)
	}
	if generated {
		t.Errorf("second Ensure generated new keys")
	}
	if string(again.Signer.PublicKey().Marshal()) != string(keys.Signer.PublicKey().Marshal()) {
		t.Errorf("second Ensure loaded another key")
	}
}

func TestEnsureRegeneratesIncomplete(t *testing.T) {
	params := testParams(t)
	keys, _, err := params.Ensure()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(params.HTTPSCertPath); err != nil {
		t.Fatal(err)
	}
	again, generated, err := params.Ensure()
	if err != nil {
		t.Fatal(err)
	}
	if !generated {
		t.Errorf("missing certificate didn't trigger generation")
	}
	if string(again.Signer.PublicKey().Marshal()) == string(keys.Signer.PublicKey().Marshal()) {
		t.Errorf("regenerated keys equal the old ones")
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := testParams(t).Load(); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("got %v loading missing keys", err)
	}
}
