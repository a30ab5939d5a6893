// Package pemfile creates and loads the host key shared by the SSH listener
// and the HTTPS feed.
package pemfile

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"time"

	"github.com/zond/juiceroom"

	gossh "golang.org/x/crypto/ssh"
)

const defaultBits = 4096

type KeyParams struct {
	Hostname      string
	KeyPath       string
	SSHPubKeyPath string
	HTTPSCertPath string
	// Bits defaults to 4096.
	Bits int
}

// Keys are the loaded host credentials.
type Keys struct {
	PEM         []byte
	Signer      gossh.Signer
	Certificate tls.Certificate
}

func (k KeyParams) Generate() error {
	bits := k.Bits
	if bits == 0 {
		bits = defaultBits
	}
	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return juiceroom.WithStack(err)
	}

	if err := os.WriteFile(k.KeyPath, pem.EncodeToMemory(
		&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
		}),
		0600,
	); err != nil {
		return juiceroom.WithStack(err)
	}

	pub, err := gossh.NewPublicKey(&privateKey.PublicKey)
	if err != nil {
		return juiceroom.WithStack(err)
	}
	if err := os.WriteFile(k.SSHPubKeyPath, gossh.MarshalAuthorizedKey(pub), 0600); err != nil {
		return juiceroom.WithStack(err)
	}

	template := x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: k.Hostname},
		DNSNames:              []string{k.Hostname},
		SignatureAlgorithm:    x509.SHA256WithRSA,
		NotBefore:             time.Now(),
		NotAfter:              time.Now().AddDate(100, 0, 0),
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return juiceroom.WithStack(err)
	}
	if err := os.WriteFile(k.HTTPSCertPath, pem.EncodeToMemory(
		&pem.Block{
			Type:  "CERTIFICATE",
			Bytes: derBytes,
		},
	), 0600); err != nil {
		return juiceroom.WithStack(err)
	}
	return nil
}

// Load reads keys written by Generate.
func (k KeyParams) Load() (*Keys, error) {
	keyPEM, err := os.ReadFile(k.KeyPath)
	if err != nil {
		return nil, juiceroom.WithStack(err)
	}
	signer, err := gossh.ParsePrivateKey(keyPEM)
	if err != nil {
		return nil, juiceroom.WithStack(err)
	}
	certPEM, err := os.ReadFile(k.HTTPSCertPath)
	if err != nil {
		return nil, juiceroom.WithStack(err)
	}
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, juiceroom.WithStack(err)
	}
	return &Keys{
		PEM:         keyPEM,
		Signer:      signer,
		Certificate: cert,
	}, nil
}

// Ensure generates the keys unless they exist, and loads them. The returned
// bool is true when new keys were generated.
func (k KeyParams) Ensure() (*Keys, bool, error) {
	generated := false
	for _, path := range []string{k.KeyPath, k.SSHPubKeyPath, k.HTTPSCertPath} {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := k.Generate(); err != nil {
				return nil, false, err
			}
			generated = true
			break
		} else if err != nil {
			return nil, false, juiceroom.WithStack(err)
		}
	}
	keys, err := k.Load()
	return keys, generated, err
}
