package gateway

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/martian/mitm"
)

const (
	certFile = "gateway_cert.pem" // Authority certificate file name
	keyFile  = "gateway_key.pem"  // Authority private key file name
)

// CertificatePair names the provisioned certificate and key files serving a
// host.
type CertificatePair struct {
	Host     string `mapstructure:"host" yaml:"host"`
	CertFile string `mapstructure:"cert_file" yaml:"cert_file"`
	KeyFile  string `mapstructure:"key_file" yaml:"key_file"`
}

// NewTLSConfig loads the provisioned pairs and serves them by SNI. Clients
// sending no server name, or one with no dedicated pair, get the first pair
// as fallback.
func NewTLSConfig(pairs []CertificatePair) (*tls.Config, error) {
	if len(pairs) == 0 {
		return nil, errors.New("no certificate pairs provided")
	}

	certificates := make(map[string]*tls.Certificate, len(pairs))
	var fallback *tls.Certificate
	for _, pair := range pairs {
		certificate, err := tls.LoadX509KeyPair(pair.CertFile, pair.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading certificate for %s : %w", pair.Host, err)
		}
		certificates[strings.ToLower(pair.Host)] = &certificate
		if fallback == nil {
			fallback = &certificate
		}
	}

	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		NextProtos: []string{"http/1.1"},
		GetCertificate: func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
			if certificate, ok := certificates[strings.ToLower(hello.ServerName)]; ok {
				return certificate, nil
			}
			return fallback, nil
		},
	}, nil
}

// EnsureSelfSigned returns a TLS config backed by a gateway authority kept
// under configDir, creating the authority on first use. Leaf certificates
// are minted per SNI, so local and staging setups serve HTTPS for every
// tenant host after installing the one authority certificate. Deployments
// with provisioned certificates should use NewTLSConfig instead.
func EnsureSelfSigned(configDir string) (*tls.Config, error) {
	var authority *x509.Certificate
	var priv interface{}
	var err error

	certPath := filepath.Join(configDir, certFile)
	keyPath := filepath.Join(configDir, keyFile)
	if _, err = os.Stat(certPath); os.IsNotExist(err) {
		authority, priv, err = mitm.NewAuthority("DIGIT-HAB Gateway", "DIGIT-HAB", 3*365*24*time.Hour)
		if err != nil {
			return nil, fmt.Errorf("creating gateway authority : %w", err)
		}
		if err := savePEMPair(authority, priv, certPath, keyPath); err != nil {
			return nil, err
		}
	} else {
		authority, priv, err = loadPEMPair(certPath, keyPath)
		if err != nil {
			return nil, err
		}
	}

	mintingConfig, err := mitm.NewConfig(authority, priv)
	if err != nil {
		return nil, fmt.Errorf("creating tls minting config : %w", err)
	}
	tlsConfig := mintingConfig.TLS()
	tlsConfig.NextProtos = []string{"http/1.1"}
	return tlsConfig, nil
}

func savePEMPair(cert *x509.Certificate, priv interface{}, certPath, keyPath string) error {
	certOut, err := os.Create(certPath)
	if err != nil {
		return fmt.Errorf("opening cert file for writing : %w", err)
	}
	defer certOut.Close()
	if err := pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}); err != nil {
		return fmt.Errorf("writing cert file : %w", err)
	}

	keyOut, err := os.Create(keyPath)
	if err != nil {
		return fmt.Errorf("opening key file for writing : %w", err)
	}
	defer keyOut.Close()
	privBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return fmt.Errorf("marshalling private key : %w", err)
	}
	if err := pem.Encode(keyOut, &pem.Block{Type: "PRIVATE KEY", Bytes: privBytes}); err != nil {
		return fmt.Errorf("writing key file : %w", err)
	}

	return nil
}

func loadPEMPair(certPath, keyPath string) (*x509.Certificate, interface{}, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, nil, fmt.Errorf("reading cert file : %w", err)
	}
	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, nil, errors.New("decoding cert PEM block")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing certificate : %w", err)
	}

	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("reading key file : %w", err)
	}
	block, _ = pem.Decode(keyPEM)
	if block == nil || block.Type != "PRIVATE KEY" {
		return nil, nil, errors.New("decoding key PEM block")
	}
	priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing private key : %w", err)
	}

	return cert, priv, nil
}
