package coreapi

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
	"time"
)

const timestampLayout = "20060102150405"

var nairobi = time.FixedZone("EAT", 3*60*60)

// Timestamp formats t the way Daraja expects, in East Africa Time.
func Timestamp(t time.Time) string {
	return t.In(nairobi).Format(timestampLayout)
}

// Password is the STK push password: base64(shortcode + passkey + timestamp).
func Password(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}

// SecurityCredential encrypts the B2C initiator password with the provider's
// public certificate.
func SecurityCredential(initiatorPassword, certificatePath string) (string, error) {
	// The path comes from configuration only.
	if certificatePath == "" || strings.Contains(certificatePath, "..") {
		return "", fmt.Errorf("invalid certificate path")
	}
	certBytes, err := os.ReadFile(certificatePath)
	if err != nil {
		return "", fmt.Errorf("failed to read certificate: %w", err)
	}
	return EncryptCredential(initiatorPassword, certBytes)
}

func EncryptCredential(initiatorPassword string, certPEM []byte) (string, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return "", fmt.Errorf("failed to decode certificate PEM")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse certificate: %w", err)
	}

	publicKey, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return "", fmt.Errorf("certificate does not carry an RSA public key")
	}

	encrypted, err := rsa.EncryptPKCS1v15(rand.Reader, publicKey, []byte(initiatorPassword))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt initiator password: %w", err)
	}
	return base64.StdEncoding.EncodeToString(encrypted), nil
}
