// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ecc256 holds the NIST P-256 values exchanged with the ECDSA
// authenticators.
//
// Scalars are big endian, as sent on the wire.
package ecc256

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"math/big"

	"github.com/GermanBionicSystems/maximinterface/onewire"
)

// Scalar is a 256 bits integer.
type Scalar [32]byte

func (s *Scalar) int() *big.Int {
	return new(big.Int).SetBytes(s[:])
}

// Point is a point on the curve.
type Point struct {
	X, Y Scalar
}

// PrivateKey is a private key.
type PrivateKey = Scalar

// PublicKey is a public key.
type PublicKey = Point

// KeyPair is a private key and its public key.
type KeyPair struct {
	PrivateKey PrivateKey
	PublicKey  PublicKey
}

// Signature is an ECDSA signature.
type Signature struct {
	R, S Scalar
}

// Bytes returns X followed by Y, the layout of a key in device memory.
func (p *Point) Bytes() []byte {
	return append(append(make([]byte, 0, 64), p.X[:]...), p.Y[:]...)
}

// ECDSA returns p as a public key usable by crypto/ecdsa.
func (p *Point) ECDSA() *ecdsa.PublicKey {
	return &ecdsa.PublicKey{Curve: elliptic.P256(), X: p.X.int(), Y: p.Y.int()}
}

// OnCurve returns true if p is a valid P-256 public key.
func (p *Point) OnCurve() bool {
	return elliptic.P256().IsOnCurve(p.X.int(), p.Y.int())
}

// FromECDSA converts a crypto/ecdsa public key.
func FromECDSA(k *ecdsa.PublicKey) PublicKey {
	var p PublicKey
	k.X.FillBytes(p.X[:])
	k.Y.FillBytes(p.Y[:])
	return p
}

// Bytes returns R followed by S, the layout of a signature in a request.
func (s *Signature) Bytes() []byte {
	return append(append(make([]byte, 0, 64), s.R[:]...), s.S[:]...)
}

// Verify returns true if s is a signature of the SHA-256 digest of message
// by pub.
func (s *Signature) Verify(pub *PublicKey, message []byte) bool {
	h := sha256.Sum256(message)
	return ecdsa.Verify(pub.ECDSA(), h[:], s.R.int(), s.S.int())
}

// Sign signs the SHA-256 digest of message with k.
//
// It is meant for the host side of authenticated writes, where the host
// holds the write authority key.
func Sign(k *ecdsa.PrivateKey, message []byte) (Signature, error) {
	var sig Signature
	h := sha256.Sum256(message)
	r, s, err := ecdsa.Sign(rand.Reader, k, h[:])
	if err != nil {
		return sig, err
	}
	r.FillBytes(sig.R[:])
	s.FillBytes(sig.S[:])
	return sig, nil
}

// CertificateData is the message signed by an authority to certify a
// device public key.
type CertificateData [74]byte

// NewCertificateData returns the certificate message of the device rom
// holding pub.
func NewCertificateData(pub *PublicKey, rom onewire.RomID, man [2]byte) CertificateData {
	var c CertificateData
	copy(c[0:32], pub.X[:])
	copy(c[32:64], pub.Y[:])
	copy(c[64:72], rom[:])
	copy(c[72:74], man[:])
	return c
}

// PageAuthenticationData is the message signed by a device when
// authenticating a page. It is also the layout of the message of an
// authenticated write.
type PageAuthenticationData [75]byte

// NewPageAuthenticationData returns the message of the authentication of
// page pageNum holding data, with challenge.
//
// anonymous replaces the ROM-ID with 0xFF bytes, as the device does when
// told to compute an anonymous signature.
func NewPageAuthenticationData(rom onewire.RomID, data, challenge *[32]byte, pageNum int, man [2]byte, anonymous bool) PageAuthenticationData {
	var d PageAuthenticationData
	if anonymous {
		for i := 0; i < 8; i++ {
			d[i] = 0xff
		}
	} else {
		copy(d[0:8], rom[:])
	}
	copy(d[8:40], data[:])
	copy(d[40:72], challenge[:])
	d[72] = byte(pageNum)
	copy(d[73:75], man[:])
	return d
}

// NewWriteAuthenticationData returns the message to sign to replace
// oldData with newData in page pageNum.
func NewWriteAuthenticationData(rom onewire.RomID, oldData, newData *[32]byte, pageNum int, man [2]byte) PageAuthenticationData {
	d := NewPageAuthenticationData(rom, oldData, newData, pageNum, man, false)
	d[72] |= 0x80
	return d
}
