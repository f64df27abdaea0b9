// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds28c36 controls a DS28C36 DeepCover secure authenticator and its
// coprocessor sibling, the DS2476.
//
// Both are I²C devices; use runcommand.I2C at Addr or DS2476Addr to reach
// them. Commands writing the hash buffer only are sent with a nil response
// buffer.
//
// Datasheet
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/DS28C36.pdf
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/DS2476.pdf
package ds28c36

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"periph.io/x/conn/v3"

	"github.com/GermanBionicSystems/maximinterface/ecc256"
	"github.com/GermanBionicSystems/maximinterface/onewire"
	"github.com/GermanBionicSystems/maximinterface/runcommand"
)

// Default I²C addresses.
const (
	Addr       = 0x1b
	DS2476Addr = 0x3b
)

// MemoryPages is the number of memory pages.
const MemoryPages = 32

// UserPages is the number of general purpose pages, 0 to UserPages-1.
const UserPages = 16

// Special pages.
const (
	PublicKeyAXPage      = 16
	PublicKeyAYPage      = 17
	PublicKeyBXPage      = 18
	PublicKeyBYPage      = 19
	PublicKeyCXPage      = 20
	PublicKeyCYPage      = 21
	PrivateKeyAPage      = 22
	PrivateKeyBPage      = 23
	PrivateKeyCPage      = 24
	SecretAPage          = 25
	SecretBPage          = 26
	DecrementCounterPage = 27
	RomOptionsPage       = 28
	GpioControlPage      = 29
	PublicKeySXPage      = 30
	PublicKeySYPage      = 31
)

// MaxRngLen is the largest number of random bytes ReadRng returns at once.
const MaxRngLen = 64

// MaxHashBlock is the largest block accepted by ComputeMultiblockHash.
const MaxHashBlock = 64

// MaxBufferLen is the size of the hash buffer.
const MaxBufferLen = 80

// Page is a memory page, a challenge or an HMAC.
type Page [32]byte

// EncryptionChallenge is returned by EncryptedReadMemory along with the
// encrypted page.
type EncryptionChallenge [8]byte

// KeyNum selects an ECC key pair. KeyS is the scratch key loaded in
// PublicKeySXPage and PublicKeySYPage.
type KeyNum byte

const (
	KeyA KeyNum = 0
	KeyB KeyNum = 1
	KeyC KeyNum = 2
	KeyS KeyNum = 3
)

// SecretNum selects a SHA-256 secret. SecretS is the scratch secret.
type SecretNum byte

const (
	SecretA SecretNum = 0
	SecretB SecretNum = 1
	SecretS SecretNum = 2
)

// HashType tells VerifyEcdsaSignature where the signed hash comes from.
type HashType byte

const (
	// HashInBuffer uses the hash written with WriteBuffer.
	HashInBuffer HashType = 0
	// DataInBuffer hashes the data written with WriteBuffer.
	DataInBuffer HashType = 1
	// THash uses the result of ComputeMultiblockHash.
	THash HashType = 2
)

// PioState is the output state set by a successful VerifyEcdsaSignature.
type PioState byte

const (
	Unchanged PioState = iota
	Conducting
	HighImpedance
)

// PageProtection is the set of protections of a page. Protections can only
// be added.
type PageProtection byte

const (
	ReadProtection  PageProtection = 0x01
	WriteProtection PageProtection = 0x02
	EpromEmulation  PageProtection = 0x04
	// AuthHmac requires an HMAC for writes.
	AuthHmac PageProtection = 0x08
	// EncryptHmac encrypts reads and requires an HMAC for writes.
	EncryptHmac PageProtection = 0x10
	// Authentication requires an authenticated public key for reads.
	Authentication PageProtection = 0x20
	// EncryptEcdh encrypts with the shared ECDH key.
	EncryptEcdh PageProtection = 0x40
	// AuthEcdsa requires an ECDSA signature for writes.
	AuthEcdsa PageProtection = 0x80
)

// Has returns true if all the protections in f are set.
func (p PageProtection) Has(f PageProtection) bool {
	return p&f == f
}

func (p PageProtection) String() string {
	var out []string
	for _, f := range []struct {
		p    PageProtection
		name string
	}{
		{ReadProtection, "RP"},
		{WriteProtection, "WP"},
		{EpromEmulation, "EM"},
		{AuthHmac, "APH"},
		{EncryptHmac, "EPH"},
		{Authentication, "AUTH"},
		{EncryptEcdh, "ECH"},
		{AuthEcdsa, "ECW"},
	} {
		if p.Has(f.p) {
			out = append(out, f.name)
		}
	}
	if len(out) == 0 {
		return "none"
	}
	return strings.Join(out, "|")
}

// New returns a DS28C36 talking through f.
func New(f runcommand.Func) *Dev {
	return &Dev{run: f}
}

// Dev is a handle to a DS28C36.
type Dev struct {
	mu  sync.Mutex
	run runcommand.Func
}

func (d *Dev) String() string {
	return "DS28C36"
}

// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	return nil
}

// WriteMemory writes a memory page.
func (d *Dev) WriteMemory(page int, data *Page) error {
	if err := checkPage(page); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.command(append([]byte{cmdWriteMemory, byte(page)}, data[:]...), writeMemoryTime, 1)
	return err
}

// ReadMemory reads a memory page.
func (d *Dev) ReadMemory(page int) (Page, error) {
	var p Page
	if err := checkPage(page); err != nil {
		return p, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	resp, err := d.command([]byte{cmdReadMemory, byte(page)}, readMemoryTime, 1+len(p))
	if err != nil {
		return p, err
	}
	copy(p[:], resp)
	return p, nil
}

// WriteBuffer loads data in the hash buffer, replacing its content.
func (d *Dev) WriteBuffer(data []byte) error {
	if len(data) < 1 || len(data) > MaxBufferLen {
		return onewire.NewError(category, onewire.OutOfRange, fmt.Sprintf("buffer of %d bytes", len(data)))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.run(append([]byte{cmdWriteBuffer}, data...), 0, nil)
	return err
}

// ReadBuffer returns the content of the hash buffer.
func (d *Dev) ReadBuffer() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	resp, err := d.run([]byte{cmdReadBuffer}, 0, make([]byte, MaxBufferLen))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ReadPageProtection returns the protections of a page.
func (d *Dev) ReadPageProtection(page int) (PageProtection, error) {
	if err := checkPage(page); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	resp, err := d.raw([]byte{cmdReadPageProtection, byte(page)}, readMemoryTime, 1)
	if err != nil {
		return 0, err
	}
	return PageProtection(resp[0]), nil
}

// SetPageProtection adds protections to a page.
func (d *Dev) SetPageProtection(page int, p PageProtection) error {
	if err := checkPage(page); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.command([]byte{cmdSetPageProtection, byte(page), byte(p)}, writeMemoryTime, 1)
	return err
}

// DecrementCounter decrements the counter in DecrementCounterPage.
func (d *Dev) DecrementCounter() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.command([]byte{cmdDecrementCounter}, writeMemoryTime, 1)
	return err
}

// ReadRng fills data with random bytes. len(data) must be 1 to MaxRngLen.
func (d *Dev) ReadRng(data []byte) error {
	if len(data) < 1 || len(data) > MaxRngLen {
		return onewire.NewError(category, onewire.OutOfRange, fmt.Sprintf("%d random bytes", len(data)))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	resp, err := d.raw([]byte{cmdReadRng, byte(len(data) - 1)}, sha256Time, len(data))
	if err != nil {
		return err
	}
	copy(data, resp)
	return nil
}

// EncryptedReadMemory reads a page encrypted with secret. The returned
// challenge seeds the decryption HMAC, see NewEncryptionHmacData.
func (d *Dev) EncryptedReadMemory(page int, secret SecretNum) (EncryptionChallenge, Page, error) {
	var c EncryptionChallenge
	var p Page
	if err := checkPage(page); err != nil {
		return c, p, err
	}
	if err := checkSecret(secret); err != nil {
		return c, p, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	resp, err := d.command([]byte{cmdEncryptedReadMemory, byte(secret)<<6 | byte(page)}, readMemoryTime+sha256Time, 1+len(c)+len(p))
	if err != nil {
		return c, p, err
	}
	copy(c[:], resp)
	copy(p[:], resp[len(c):])
	return c, p, nil
}

// ComputeAndReadPageAuthentication returns the signature of a page with key,
// which must not be KeyS.
//
// The challenge is the content of the hash buffer; the signed message is
// ecc256.NewPageAuthenticationData of the page.
func (d *Dev) ComputeAndReadPageAuthentication(page int, key KeyNum) (ecc256.Signature, error) {
	var sig ecc256.Signature
	if err := checkPage(page); err != nil {
		return sig, err
	}
	if key > KeyC {
		return sig, onewire.NewError(category, onewire.InvalidParameter, fmt.Sprintf("key %d", key))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	resp, err := d.command([]byte{cmdComputePageAuthentication, (byte(key)+authEcdsa)<<5 | byte(page)}, readMemoryTime+generateEcdsaSignatureTime, 1+64)
	if err != nil {
		return sig, err
	}
	copy(sig.S[:], resp[:32])
	copy(sig.R[:], resp[32:])
	return sig, nil
}

// ComputeAndReadPageHmac returns the HMAC of a page with secret.
func (d *Dev) ComputeAndReadPageHmac(page int, secret SecretNum) (Page, error) {
	var h Page
	if err := checkPage(page); err != nil {
		return h, err
	}
	if err := checkSecret(secret); err != nil {
		return h, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	resp, err := d.command([]byte{cmdComputePageAuthentication, byte(secret)<<5 | byte(page)}, readMemoryTime+sha256Time, 1+len(h))
	if err != nil {
		return h, err
	}
	copy(h[:], resp)
	return h, nil
}

// AuthenticatedSha2WriteMemory writes a page protected with AuthHmac. The
// HMAC of the write must be in the hash buffer.
func (d *Dev) AuthenticatedSha2WriteMemory(page int, secret SecretNum, data *Page) error {
	if err := checkPage(page); err != nil {
		return err
	}
	if err := checkSecret(secret); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.command(append([]byte{cmdAuthenticatedSha2WriteMemory, byte(secret)<<6 | byte(page)}, data[:]...), writeMemoryTime+2*sha256Time, 1)
	return err
}

// ComputeAndLockSha2Secret computes secret dest from master and the binding
// data of user page. writeProtect write protects dest afterward.
func (d *Dev) ComputeAndLockSha2Secret(page int, master, dest SecretNum, writeProtect bool) error {
	if page < 0 || page >= UserPages {
		return onewire.NewError(category, onewire.OutOfRange, fmt.Sprintf("page %d", page))
	}
	if err := checkSecret(master); err != nil {
		return err
	}
	if err := checkSecret(dest); err != nil {
		return err
	}
	req := []byte{cmdComputeAndLockSha2Secret, byte(dest)<<6 | byte(master)<<4 | byte(page), 0x00}
	delay := sha256Time + writeMemoryTime
	if writeProtect {
		req[2] = 0x80
		delay += writeMemoryTime
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.command(req, delay, 1)
	return err
}

// GenerateEcc256KeyPair generates a new key pair in key, which must not be
// KeyS. writeProtect write protects the key afterward.
func (d *Dev) GenerateEcc256KeyPair(key KeyNum, writeProtect bool) error {
	if key > KeyC {
		return onewire.NewError(category, onewire.InvalidParameter, fmt.Sprintf("key %d", key))
	}
	b := byte(key)
	if writeProtect {
		b |= 0x80
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.command([]byte{cmdGenerateEcc256KeyPair, b}, generateEccKeyPairTime, 1)
	return err
}

// ComputeMultiblockHash feeds one block of 1 to MaxHashBlock bytes to the
// SHA-256 engine. The result is used with the THash hash type.
func (d *Dev) ComputeMultiblockHash(first, last bool, data []byte) error {
	if len(data) < 1 || len(data) > MaxHashBlock {
		return onewire.NewError(category, onewire.OutOfRange, fmt.Sprintf("block of %d bytes", len(data)))
	}
	var b byte
	if first {
		b |= 0x40
	}
	if last {
		b |= 0x80
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.command(append([]byte{cmdComputeMultiblockHash, b}, data...), sha256Time, 1)
	return err
}

// VerifyEcdsaSignature verifies sig with the public key of key. On success
// the PIOA and PIOB outputs are set to pioa and piob.
func (d *Dev) VerifyEcdsaSignature(key KeyNum, h HashType, sig *ecc256.Signature, pioa, piob PioState) error {
	if key > KeyS {
		return onewire.NewError(category, onewire.InvalidParameter, fmt.Sprintf("key %d", key))
	}
	if h > THash {
		return onewire.NewError(category, onewire.InvalidParameter, fmt.Sprintf("hash type %d", h))
	}
	b := byte(key) | byte(h)<<2
	if pioa != Unchanged {
		b |= 0x20
	}
	if pioa == Conducting {
		b |= 0x10
	}
	if piob != Unchanged {
		b |= 0x80
	}
	if piob == Conducting {
		b |= 0x40
	}
	delay := verifyEcdsaTime
	if h == DataInBuffer {
		delay += sha256Time
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.command(append([]byte{cmdVerifyEcdsaSignature, b}, sig.Bytes()...), delay, 1)
	return err
}

// AuthenticateEcdsaPublicKey verifies the certificate of the public key in
// PublicKeySXPage and PublicKeySYPage, signed by key A or B, with the
// certificate customization at csOffset (0 to 31) in the hash buffer.
//
// authWrites authorizes the key for authenticated writes; ecdh computes the
// shared ECDH key.
func (d *Dev) AuthenticateEcdsaPublicKey(authWrites, ecdh bool, key KeyNum, csOffset int, sig *ecc256.Signature) error {
	if key != KeyA && key != KeyB {
		return onewire.NewError(category, onewire.InvalidParameter, fmt.Sprintf("key %d", key))
	}
	if csOffset < 0 || csOffset > 31 {
		return onewire.NewError(category, onewire.OutOfRange, fmt.Sprintf("offset %d", csOffset))
	}
	b := byte(csOffset)<<3 | byte(key)<<2
	delay := verifyEcdsaTime
	if ecdh {
		b |= 0x02
		delay *= 2
	}
	if authWrites {
		b |= 0x01
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.command(append([]byte{cmdAuthenticateEcdsaPublicKey, b}, sig.Bytes()...), delay, 1)
	return err
}

// AuthenticatedEcdsaWriteMemory writes a page protected with AuthEcdsa. The
// signature of the write must be in the hash buffer.
func (d *Dev) AuthenticatedEcdsaWriteMemory(page int, data *Page) error {
	if err := checkPage(page); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.command(append([]byte{cmdAuthenticatedEcdsaWriteMemory, byte(page)}, data[:]...), verifyEcdsaTime+writeMemoryTime+sha256Time, 1)
	return err
}

// ComputeHash feeds data to ComputeMultiblockHash in blocks.
func (d *Dev) ComputeHash(data []byte) error {
	if len(data) == 0 {
		return onewire.NewError(category, onewire.OutOfRange, "no data")
	}
	for i := 0; i < len(data); i += MaxHashBlock {
		end := i + MaxHashBlock
		if end > len(data) {
			end = len(data)
		}
		if err := d.ComputeMultiblockHash(i == 0, end == len(data), data[i:end]); err != nil {
			return err
		}
	}
	return nil
}

// VerifySignature hashes data and verifies sig with pub, which is loaded in
// the scratch key KeyS.
func (d *Dev) VerifySignature(pub *ecc256.PublicKey, data []byte, sig *ecc256.Signature, pioa, piob PioState) error {
	x, y := Page(pub.X), Page(pub.Y)
	if err := d.WriteMemory(PublicKeySXPage, &x); err != nil {
		return err
	}
	if err := d.WriteMemory(PublicKeySYPage, &y); err != nil {
		return err
	}
	if err := d.ComputeHash(data); err != nil {
		return err
	}
	return d.VerifyEcdsaSignature(KeyS, THash, sig, pioa, piob)
}

// NewDS2476 returns a DS2476 coprocessor talking through f.
func NewDS2476(f runcommand.Func) *DS2476 {
	return &DS2476{Dev: Dev{run: f}}
}

// DS2476 is a handle to a DS2476 coprocessor. It has the DS28C36 commands
// plus signature and HMAC generation.
type DS2476 struct {
	Dev
}

func (d *DS2476) String() string {
	return "DS2476"
}

// GenerateEcdsaSignature signs the hash buffer with key, which must not be
// KeyS.
func (d *DS2476) GenerateEcdsaSignature(key KeyNum) (ecc256.Signature, error) {
	var sig ecc256.Signature
	if key > KeyC {
		return sig, onewire.NewError(category, onewire.InvalidParameter, fmt.Sprintf("key %d", key))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	resp, err := d.command([]byte{cmdGenerateEcdsaSignature, byte(key)}, generateEcdsaSignatureTime, 1+64)
	if err != nil {
		return sig, err
	}
	copy(sig.S[:], resp[:32])
	copy(sig.R[:], resp[32:])
	return sig, nil
}

// ComputeSha2UniqueSecret computes the scratch secret from master and the
// content of the hash buffer.
func (d *DS2476) ComputeSha2UniqueSecret(master SecretNum) error {
	if err := checkSecret(master); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.command([]byte{cmdComputeSha2UniqueSecret, byte(master) << 4}, sha256Time, 1)
	return err
}

// ComputeSha2Hmac returns the HMAC of the hash buffer with the scratch
// secret.
func (d *DS2476) ComputeSha2Hmac() (Page, error) {
	var h Page
	d.mu.Lock()
	defer d.mu.Unlock()
	resp, err := d.command([]byte{cmdComputeSha2Hmac}, sha256Time, 1+len(h))
	if err != nil {
		return h, err
	}
	copy(h[:], resp)
	return h, nil
}

// EnableCoprocessor sets PIOA conducting, which enables the coprocessor
// functions.
func (d *DS2476) EnableCoprocessor() error {
	p, err := d.ReadMemory(GpioControlPage)
	if err != nil {
		return err
	}
	g := GpioControl{&p}
	if g.PioaConducting() {
		return nil
	}
	g.SetPioaConducting(true)
	return d.WriteMemory(GpioControlPage, &p)
}

// EnableRomID makes the ROM-ID readable in RomOptionsPage.
func (d *DS2476) EnableRomID() error {
	p, err := d.ReadMemory(RomOptionsPage)
	if err != nil {
		return err
	}
	o := RomOptions{&p}
	if o.RomBlockDisable() {
		return nil
	}
	o.SetRomBlockDisable(true)
	return d.WriteMemory(RomOptionsPage, &p)
}

// RomOptions decodes RomOptionsPage.
type RomOptions struct {
	Page *Page
}

// RomBlockDisable returns true when the ROM-ID is readable.
func (o RomOptions) RomBlockDisable() bool { return o.Page[0] == enabled }

func (o RomOptions) SetRomBlockDisable(v bool) { o.Page[0] = flag(v, 0) }

// Anonymous returns true when the device replaces its ROM-ID with 0xFF
// bytes in the authentication messages.
func (o RomOptions) Anonymous() bool { return o.Page[1] == enabled }

func (o RomOptions) SetAnonymous(v bool) { o.Page[1] = flag(v, 0) }

func (o RomOptions) ManID() [2]byte { return [2]byte{o.Page[22], o.Page[23]} }

func (o RomOptions) RomID() onewire.RomID {
	var r onewire.RomID
	copy(r[:], o.Page[24:32])
	return r
}

// GpioControl decodes GpioControlPage.
type GpioControl struct {
	Page *Page
}

func (g GpioControl) PioaConducting() bool { return g.Page[0] == enabled }

func (g GpioControl) SetPioaConducting(v bool) { g.Page[0] = flag(v, 0x55) }

func (g GpioControl) PiobConducting() bool { return g.Page[1] == enabled }

func (g GpioControl) SetPiobConducting(v bool) { g.Page[1] = flag(v, 0x55) }

// PioaLevel returns the input level of PIOA.
func (g GpioControl) PioaLevel() bool { return g.Page[2] == 0x55 }

func (g GpioControl) PiobLevel() bool { return g.Page[3] == 0x55 }

// NewWriteAuthenticationData returns the message to sign or HMAC to replace
// oldData with newData in page pageNum.
func NewWriteAuthenticationData(rom onewire.RomID, oldData, newData *Page, pageNum int, man [2]byte) ecc256.PageAuthenticationData {
	return ecc256.NewPageAuthenticationData(rom, (*[32]byte)(oldData), (*[32]byte)(newData), pageNum, man, false)
}

// NewComputeSecretData returns the message hashed by ComputeAndLockSha2Secret
// with the binding data of page pageNum and partial.
func NewComputeSecretData(rom onewire.RomID, binding, partial *Page, pageNum int, man [2]byte) ecc256.PageAuthenticationData {
	return ecc256.NewPageAuthenticationData(rom, (*[32]byte)(binding), (*[32]byte)(partial), pageNum, man, false)
}

// EncryptionHmacData is the message of the HMAC encrypting a page.
type EncryptionHmacData [19]byte

// NewEncryptionHmacData returns the HMAC message of an encrypted read or
// write of page pageNum.
func NewEncryptionHmacData(c *EncryptionChallenge, rom onewire.RomID, pageNum int, man [2]byte, anonymous bool) EncryptionHmacData {
	var d EncryptionHmacData
	copy(d[0:8], c[:])
	if anonymous {
		for i := 8; i < 16; i++ {
			d[i] = 0xff
		}
	} else {
		copy(d[8:16], rom[:])
	}
	d[16] = byte(pageNum)
	copy(d[17:19], man[:])
	return d
}

//

const category = "ds28c36"

const (
	cmdWriteMemory                   = 0x96
	cmdReadMemory                    = 0x69
	cmdWriteBuffer                   = 0x87
	cmdReadBuffer                    = 0x5a
	cmdReadPageProtection            = 0xaa
	cmdSetPageProtection             = 0xc3
	cmdDecrementCounter              = 0xc9
	cmdReadRng                       = 0xd2
	cmdEncryptedReadMemory           = 0x4b
	cmdComputePageAuthentication     = 0xa5
	cmdAuthenticatedSha2WriteMemory  = 0x99
	cmdComputeAndLockSha2Secret      = 0x3c
	cmdGenerateEcc256KeyPair         = 0xcb
	cmdComputeMultiblockHash         = 0x33
	cmdVerifyEcdsaSignature          = 0x59
	cmdAuthenticateEcdsaPublicKey    = 0xa8
	cmdAuthenticatedEcdsaWriteMemory = 0x89
	cmdGenerateEcdsaSignature        = 0x1e
	cmdComputeSha2UniqueSecret       = 0x55
	cmdComputeSha2Hmac               = 0x2d

	// authEcdsa is added to the key number in the authentication type.
	authEcdsa = 3
	enabled   = 0xaa
)

const (
	readMemoryTime             = 2 * time.Millisecond
	writeMemoryTime            = 15 * time.Millisecond
	sha256Time                 = 3 * time.Millisecond
	generateEcdsaSignatureTime = 50 * time.Millisecond
	generateEccKeyPairTime     = 100 * time.Millisecond
	verifyEcdsaTime            = 150 * time.Millisecond
)

func (d *Dev) command(req []byte, delay time.Duration, size int) ([]byte, error) {
	return runcommand.Run(d.run, category, req, delay, size)
}

// raw runs a command whose response has no result byte.
func (d *Dev) raw(req []byte, delay time.Duration, size int) ([]byte, error) {
	resp, err := d.run(req, delay, make([]byte, size))
	if err != nil {
		return nil, err
	}
	if len(resp) != size {
		return nil, onewire.NewError(category, onewire.InvalidResponse, fmt.Sprintf("got %d bytes, expected %d", len(resp), size))
	}
	return resp, nil
}

func flag(v bool, off byte) byte {
	if v {
		return enabled
	}
	return off
}

func checkPage(page int) error {
	if page < 0 || page >= MemoryPages {
		return onewire.NewError(category, onewire.OutOfRange, fmt.Sprintf("page %d", page))
	}
	return nil
}

func checkSecret(s SecretNum) error {
	if s > SecretS {
		return onewire.NewError(category, onewire.InvalidParameter, fmt.Sprintf("secret %d", s))
	}
	return nil
}

var _ conn.Resource = &Dev{}
var _ conn.Resource = &DS2476{}
