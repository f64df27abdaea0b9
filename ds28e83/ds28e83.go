// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds28e83 controls the DS28E83 and DS28E84 radiation resistant
// ECDSA and SHA-256 authenticators.
//
// Use runcommand.OneWire to reach them.
//
// Datasheet
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/DS28E83.pdf
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/DS28E84.pdf
package ds28e83

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

// Variant selects the memory size and the commands of a die.
type Variant int

const (
	DS28E83 Variant = iota
	DS28E84
)

func (v Variant) String() string {
	switch v {
	case DS28E83:
		return "DS28E83"
	case DS28E84:
		return "DS28E84"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// MemoryPages returns the number of memory pages.
func (v Variant) MemoryPages() int {
	if v == DS28E84 {
		return 107
	}
	return 44
}

// ProtectionBlocks returns the number of protection blocks.
func (v Variant) ProtectionBlocks() int {
	if v == DS28E84 {
		return 24
	}
	return 9
}

// Special pages.
const (
	PublicKeyAXPage          = 28
	PublicKeyAYPage          = 29
	PublicKeyBXPage          = 30
	PublicKeyBYPage          = 31
	AuthorityPublicKeyAXPage = 32
	AuthorityPublicKeyAYPage = 33
	AuthorityPublicKeyBXPage = 34
	AuthorityPublicKeyBYPage = 35
	PrivateKeyAPage          = 36
	PrivateKeyBPage          = 37
	SecretAPage              = 38
	SecretBPage              = 39
	RomOptionsPage           = 40
	GpioControlPage          = 41
	PublicKeySXPage          = 42
	PublicKeySYPage          = 43

	// DS28E84 only.
	PublicKeySXBackupPage = 104
	PublicKeySYBackupPage = 105
	DecrementCounterPage  = 106
)

const (
	// MaxRngLen is the largest number of random bytes ReadRng returns at
	// once.
	MaxRngLen = 64
	// MaxHashBlock is the largest block accepted by ComputeMultiblockHash.
	MaxHashBlock = 64
	// MaxVerifyBuffer is the largest data or hash passed to
	// VerifyEcdsaSignature.
	MaxVerifyBuffer = 61
	// MaxCertCustomizationLen and MaxEcdhCustomizationLen bound the
	// customizations of AuthenticateEcdsaPublicKey; together they may not
	// exceed MaxCustomizationLen.
	MaxCertCustomizationLen = 32
	MaxEcdhCustomizationLen = 48
	MaxCustomizationLen     = 60
)

// Page is a memory page, a challenge or an HMAC.
type Page [32]byte

// EncryptionChallenge is returned by EncryptedReadMemory and sent with the
// encrypted authenticated writes.
type EncryptionChallenge [8]byte

// KeySecret selects a key pair or a secret. KeySecretS is the scratch one.
type KeySecret byte

const (
	KeySecretA KeySecret = 0
	KeySecretB KeySecret = 1
	KeySecretS KeySecret = 2
)

func (k KeySecret) String() string {
	switch k {
	case KeySecretA:
		return "A"
	case KeySecretB:
		return "B"
	case KeySecretS:
		return "S"
	default:
		return fmt.Sprintf("KeySecret(%d)", byte(k))
	}
}

// HashType tells VerifyEcdsaSignature what follows the signature.
type HashType byte

const (
	HashInput HashType = 0
	DataInput HashType = 1
	// THash uses the result of ComputeMultiblockHash.
	THash HashType = 2
)

// GpioState is the output state set by a successful VerifyEcdsaSignature.
type GpioState byte

const (
	Unchanged GpioState = iota
	Conducting
	HighImpedance
)

// BlockProtection is the set of protections of a block.
type BlockProtection byte

const (
	ReadProtection  BlockProtection = 0x01
	WriteProtection BlockProtection = 0x02
	EpromEmulation  BlockProtection = 0x04
	// AuthHmac requires an HMAC for writes.
	AuthHmac BlockProtection = 0x08
	// EncryptHmac encrypts reads and requires an HMAC for writes.
	EncryptHmac BlockProtection = 0x10
	// EncryptEcdh encrypts with the shared ECDH key.
	EncryptEcdh BlockProtection = 0x40
	// AuthEcdsa requires an ECDSA signature for writes.
	AuthEcdsa BlockProtection = 0x80
)

// Has returns true if all the protections in f are set.
func (p BlockProtection) Has(f BlockProtection) bool {
	return p&f == f
}

func (p BlockProtection) String() string {
	var out []string
	for _, f := range []struct {
		p    BlockProtection
		name string
	}{
		{ReadProtection, "RP"},
		{WriteProtection, "WP"},
		{EpromEmulation, "EM"},
		{AuthHmac, "APH"},
		{EncryptHmac, "EPH"},
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

// BlockStatus is the result of ReadBlockProtection.
type BlockStatus struct {
	// HasKey is false when no key or secret is bound to the block.
	HasKey     bool
	Key        KeySecret
	Protection BlockProtection
}

// New returns a device of variant v talking through f.
func New(f runcommand.Func, v Variant) (*Dev, error) {
	if v != DS28E83 && v != DS28E84 {
		return nil, fmt.Errorf("ds28e83: invalid variant %d", int(v))
	}
	return &Dev{run: f, variant: v}, nil
}

// Dev is a handle to a DS28E83 or DS28E84.
type Dev struct {
	mu      sync.Mutex
	run     runcommand.Func
	variant Variant
}

func (d *Dev) String() string {
	return d.variant.String()
}

// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	return nil
}

// Variant returns the die variant.
func (d *Dev) Variant() Variant {
	return d.variant
}

// WriteMemory writes a memory page.
func (d *Dev) WriteMemory(page int, data *Page) error {
	if err := d.checkPage(page); err != nil {
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
	if err := d.checkPage(page); err != nil {
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

// EncryptedReadMemory reads a page encrypted with secret. The returned
// challenge seeds the decryption HMAC, see NewDecryptionHmacData.
func (d *Dev) EncryptedReadMemory(page int, secret KeySecret) (EncryptionChallenge, Page, error) {
	var c EncryptionChallenge
	var p Page
	if err := d.checkPage(page); err != nil {
		return c, p, err
	}
	if err := checkKey(secret, true); err != nil {
		return c, p, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	resp, err := d.command([]byte{cmdEncryptedReadMemory, byte(page), byte(secret)}, readMemoryTime+computeTime, 1+len(c)+len(p))
	if err != nil {
		return c, p, err
	}
	copy(c[:], resp)
	copy(p[:], resp[len(c):])
	return c, p, nil
}

// ReadBlockProtection returns the protections of a block and the key bound
// to it.
func (d *Dev) ReadBlockProtection(block int) (BlockStatus, error) {
	var s BlockStatus
	if err := d.checkBlock(block); err != nil {
		return s, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	resp, err := d.command([]byte{cmdReadBlockProtection, byte(block)}, readMemoryTime, 3)
	if err != nil {
		return s, err
	}
	if int(resp[0]&0x3f) != block {
		return s, onewire.NewError(category, onewire.InvalidResponse, fmt.Sprintf("block %d, expected %d", resp[0]&0x3f, block))
	}
	switch resp[0] >> 6 {
	case 0:
	case 1:
		s.HasKey, s.Key = true, KeySecretA
	case 2:
		s.HasKey, s.Key = true, KeySecretB
	default:
		return s, onewire.NewError(category, onewire.InvalidResponse, "key secret S")
	}
	if resp[1]&0x20 != 0 {
		return s, onewire.NewError(category, onewire.InvalidResponse, fmt.Sprintf("protection %#02x", resp[1]))
	}
	s.Protection = BlockProtection(resp[1])
	return s, nil
}

// SetBlockProtection adds protections to a block, binding key A or B to it.
func (d *Dev) SetBlockProtection(block int, key KeySecret, p BlockProtection) error {
	if err := d.checkBlock(block); err != nil {
		return err
	}
	if err := checkKey(key, false); err != nil {
		return err
	}
	b := byte(0x40)
	if key == KeySecretB {
		b = 0x80
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.command([]byte{cmdSetBlockProtection, b | byte(block), byte(p)}, writeStateTime, 1)
	return err
}

// ComputeAndReadEcdsaPageAuthentication returns the signature of a page
// with key A or B.
//
// The signed message is ecc256.NewPageAuthenticationData of the page.
func (d *Dev) ComputeAndReadEcdsaPageAuthentication(page int, key KeySecret, challenge *Page) (ecc256.Signature, error) {
	var sig ecc256.Signature
	if err := d.checkPage(page); err != nil {
		return sig, err
	}
	if err := checkKey(key, false); err != nil {
		return sig, err
	}
	req := append([]byte{cmdComputePageAuthentication, byte(page), byte(key) + authEcdsa}, challenge[:]...)
	d.mu.Lock()
	defer d.mu.Unlock()
	resp, err := d.command(req, generateEcdsaSignatureTime, 1+64)
	if err != nil {
		return sig, err
	}
	copy(sig.S[:], resp[:32])
	copy(sig.R[:], resp[32:])
	return sig, nil
}

// ComputeAndReadSha256PageAuthentication returns the HMAC of a page with
// secret.
func (d *Dev) ComputeAndReadSha256PageAuthentication(page int, secret KeySecret, challenge *Page) (Page, error) {
	var h Page
	if err := d.checkPage(page); err != nil {
		return h, err
	}
	if err := checkKey(secret, true); err != nil {
		return h, err
	}
	req := append([]byte{cmdComputePageAuthentication, byte(page), byte(secret)}, challenge[:]...)
	d.mu.Lock()
	defer d.mu.Unlock()
	resp, err := d.command(req, computeTime, 1+len(h))
	if err != nil {
		return h, err
	}
	copy(h[:], resp)
	return h, nil
}

// ComputeMultiblockHash feeds one block of 1 to MaxHashBlock bytes to the
// SHA-256 engine.
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
	_, err := d.command(append([]byte{cmdComputeMultiblockHash, b}, data...), computeTime, 1)
	return err
}

// VerifyEcdsaSignature verifies sig with key, or with the authority key of
// A or B when authority is set. buf is the signed data for DataInput, its
// hash for HashInput and empty for THash. On success the GPIO is set to g.
func (d *Dev) VerifyEcdsaSignature(key KeySecret, authority bool, h HashType, g GpioState, sig *ecc256.Signature, buf []byte) error {
	if len(buf) > MaxVerifyBuffer {
		return onewire.NewError(category, onewire.OutOfRange, fmt.Sprintf("buffer of %d bytes", len(buf)))
	}
	if h > THash {
		return onewire.NewError(category, onewire.InvalidParameter, fmt.Sprintf("hash type %d", h))
	}
	var b byte
	switch {
	case key == KeySecretA || key == KeySecretB:
		b = byte(key)
		if authority {
			b |= 0x02
		}
	case key == KeySecretS && !authority:
		b = 0x04
	default:
		return onewire.NewError(category, onewire.InvalidParameter, fmt.Sprintf("key %s", key))
	}
	b |= byte(h) << 3
	if g != Unchanged {
		b |= 0x40
	}
	if g == Conducting {
		b |= 0x20
	}
	req := append([]byte{cmdVerifyEcdsaSignature, b}, sig.Bytes()...)
	req = append(req, buf...)
	delay := verifyEcdsaTime
	if h == DataInput {
		delay += computeTime
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.command(req, delay, 1)
	return err
}

// AuthenticateEcdsaPublicKey verifies the certificate of the public key in
// PublicKeySXPage and PublicKeySYPage, signed by the authority of key A or
// B, followed by certCust.
//
// authWrites authorizes the key for authenticated writes. A non nil
// ecdhCust also computes the shared ECDH key.
func (d *Dev) AuthenticateEcdsaPublicKey(key KeySecret, authWrites bool, cert *ecc256.Signature, certCust, ecdhCust []byte) error {
	if err := checkKey(key, false); err != nil {
		return err
	}
	if len(certCust) < 1 || len(certCust) > MaxCertCustomizationLen {
		return onewire.NewError(category, onewire.OutOfRange, fmt.Sprintf("certificate customization of %d bytes", len(certCust)))
	}
	b := byte(len(certCust)-1)<<3 | byte(key)<<2
	if authWrites {
		b |= 0x01
	}
	req := append([]byte{cmdAuthenticateEcdsaPublicKey, 0}, cert.Bytes()...)
	req = append(req, certCust...)
	delay := verifyEcdsaTime
	if ecdhCust != nil {
		if len(ecdhCust) < 1 || len(ecdhCust) > MaxEcdhCustomizationLen || len(certCust)+len(ecdhCust) > MaxCustomizationLen {
			return onewire.NewError(category, onewire.OutOfRange, fmt.Sprintf("ECDH customization of %d bytes", len(ecdhCust)))
		}
		b |= 0x02
		req = append(req, make([]byte, MaxCertCustomizationLen-len(certCust))...)
		req = append(req, ecdhCust...)
		delay += verifyEcdsaTime
	}
	req[1] = b
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.command(req, delay, 1)
	return err
}

// AuthenticatedEcdsaWriteMemory writes a page protected with AuthEcdsa.
//
// sig signs ecc256.NewWriteAuthenticationData of the write, with the
// authenticated scratch key when useKeyS is set. A non nil challenge
// encrypts data.
func (d *Dev) AuthenticatedEcdsaWriteMemory(page int, useKeyS bool, data *Page, sig *ecc256.Signature, challenge *EncryptionChallenge) error {
	if err := d.checkPage(page); err != nil {
		return err
	}
	p := byte(page)
	if useKeyS {
		p |= 0x80
	}
	req := append([]byte{cmdAuthenticatedEcdsaWriteMemory, p}, data[:]...)
	req = append(req, sig.Bytes()...)
	delay := verifyEcdsaTime + writeMemoryTime
	if challenge != nil {
		req = append(req, challenge[:]...)
		delay += computeTime
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.command(req, delay, 1)
	return err
}

// AuthenticatedSha256WriteMemory writes a page protected with AuthHmac.
//
// hmac is computed with the scratch secret when useSecretS is set. A non
// nil challenge encrypts data.
func (d *Dev) AuthenticatedSha256WriteMemory(page int, useSecretS bool, data, hmac *Page, challenge *EncryptionChallenge) error {
	if err := d.checkPage(page); err != nil {
		return err
	}
	var s byte
	if useSecretS {
		s = byte(KeySecretS)
	}
	req := append([]byte{cmdAuthenticatedSha256WriteMemory, byte(page), s}, data[:]...)
	req = append(req, hmac[:]...)
	delay := writeMemoryTime + computeTime
	if challenge != nil {
		req = append(req, challenge[:]...)
		delay += computeTime
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.command(req, delay, 1)
	return err
}

// ComputeAndWriteSha256Secret computes secret dest from master, the binding
// data of page and partial. See NewComputeSecretData.
func (d *Dev) ComputeAndWriteSha256Secret(page int, master, dest KeySecret, partial *Page) error {
	if err := d.checkPage(page); err != nil {
		return err
	}
	if err := checkKey(master, true); err != nil {
		return err
	}
	if err := checkKey(dest, true); err != nil {
		return err
	}
	req := append([]byte{cmdComputeAndWriteSha256Secret, byte(page), byte(dest)<<2 | byte(master)}, partial[:]...)
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.command(req, writeMemoryTime+computeTime, 1)
	return err
}

// GenerateEcc256KeyPair generates a new key pair A or B.
func (d *Dev) GenerateEcc256KeyPair(key KeySecret) error {
	if err := checkKey(key, false); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.command([]byte{cmdGenerateEcc256KeyPair, byte(key)}, generateEccKeyPairTime, 1)
	return err
}

// ReadRng fills data with random bytes. len(data) must be 1 to MaxRngLen.
func (d *Dev) ReadRng(data []byte) error {
	if len(data) < 1 || len(data) > MaxRngLen {
		return onewire.NewError(category, onewire.OutOfRange, fmt.Sprintf("%d random bytes", len(data)))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	resp, err := d.command([]byte{cmdReadRng, byte(len(data) - 1)}, trngGenerationTime, 1+len(data))
	if err != nil {
		return err
	}
	copy(data, resp)
	return nil
}

// EntropyHealthTest runs the on demand health test of the random number
// generator. It fails when the entropy source is unhealthy.
func (d *Dev) EntropyHealthTest() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.command([]byte{cmdReadRng, 0x80}, trngOnDemandCheckTime, 1)
	return err
}

// DecrementCounter decrements the counter in DecrementCounterPage.
//
// DS28E84 only.
func (d *Dev) DecrementCounter() error {
	if err := d.checkDS28E84("decrement counter"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.command([]byte{cmdDecrementCounter}, writeMemoryTime, 1)
	return err
}

// BackupState saves the scratch public key to PublicKeySXBackupPage and
// PublicKeySYBackupPage.
//
// DS28E84 only.
func (d *Dev) BackupState() error {
	return d.deviceStateControl(1)
}

// RestoreState loads the scratch public key back from its backup.
//
// DS28E84 only.
func (d *Dev) RestoreState() error {
	return d.deviceStateControl(0)
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

// RomOptions decodes RomOptionsPage.
type RomOptions struct {
	Page *Page
}

// Anonymous returns true when the device replaces its ROM-ID with 0xFF
// bytes in the authentication messages.
func (o RomOptions) Anonymous() bool { return o.Page[1] == enabled }

func (o RomOptions) SetAnonymous(v bool) {
	o.Page[1] = 0
	if v {
		o.Page[1] = enabled
	}
}

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

func (g GpioControl) Conducting() bool { return g.Page[0] == enabled }

func (g GpioControl) SetConducting(v bool) {
	g.Page[0] = 0x55
	if v {
		g.Page[0] = enabled
	}
}

// Level returns the input level of the GPIO.
func (g GpioControl) Level() bool { return g.Page[2] == 0x55 }

// NewComputeSecretData returns the message hashed by
// ComputeAndWriteSha256Secret with the binding data of page pageNum and
// partial.
func NewComputeSecretData(rom onewire.RomID, binding, partial *Page, pageNum int, man [2]byte) ecc256.PageAuthenticationData {
	man[1] |= 0x80
	return ecc256.NewPageAuthenticationData(rom, (*[32]byte)(binding), (*[32]byte)(partial), pageNum, man, false)
}

// HmacData is the message of the HMAC encrypting a page.
type HmacData [19]byte

// NewDecryptionHmacData returns the HMAC message of EncryptedReadMemory of
// page pageNum.
func NewDecryptionHmacData(c *EncryptionChallenge, rom onewire.RomID, pageNum int, man [2]byte, anonymous bool) HmacData {
	var d HmacData
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

// NewEncryptionHmacData returns the HMAC message of an encrypted
// authenticated write of page pageNum.
func NewEncryptionHmacData(c *EncryptionChallenge, rom onewire.RomID, pageNum int, man [2]byte) HmacData {
	d := NewDecryptionHmacData(c, rom, pageNum, man, false)
	d[16] |= 0x80
	return d
}

//

const category = "ds28e83"

const (
	cmdWriteMemory                    = 0x96
	cmdReadMemory                     = 0x44
	cmdEncryptedReadMemory            = 0x4b
	cmdReadBlockProtection            = 0xaa
	cmdSetBlockProtection             = 0xc3
	cmdComputePageAuthentication      = 0xa5
	cmdComputeMultiblockHash          = 0x33
	cmdVerifyEcdsaSignature           = 0x59
	cmdAuthenticateEcdsaPublicKey     = 0xa8
	cmdAuthenticatedEcdsaWriteMemory  = 0x89
	cmdAuthenticatedSha256WriteMemory = 0x99
	cmdComputeAndWriteSha256Secret    = 0x3c
	cmdGenerateEcc256KeyPair          = 0xcb
	cmdReadRng                        = 0xd2
	cmdDecrementCounter               = 0xc9
	cmdDeviceStateControl             = 0x55

	// authEcdsa is added to the key number in the authentication type.
	authEcdsa = 3
	enabled   = 0xaa
)

const (
	readMemoryTime             = 2 * time.Millisecond
	writeMemoryTime            = 100 * time.Millisecond
	writeStateTime             = 15 * time.Millisecond
	generateEccKeyPairTime     = 350 * time.Millisecond
	generateEcdsaSignatureTime = 80 * time.Millisecond
	computeTime                = 4 * time.Millisecond
	verifyEcdsaTime            = 160 * time.Millisecond
	trngGenerationTime         = 40 * time.Millisecond
	trngOnDemandCheckTime      = 65 * time.Millisecond
)

func (d *Dev) command(req []byte, delay time.Duration, size int) ([]byte, error) {
	return runcommand.Run(d.run, category, req, delay, size)
}

func (d *Dev) deviceStateControl(backup byte) error {
	if err := d.checkDS28E84("device state control"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.command([]byte{cmdDeviceStateControl, backup}, writeMemoryTime, 1)
	return err
}

func (d *Dev) checkDS28E84(op string) error {
	if d.variant != DS28E84 {
		return onewire.NewError(category, onewire.InvalidOperation, fmt.Sprintf("%s on %s", op, d.variant))
	}
	return nil
}

func (d *Dev) checkPage(page int) error {
	if page < 0 || page >= d.variant.MemoryPages() {
		return onewire.NewError(category, onewire.OutOfRange, fmt.Sprintf("page %d", page))
	}
	return nil
}

func (d *Dev) checkBlock(block int) error {
	if block < 0 || block >= d.variant.ProtectionBlocks() {
		return onewire.NewError(category, onewire.OutOfRange, fmt.Sprintf("block %d", block))
	}
	return nil
}

// checkKey accepts A and B, plus S when scratch is set.
func checkKey(k KeySecret, scratch bool) error {
	if k == KeySecretA || k == KeySecretB || (scratch && k == KeySecretS) {
		return nil
	}
	return onewire.NewError(category, onewire.InvalidParameter, fmt.Sprintf("key %s", k))
}

var _ conn.Resource = &Dev{}
