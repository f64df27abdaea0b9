// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds28e15

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"

	"github.com/GermanBionicSystems/maximinterface/common"
	"github.com/GermanBionicSystems/maximinterface/onewire"
)

// Family codes.
const (
	FamilyDS28E15 = 0x17
	FamilyDS28E22 = 0x47
	FamilyDS28E25 = 0x48
)

// SegmentsPerPage is the number of 4 byte segments in a page.
const SegmentsPerPage = 8

// Segment is the unit of memory writes.
type Segment [4]byte

// Page is a memory page, a MAC, a challenge or a secret.
type Page [32]byte

// Variant selects the memory size and the command quirks of a die.
type Variant int

const (
	DS28E15 Variant = iota
	DS28E22
	DS28E25
)

func (v Variant) String() string {
	switch v {
	case DS28E15:
		return "DS28E15"
	case DS28E22:
		return "DS28E22"
	case DS28E25:
		return "DS28E25"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// MemoryPages returns the number of user memory pages.
func (v Variant) MemoryPages() int {
	switch v {
	case DS28E22:
		return 8
	case DS28E25:
		return 16
	default:
		return 2
	}
}

// ProtectionBlocks returns the number of protection blocks.
func (v Variant) ProtectionBlocks() int {
	if v == DS28E25 {
		return 8
	}
	return 4
}

// large returns true for the dies where a protection block spans two pages.
func (v Variant) large() bool {
	return v == DS28E22 || v == DS28E25
}

// BlockProtection is the protection status byte of a block.
type BlockProtection byte

const (
	ReadProtection  BlockProtection = 0x80
	WriteProtection BlockProtection = 0x40
	EepromEmulation BlockProtection = 0x20
	AuthProtection  BlockProtection = 0x10

	blockNumMask BlockProtection = 0x0f
)

// NewBlockProtection returns the status of block with the flags set.
func NewBlockProtection(block int, flags BlockProtection) BlockProtection {
	return flags&^blockNumMask | BlockProtection(block)&blockNumMask
}

// BlockNum returns the block the status applies to.
func (b BlockProtection) BlockNum() int {
	return int(b & blockNumMask)
}

// Has reports whether all of flags are set.
func (b BlockProtection) Has(flags BlockProtection) bool {
	return b&flags == flags
}

// NoProtection reports whether no protection is enabled.
func (b BlockProtection) NoProtection() bool {
	return b&^blockNumMask == 0
}

func (b BlockProtection) String() string {
	s := fmt.Sprintf("block %d:", b.BlockNum())
	for _, f := range []struct {
		f BlockProtection
		n string
	}{{ReadProtection, " RP"}, {WriteProtection, " WP"}, {EepromEmulation, " EM"}, {AuthProtection, " AP"}} {
		if b.Has(f.f) {
			s += f.n
		}
	}
	return s
}

// ManID is the manufacturer ID, in the order the personality reports it.
// MAC inputs carry it the other way round.
type ManID [2]byte

// Personality is the personality area of the device.
type Personality struct {
	PB1   byte
	PB2   byte
	ManID ManID
}

// Opts contains options to pass to the constructor.
type Opts struct {
	Variant Variant
	// LowPower selects the slower secret EEPROM timing of the DS28ELxx
	// parts.
	LowPower bool
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	Variant: DS28E15,
}

// New returns a handle to the authenticator selected by sel on m.
func New(m onewire.Master, sel onewire.Selector, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if opts.Variant < DS28E15 || opts.Variant > DS28E25 {
		return nil, fmt.Errorf("ds28e15: invalid variant %d", int(opts.Variant))
	}
	return &Dev{m: m, sel: sel, variant: opts.Variant, lowPower: opts.LowPower}, nil
}

// Dev is a handle to a DS28E15, DS28E22 or DS28E25.
type Dev struct {
	mu       sync.Mutex
	m        onewire.Master
	sel      onewire.Selector
	variant  Variant
	lowPower bool
}

func (d *Dev) String() string {
	return fmt.Sprintf("%s{%s}", d.variant, d.m)
}

// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	return nil
}

// Variant returns the die variant.
func (d *Dev) Variant() Variant {
	return d.variant
}

// ReadPersonality reads the personality bytes and the manufacturer ID.
func (d *Dev) ReadPersonality() (Personality, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var p Personality
	if err := d.command(cmdReadStatus, 0xe0, onewire.Normal); err != nil {
		return p, err
	}
	var b [4]byte
	if err := d.readWithCRC(b[:]); err != nil {
		return p, err
	}
	p.PB1, p.PB2, p.ManID = b[0], b[1], ManID{b[2], b[3]}
	return p, nil
}

// ReadPage reads a full page.
func (d *Dev) ReadPage(page int) (Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var p Page
	if err := d.checkPage(page, 0); err != nil {
		return p, err
	}
	if err := d.command(cmdReadMemory, byte(page), onewire.Normal); err != nil {
		return p, err
	}
	return p, d.readWithCRC(p[:])
}

// ContinueReadPage reads the page following the last page read.
func (d *Dev) ContinueReadPage() (Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var p Page
	return p, d.readWithCRC(p[:])
}

// ReadSegment reads the segment of page.
func (d *Dev) ReadSegment(page, segment int) (Segment, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var s Segment
	if err := d.checkPage(page, segment); err != nil {
		return s, err
	}
	if err := d.command(cmdReadMemory, byte(segment<<5|page), onewire.Normal); err != nil {
		return s, err
	}
	return s, d.m.ReadBlock(s[:])
}

// ContinueReadSegment reads the segment following the last one read.
func (d *Dev) ContinueReadSegment() (Segment, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var s Segment
	return s, d.m.ReadBlock(s[:])
}

// WriteSegment writes a segment of a page that is not authentication
// protected.
func (d *Dev) WriteSegment(page, segment int, data *Segment) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkPage(page, segment); err != nil {
		return err
	}
	if err := d.command(cmdWriteMemory, byte(segment<<5|page), onewire.Normal); err != nil {
		return err
	}
	return d.continueWriteSegment(data)
}

// ContinueWriteSegment writes the segment following the last one written.
func (d *Dev) ContinueWriteSegment(data *Segment) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.continueWriteSegment(data)
}

// WriteScratchpad loads data into the scratchpad.
func (d *Dev) WriteScratchpad(data *Page) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	param := byte(0x00)
	if d.variant.large() {
		param = 0x20
	}
	if err := d.command(cmdReadWriteScratchpad, param, onewire.Normal); err != nil {
		return err
	}
	return d.writeWithCRC(data[:], onewire.Normal, 0)
}

// ReadScratchpad reads the scratchpad.
func (d *Dev) ReadScratchpad() (Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	param := byte(0x0f)
	if d.variant.large() {
		param = 0x2f
	}
	var p Page
	if err := d.command(cmdReadWriteScratchpad, param, onewire.Normal); err != nil {
		return p, err
	}
	return p, d.readWithCRC(p[:])
}

// LoadSecret copies the scratchpad to the secret, and optionally locks it.
func (d *Dev) LoadSecret(lock bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	param := byte(0x00)
	if lock {
		param = 0xe0
	}
	if err := d.command(cmdLoadAndLockSecret, param, onewire.Normal); err != nil {
		return err
	}
	return d.release(d.secretWriteTime())
}

// ComputeSecret derives a new secret from the current secret, the page and
// the scratchpad, and optionally locks it.
func (d *Dev) ComputeSecret(page int, lock bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkPage(page, 0); err != nil {
		return err
	}
	param := byte(page)
	if lock {
		param |= 0xe0
	}
	if err := d.command(cmdComputeAndLockSecret, param, onewire.Normal); err != nil {
		return err
	}
	return d.release(2*shaComputationTime + d.secretWriteTime())
}

// ComputeReadPageMac computes the MAC of page with the scratchpad as
// challenge. anonymous replaces the ROM-ID with 0xFF bytes in the MAC
// input.
func (d *Dev) ComputeReadPageMac(page int, anonymous bool) (Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var mac Page
	if err := d.checkPage(page, 0); err != nil {
		return mac, err
	}
	param := byte(page)
	if anonymous {
		param |= 0xe0
	}
	if err := d.powered(cmdComputePageMac, param, 2*shaComputationTime); err != nil {
		return mac, err
	}
	if err := readCS(d.m); err != nil {
		return mac, err
	}
	return mac, d.readWithCRC(mac[:])
}

// ReadBlockProtection reads the protection of block.
func (d *Dev) ReadBlockProtection(block int) (BlockProtection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if block < 0 || block >= d.variant.ProtectionBlocks() {
		return 0, onewire.NewError(category, onewire.OutOfRange, fmt.Sprintf("block %d", block))
	}
	param := byte(block)
	if d.variant.large() {
		param *= pagesPerBlock
	}
	if err := d.command(cmdReadStatus, param, onewire.Normal); err != nil {
		return 0, err
	}
	b, err := onewire.ReadByte(d.m)
	return BlockProtection(b), err
}

// ReadAllBlockProtection reads the protection of every block.
func (d *Dev) ReadAllBlockProtection() ([]BlockProtection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.command(cmdReadStatus, 0, onewire.Normal); err != nil {
		return nil, err
	}
	out := make([]BlockProtection, d.variant.ProtectionBlocks())
	if !d.variant.large() {
		var b [4]byte
		if err := d.readWithCRC(b[:]); err != nil {
			return nil, err
		}
		for i := range out {
			out[i] = BlockProtection(b[i])
		}
		return out, nil
	}
	// One status per page is returned, and always 16 of them.
	var b [16]byte
	if err := d.readWithCRC(b[:]); err != nil {
		return nil, err
	}
	for i := range out {
		s := b[i*pagesPerBlock]
		out[i] = BlockProtection(s&0xf0 | (s&0x0f)/pagesPerBlock)
	}
	return out, nil
}

// WriteBlockProtection sets protection flags. Flags can be set but never
// cleared.
func (d *Dev) WriteBlockProtection(p BlockProtection) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.command(cmdWriteBlockProtection, byte(p), onewire.Normal); err != nil {
		return err
	}
	return d.release(eepromWriteTime)
}

// WriteAuthBlockProtection sets protection flags of an authentication
// protected block. mac is computed over ProtectionWriteMacData.
func (d *Dev) WriteAuthBlockProtection(p BlockProtection, mac *Page) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.powered(cmdAuthWriteBlockProtection, byte(p), shaComputationTime); err != nil {
		return err
	}
	return d.finishAuthWrite(mac)
}

// WriteAuthSegment writes a segment of an authentication protected page.
// mac is computed over SegmentWriteMacData.
func (d *Dev) WriteAuthSegment(page, segment int, newData *Segment, mac *Page) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkPage(page, segment); err != nil {
		return err
	}
	if err := d.command(cmdAuthWriteMemory, byte(segment<<5|page), onewire.Normal); err != nil {
		return err
	}
	return d.writeAuthSegment(newData, mac, false)
}

// ContinueWriteAuthSegment writes the segment following the last one
// written.
func (d *Dev) ContinueWriteAuthSegment(newData *Segment, mac *Page) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeAuthSegment(newData, mac, true)
}

//

const category = "ds28e15"

const (
	cmdWriteMemory              = 0x55
	cmdReadMemory               = 0xf0
	cmdLoadAndLockSecret        = 0x33
	cmdComputeAndLockSecret     = 0x3c
	cmdReadWriteScratchpad      = 0x0f
	cmdComputePageMac           = 0xa5
	cmdReadStatus               = 0xaa
	cmdWriteBlockProtection     = 0xc3
	cmdAuthWriteMemory          = 0x5a
	cmdAuthWriteBlockProtection = 0xcc

	releaseByte   = 0xaa
	csSuccess     = 0xaa
	pagesPerBlock = 2

	shaComputationTime = 3 * time.Millisecond
	eepromWriteTime    = 10 * time.Millisecond
)

var sleep = time.Sleep

func (d *Dev) secretWriteTime() time.Duration {
	if d.lowPower {
		return 200 * time.Millisecond
	}
	return 100 * time.Millisecond
}

func (d *Dev) checkPage(page, segment int) error {
	if page < 0 || page >= d.variant.MemoryPages() || segment < 0 || segment >= SegmentsPerPage {
		return onewire.NewError(category, onewire.OutOfRange, fmt.Sprintf("page %d segment %d", page, segment))
	}
	return nil
}

// command selects the device and sends cmd and param followed by the CRC16
// check. after is the level the bus is left at.
func (d *Dev) command(cmd, param byte, after onewire.Level) error {
	if err := d.sel(d.m); err != nil {
		return err
	}
	return d.writeWithCRC([]byte{cmd, param}, after, 0)
}

// powered runs a command that computes with the strong pull-up for wait.
func (d *Dev) powered(cmd, param byte, wait time.Duration) error {
	if err := d.command(cmd, param, onewire.Strong); err != nil {
		return err
	}
	sleep(wait)
	return d.m.SetLevel(onewire.Normal)
}

// writeWithCRC writes w and checks the inverted CRC16 the device answers.
// crc seeds the CRC. The last CRC byte is read with level after; on failure
// the bus is back at Normal.
func (d *Dev) writeWithCRC(w []byte, after onewire.Level, crc uint16) (err error) {
	if err := d.m.WriteBlock(w); err != nil {
		return err
	}
	var r [2]byte
	if r[0], err = onewire.ReadByte(d.m); err != nil {
		return err
	}
	if after == onewire.Strong {
		defer func() {
			if err != nil {
				err = onewire.RestoreLevel(d.m, err)
			}
		}()
	}
	if r[1], err = d.m.ReadByteLevel(after); err != nil {
		return err
	}
	if !common.CheckCRC16(w, crc, r) {
		return onewire.NewError(category, onewire.CRCError, fmt.Sprintf("CRC16 % X", r))
	}
	return nil
}

// readWithCRC fills r and checks the inverted CRC16 that follows.
func (d *Dev) readWithCRC(r []byte) error {
	if err := d.m.ReadBlock(r); err != nil {
		return err
	}
	var crc [2]byte
	if err := d.m.ReadBlock(crc[:]); err != nil {
		return err
	}
	if !common.CheckCRC16(r, 0, crc) {
		return onewire.NewError(category, onewire.CRCError, fmt.Sprintf("CRC16 % X", crc))
	}
	return nil
}

func readCS(m onewire.Master) error {
	b, err := onewire.ReadByte(m)
	if err != nil {
		return err
	}
	if b != csSuccess {
		return onewire.NewError(category, onewire.OperationFailure, fmt.Sprintf("CS %#02x", b))
	}
	return nil
}

// release sends the release byte, powers the device for wait and checks the
// CS byte it answers.
func (d *Dev) release(wait time.Duration) error {
	if err := onewire.WriteBytePower(d.m, releaseByte); err != nil {
		return onewire.RestoreLevel(d.m, err)
	}
	sleep(wait)
	if err := d.m.SetLevel(onewire.Normal); err != nil {
		return err
	}
	return readCS(d.m)
}

func (d *Dev) continueWriteSegment(data *Segment) error {
	if err := d.writeWithCRC(data[:], onewire.Normal, 0); err != nil {
		return err
	}
	return d.release(eepromWriteTime)
}

func (d *Dev) writeAuthSegment(newData *Segment, mac *Page, continuing bool) error {
	// The CS byte of the previous segment is part of the CRC on the larger
	// dies.
	var crc uint16
	if continuing && d.variant.large() {
		crc = common.CRC16Byte(csSuccess, 0)
	}
	if err := d.writeWithCRC(newData[:], onewire.Strong, crc); err != nil {
		return err
	}
	sleep(shaComputationTime)
	if err := d.m.SetLevel(onewire.Normal); err != nil {
		return err
	}
	return d.finishAuthWrite(mac)
}

// finishAuthWrite sends the MAC and commits the write.
func (d *Dev) finishAuthWrite(mac *Page) error {
	if err := d.writeWithCRC(mac[:], onewire.Normal, 0); err != nil {
		return err
	}
	if err := readCS(d.m); err != nil {
		return err
	}
	return d.release(eepromWriteTime)
}

var _ conn.Resource = &Dev{}
