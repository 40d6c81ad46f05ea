package scanproto

import "encoding/binary"

// ColorMode selects how the scanner renders page content.
type ColorMode int

const (
	ColorAuto ColorMode = iota
	ColorColor
	ColorGray
	ColorBW
)

// Quality selects the scan resolution.
type Quality int

const (
	QualityAuto Quality = iota
	QualityNormal
	QualityFine
	QualitySuperfine
)

// qualityDPI maps a Quality to its resolution in DPI; QualityAuto has no
// fixed resolution.
var qualityDPI = map[Quality]uint16{
	QualityAuto:      0,
	QualityNormal:    150,
	QualityFine:      200,
	QualitySuperfine: 300,
}

// PaperSize selects the fed paper's dimensions.
type PaperSize int

const (
	PaperAuto PaperSize = iota
	PaperA4
	PaperA5
	PaperBusinessCard
	PaperPostcard
)

// paperDimension is a (width, height) pair in 1/1200-inch units.
type paperDimension struct{ width, height uint16 }

// paperDimensions maps a PaperSize to its fixed wire dimensions.
var paperDimensions = map[PaperSize]paperDimension{
	PaperAuto:         {0x28D0, 0x45A4}, // maximum scan area
	PaperA4:           {0x26D0, 0x36D0}, // 210mm x 297mm
	PaperA5:           {0x1B50, 0x26C0}, // 148mm x 210mm
	PaperBusinessCard: {0x28D0, 0x1274}, // auto-width x 100mm
	PaperPostcard:     {0x1280, 0x1B50}, // 100mm x 148mm
}

// ScanConfig is the job configuration negotiated before a scan run. It
// is the decoded form of the Set-scan-settings (cmd 0x06, sub 0xD4)
// config block.
type ScanConfig struct {
	ColorMode        ColorMode
	Quality          Quality
	Duplex           bool
	BleedThrough     bool
	PaperSize        PaperSize
	BWDensity        int // 0-10, meaningful only when ColorMode == ColorBW
	MultiFeed        bool
	BlankPageRemoval bool
}

// configBlockOffset is the packet offset at which the config block
// begins, i.e. the end of the fixed 36-byte header plus the 28-byte
// GET_SET parameter block.
const configBlockOffset = 64

// configBlockSimplex and configBlockFullDuplex are the two possible
// lengths of the config block: the shared/simplex shape, and the
// richer shape that appends an explicit back-side descriptor.
const (
	configBlockSimplex    = 0x50
	configBlockFullDuplex = 0x80
	backDescriptorOffset  = 0x50
)

// isFullAuto reports whether both color and quality are set to auto,
// the condition under which the appliance expects an explicit back-side
// descriptor in duplex mode.
func (c ScanConfig) isFullAuto() bool {
	return c.ColorMode == ColorAuto && c.Quality == QualityAuto
}

// blockSize returns the length of the config block this configuration
// will serialize to.
func (c ScanConfig) blockSize() int {
	if c.Duplex && c.isFullAuto() {
		return configBlockFullDuplex
	}
	return configBlockSimplex
}

// Pack encodes the full Set-scan-settings request: the 36-byte data
// channel header, the 28-byte GET_SET parameter block, and the
// variable-length config block laid out by packBlock and
// packBackDescriptor below.
//
// Byte offsets within the config block are positional and
// mode-dependent; they are reproduced exactly as observed on the wire,
// not derived from any documented field semantics.
func (c ScanConfig) Pack(token Token) []byte {
	blockSize := c.blockSize()
	total := configBlockOffset + blockSize
	buf := make([]byte, total)

	putDataHeader(buf, uint32(total), CmdQuery, token)
	binary.BigEndian.PutUint32(buf[40:44], uint32(blockSize))
	putSubcommandWord(buf[48:52], byte(SubSetScanSettings))
	putSubcommandWord(buf[52:56], byte(blockSize))

	block := buf[configBlockOffset:]
	c.packBlock(block)
	if blockSize == configBlockFullDuplex {
		c.packBackDescriptor(block[backDescriptorOffset:])
	}
	return buf
}

// isBW and isGray reads more naturally at the call sites below.
func (c ScanConfig) isBW() bool   { return c.ColorMode == ColorBW }
func (c ScanConfig) isGray() bool { return c.ColorMode == ColorGray }

// scanConfigByte is one entry of the declarative offset table driving
// the single-byte fields of the config block. Keeping this as data
// (rather than inline offset arithmetic scattered through packBlock)
// lets a test vary one field at a time and check exactly the byte it
// claims to own.
type scanConfigByte struct {
	offset int
	value  func(c ScanConfig) byte
}

var scanConfigByteTable = []scanConfigByte{
	{1, func(c ScanConfig) byte {
		if c.Duplex {
			return 0x03
		}
		return 0x01
	}},
	{2, func(c ScanConfig) byte { return boolByte(c.isFullAuto(), 0x01, 0x00) }},
	{3, func(c ScanConfig) byte {
		switch {
		case c.isBW() && c.BWDensity == 0:
			return 0x02
		case c.isFullAuto():
			return 0x01
		default:
			return 0x00
		}
	}},
	{4, func(c ScanConfig) byte { return boolByte(c.MultiFeed, 0xD0, 0x80) }},
	{5, func(c ScanConfig) byte { return boolByte(c.isFullAuto(), 0x01, 0x00) }},
	{6, func(c ScanConfig) byte { return boolByte(c.MultiFeed, 0xC1, 0xC0) }},
	{7, func(c ScanConfig) byte {
		return boolByte(c.ColorMode == ColorAuto && c.Quality == QualityAuto, 0xC1, 0x80)
	}},
	{8, func(c ScanConfig) byte { return boolByte(c.BlankPageRemoval, 0xE0, 0x80) }},
	{9, func(c ScanConfig) byte { return 0xC8 }},
	{10, func(c ScanConfig) byte { return boolByte(c.Quality == QualityAuto, 0xA0, 0x80) }},
	{11, func(c ScanConfig) byte { return boolByte(c.BleedThrough, 0xC0, 0x80) }},
	{12, func(c ScanConfig) byte { return 0x80 }},
	{31, func(c ScanConfig) byte { return 0x30 }},
	{33, func(c ScanConfig) byte { return boolByte(c.isBW(), 0x40, 0x10) }},
	{50, func(c ScanConfig) byte { return 0x04 }},
	{54, func(c ScanConfig) byte { return 0x01 }},
	{55, func(c ScanConfig) byte { return 0x01 }},
	{56, func(c ScanConfig) byte { return 0x01 }},
	{57, func(c ScanConfig) byte { return boolByte(c.isBW(), 0x01, 0x00) }},
}

func boolByte(b bool, whenTrue, whenFalse byte) byte {
	if b {
		return whenTrue
	}
	return whenFalse
}

// packBlock writes the front-side (or shared, simplex) config block.
func (c ScanConfig) packBlock(block []byte) {
	for _, f := range scanConfigByteTable {
		block[f.offset] = f.value(c)
	}
	if c.isBW() {
		block[60] = 0x06 + byte(c.BWDensity)
	}

	dpi := qualityDPI[c.Quality]
	binary.BigEndian.PutUint16(block[34:36], dpi)
	binary.BigEndian.PutUint16(block[36:38], dpi)

	colorEncTail := byte(0x0B)
	if c.PaperSize == PaperPostcard {
		colorEncTail = 0x09
	}
	switch {
	case c.isGray():
		copy(block[38:41], []byte{0x02, 0x82, colorEncTail})
	case c.isBW():
		copy(block[38:41], []byte{0x00, 0x03, 0x00})
	default:
		copy(block[38:41], []byte{0x05, 0x82, colorEncTail})
	}

	dim := paperDimensions[c.PaperSize]
	binary.BigEndian.PutUint16(block[44:46], dim.width)
	binary.BigEndian.PutUint16(block[48:50], dim.height)
}

// packBackDescriptor writes the explicit back-side descriptor appended
// when duplex scanning uses full-auto color and quality.
func (c ScanConfig) packBackDescriptor(back []byte) {
	back[0] = 0x01
	back[1] = 0x10
	dpi := qualityDPI[c.Quality]
	binary.BigEndian.PutUint16(back[2:4], dpi)
	binary.BigEndian.PutUint16(back[4:6], dpi)
	copy(back[6:9], []byte{0x02, 0x82, 0x0B})
	dim := paperDimensions[c.PaperSize]
	binary.BigEndian.PutUint16(back[12:14], dim.width)
	binary.BigEndian.PutUint16(back[16:18], dim.height)
	back[18] = 0x04
	copy(back[22:25], []byte{0x01, 0x01, 0x01})
}

// UnpackScanConfig decodes a config block (the bytes starting at packet
// offset 64, i.e. immediately after the GET_SET parameter block) back
// into a ScanConfig.
func UnpackScanConfig(block []byte) (ScanConfig, error) {
	if len(block) < configBlockSimplex {
		return ScanConfig{}, &MalformedPacketError{Len: len(block), Min: configBlockSimplex}
	}

	var c ScanConfig
	c.Duplex = block[1] == 0x03

	dpi := binary.BigEndian.Uint16(block[34:36])
	c.Quality = QualityAuto
	for q, d := range qualityDPI {
		if d == dpi {
			c.Quality = q
			break
		}
	}

	colorEnc := block[38:41]
	switch {
	case colorEnc[0] == 0x02 && colorEnc[1] == 0x82:
		c.ColorMode = ColorGray
	case colorEnc[0] == 0x00 && colorEnc[1] == 0x03:
		c.ColorMode = ColorBW
	case block[7] == 0xC1 && block[10] == 0xA0:
		c.ColorMode = ColorAuto
	default:
		c.ColorMode = ColorColor
	}

	c.BleedThrough = block[11] == 0xC0

	w := binary.BigEndian.Uint16(block[44:46])
	h := binary.BigEndian.Uint16(block[48:50])
	c.PaperSize = PaperAuto
	for ps, dim := range paperDimensions {
		if dim.width == w && dim.height == h {
			c.PaperSize = ps
			break
		}
	}

	if c.ColorMode == ColorBW {
		if int(block[60]) > 6 {
			c.BWDensity = int(block[60]) - 6
		}
	}
	c.MultiFeed = block[4] == 0xD0
	c.BlankPageRemoval = block[8] == 0xE0

	return c, nil
}
