// Package catl2 implements the CATL v2 ledger-archive file format: a
// random-access, memory-mappable log of ledgers whose state and transaction
// tries are stored with structural sharing between consecutive ledgers.
//
// All on-disk integers are encoded with the host's native byte order
// (encoding/binary.NativeEndian) — see the endianness witness in FileHeader.
// There is no cross-endianness transcoding; a file must be read back on a
// host with the same byte order it was written on.
package catl2

import "encoding/binary"

// order is the byte order used for every packed field in the file. Using
// the host's native order (rather than picking little- or big-endian) is
// what lets the writer stamp an endianness witness that a mismatched-host
// reader will reliably fail to match, without ever transcoding bytes.
var order = binary.NativeEndian

// Wire-format constants from spec §3.
const (
	Magic                = "CAT2"
	FormatVersion uint32  = 1
	endianWitness uint32  = 0x01020304
	MaxDepth             = 63
	MaxLeafPayloadSize   = (1 << 24) - 1 // 24-bit size field, ~16 MiB ceiling
	RelOffsetSize        = 8
	branchCount          = 16
)

// ChildType is the 2-bit per-branch code stored in an inner node's
// child-type bitmap.
type ChildType uint8

const (
	ChildEmpty    ChildType = 0
	ChildInner    ChildType = 1
	ChildLeaf     ChildType = 2
	ChildReserved ChildType = 3 // reserved; a conforming writer never emits this
)

// CompressionType is the leaf payload codec tag. Only CompressionNone is
// implemented; CompressionZSTD is a reserved encoding slot (spec §9 open
// question) and readers must reject it until a follow-up spec defines the
// codec framing.
type CompressionType uint8

const (
	CompressionNone CompressionType = 0
	CompressionZSTD CompressionType = 1
)

// ---------------------------------------------------------------------------
// FileHeader (48 bytes)
// ---------------------------------------------------------------------------

const (
	offMagic       = 0
	szMagic        = 4
	offVersion     = offMagic + szMagic
	szVersion      = 4
	offNetworkID   = offVersion + szVersion
	szNetworkID    = 4
	offEndianness  = offNetworkID + szNetworkID
	szEndianness   = 4
	offLedgerCount = offEndianness + szEndianness
	szLedgerCount  = 8
	offFirstSeq    = offLedgerCount + szLedgerCount
	szFirstSeq     = 8
	offLastSeq     = offFirstSeq + szFirstSeq
	szLastSeq      = 8
	offIndexOffset = offLastSeq + szLastSeq
	szIndexOffset  = 8

	FileHeaderSize = offIndexOffset + szIndexOffset
)

// FileHeader is the 48-byte header at the start of every CATL v2 file.
type FileHeader struct {
	Magic             [4]byte
	Version           uint32
	NetworkID         uint32
	Endianness        uint32
	LedgerCount       uint64
	FirstLedgerSeq    uint64
	LastLedgerSeq     uint64
	LedgerIndexOffset uint64
}

// NewFileHeader returns a placeholder header for a freshly created file.
// Writer.Finalize rewrites it in place with the real totals.
func NewFileHeader(networkID uint32) FileHeader {
	var h FileHeader
	copy(h.Magic[:], Magic)
	h.Version = FormatVersion
	h.NetworkID = networkID
	h.Endianness = endianWitness
	return h
}

// Encode writes h into buf[:FileHeaderSize].
func (h FileHeader) Encode(buf []byte) {
	_ = buf[:FileHeaderSize]
	copy(buf[offMagic:offMagic+szMagic], h.Magic[:])
	order.PutUint32(buf[offVersion:offVersion+szVersion], h.Version)
	order.PutUint32(buf[offNetworkID:offNetworkID+szNetworkID], h.NetworkID)
	order.PutUint32(buf[offEndianness:offEndianness+szEndianness], h.Endianness)
	order.PutUint64(buf[offLedgerCount:offLedgerCount+szLedgerCount], h.LedgerCount)
	order.PutUint64(buf[offFirstSeq:offFirstSeq+szFirstSeq], h.FirstLedgerSeq)
	order.PutUint64(buf[offLastSeq:offLastSeq+szLastSeq], h.LastLedgerSeq)
	order.PutUint64(buf[offIndexOffset:offIndexOffset+szIndexOffset], h.LedgerIndexOffset)
}

// DecodeFileHeader parses a FileHeader from buf and validates magic,
// version, and the endianness witness against this host.
func DecodeFileHeader(buf []byte) (FileHeader, error) {
	if len(buf) < FileHeaderSize {
		return FileHeader{}, ErrTruncated
	}
	var h FileHeader
	copy(h.Magic[:], buf[offMagic:offMagic+szMagic])
	h.Version = order.Uint32(buf[offVersion : offVersion+szVersion])
	h.NetworkID = order.Uint32(buf[offNetworkID : offNetworkID+szNetworkID])
	h.Endianness = order.Uint32(buf[offEndianness : offEndianness+szEndianness])
	h.LedgerCount = order.Uint64(buf[offLedgerCount : offLedgerCount+szLedgerCount])
	h.FirstLedgerSeq = order.Uint64(buf[offFirstSeq : offFirstSeq+szFirstSeq])
	h.LastLedgerSeq = order.Uint64(buf[offLastSeq : offLastSeq+szLastSeq])
	h.LedgerIndexOffset = order.Uint64(buf[offIndexOffset : offIndexOffset+szIndexOffset])

	if string(h.Magic[:]) != Magic {
		return h, ErrBadMagic
	}
	if h.Version != FormatVersion {
		return h, ErrUnsupportedVersion
	}
	if h.Endianness != endianWitness {
		return h, ErrEndianMismatch
	}
	return h, nil
}

// ---------------------------------------------------------------------------
// LedgerInfo (118 bytes) -- the canonical on-wire ledger header.
// ---------------------------------------------------------------------------

const (
	offSeq                 = 0
	szSeq                  = 4
	offDrops               = offSeq + szSeq
	szDrops                = 8
	offParentHash          = offDrops + szDrops
	szHash256              = 32
	offTxHash              = offParentHash + szHash256
	offAccountHash         = offTxHash + szHash256
	offParentCloseTime     = offAccountHash + szHash256
	szCloseTime            = 4
	offCloseTime           = offParentCloseTime + szCloseTime
	offCloseTimeResolution = offCloseTime + szCloseTime
	offCloseFlags          = offCloseTimeResolution + 1

	LedgerInfoSize = offCloseFlags + 1
)

// LedgerInfo is the 118-byte canonical ledger header, mirroring the
// network's on-wire ledger header so consumers that already know that
// format can reinterpret directly.
type LedgerInfo struct {
	Seq                 uint32
	Drops               uint64
	ParentHash          Hash256
	TxHash              Hash256
	AccountHash         Hash256 // state root
	ParentCloseTime     uint32
	CloseTime           uint32
	CloseTimeResolution uint8
	CloseFlags          uint8
}

// Encode writes li into buf[:LedgerInfoSize].
func (li LedgerInfo) Encode(buf []byte) {
	_ = buf[:LedgerInfoSize]
	order.PutUint32(buf[offSeq:offSeq+szSeq], li.Seq)
	order.PutUint64(buf[offDrops:offDrops+szDrops], li.Drops)
	copy(buf[offParentHash:offParentHash+szHash256], li.ParentHash[:])
	copy(buf[offTxHash:offTxHash+szHash256], li.TxHash[:])
	copy(buf[offAccountHash:offAccountHash+szHash256], li.AccountHash[:])
	order.PutUint32(buf[offParentCloseTime:offParentCloseTime+szCloseTime], li.ParentCloseTime)
	order.PutUint32(buf[offCloseTime:offCloseTime+szCloseTime], li.CloseTime)
	buf[offCloseTimeResolution] = li.CloseTimeResolution
	buf[offCloseFlags] = li.CloseFlags
}

// DecodeLedgerInfo parses a LedgerInfo from buf.
func DecodeLedgerInfo(buf []byte) (LedgerInfo, error) {
	if len(buf) < LedgerInfoSize {
		return LedgerInfo{}, ErrTruncated
	}
	var li LedgerInfo
	li.Seq = order.Uint32(buf[offSeq : offSeq+szSeq])
	li.Drops = order.Uint64(buf[offDrops : offDrops+szDrops])
	copy(li.ParentHash[:], buf[offParentHash:offParentHash+szHash256])
	copy(li.TxHash[:], buf[offTxHash:offTxHash+szHash256])
	copy(li.AccountHash[:], buf[offAccountHash:offAccountHash+szHash256])
	li.ParentCloseTime = order.Uint32(buf[offParentCloseTime : offParentCloseTime+szCloseTime])
	li.CloseTime = order.Uint32(buf[offCloseTime : offCloseTime+szCloseTime])
	li.CloseTimeResolution = buf[offCloseTimeResolution]
	li.CloseFlags = buf[offCloseFlags]
	return li, nil
}

// ---------------------------------------------------------------------------
// TreesHeader (16 bytes)
// ---------------------------------------------------------------------------

const (
	offStateTreeSize = 0
	szTreeSize       = 8
	offTxTreeSize    = offStateTreeSize + szTreeSize

	TreesHeaderSize = offTxTreeSize + szTreeSize
)

// TreesHeader records the byte length of the state and tx trie regions that
// follow a LedgerInfo, letting readers skip them without parsing.
type TreesHeader struct {
	StateTreeSize uint64
	TxTreeSize    uint64
}

func (th TreesHeader) Encode(buf []byte) {
	_ = buf[:TreesHeaderSize]
	order.PutUint64(buf[offStateTreeSize:offStateTreeSize+szTreeSize], th.StateTreeSize)
	order.PutUint64(buf[offTxTreeSize:offTxTreeSize+szTreeSize], th.TxTreeSize)
}

func DecodeTreesHeader(buf []byte) (TreesHeader, error) {
	if len(buf) < TreesHeaderSize {
		return TreesHeader{}, ErrTruncated
	}
	var th TreesHeader
	th.StateTreeSize = order.Uint64(buf[offStateTreeSize : offStateTreeSize+szTreeSize])
	th.TxTreeSize = order.Uint64(buf[offTxTreeSize : offTxTreeSize+szTreeSize])
	return th, nil
}

// ---------------------------------------------------------------------------
// InnerNodeHeader (40 bytes header; variable rel-offset array follows)
// ---------------------------------------------------------------------------

const (
	offChildTypes  = 0
	szChildTypes   = 4
	offDepthPlus   = offChildTypes + szChildTypes
	szDepthPlus    = 2
	offOverlayMask = offDepthPlus + szDepthPlus
	szOverlayMask  = 2
	offInnerHash   = offOverlayMask + szOverlayMask

	InnerNodeHeaderSize = offInnerHash + szHash256
)

// InnerNodeHeader is the fixed 40-byte prefix of every inner node. It is
// followed by popcount(ChildTypes) self-relative child pointers (8 bytes
// each), one per non-empty branch in ascending branch order.
type InnerNodeHeader struct {
	ChildTypes  uint32 // 2 bits x 16 branches
	DepthPlus   uint16 // bits 0-5: depth (0-63); bits 6-15: reserved
	OverlayMask uint16 // reserved; must be zero
	Hash        Hash256
}

// Depth returns the node's depth (bits 0-5 of DepthPlus).
func (h InnerNodeHeader) Depth() uint8 { return uint8(h.DepthPlus & 0x3F) }

// SetDepth sets the depth field, panicking if depth > 63 (a programming
// error per §4.4's misuse list).
func (h *InnerNodeHeader) SetDepth(depth uint8) {
	if depth > MaxDepth {
		panic("catl2: depth exceeds 63")
	}
	h.DepthPlus = (h.DepthPlus &^ 0x3F) | uint16(depth)
}

// ChildType returns the 2-bit type code for the given branch (0..15).
func (h InnerNodeHeader) ChildType(branch int) ChildType {
	return ChildType((h.ChildTypes >> uint(branch*2)) & 0x3)
}

// SetChildType sets the 2-bit type code for the given branch.
func (h *InnerNodeHeader) SetChildType(branch int, t ChildType) {
	mask := uint32(0x3) << uint(branch*2)
	h.ChildTypes = (h.ChildTypes &^ mask) | (uint32(t) << uint(branch*2))
}

// PopCount returns the number of non-empty branches, i.e. the length of the
// child-pointer array that follows this header.
func (h InnerNodeHeader) PopCount() int {
	n := 0
	for b := 0; b < branchCount; b++ {
		if h.ChildType(b) != ChildEmpty {
			n++
		}
	}
	return n
}

func (h InnerNodeHeader) Encode(buf []byte) {
	_ = buf[:InnerNodeHeaderSize]
	order.PutUint32(buf[offChildTypes:offChildTypes+szChildTypes], h.ChildTypes)
	order.PutUint16(buf[offDepthPlus:offDepthPlus+szDepthPlus], h.DepthPlus)
	order.PutUint16(buf[offOverlayMask:offOverlayMask+szOverlayMask], h.OverlayMask)
	copy(buf[offInnerHash:offInnerHash+szHash256], h.Hash[:])
}

func DecodeInnerNodeHeader(buf []byte) (InnerNodeHeader, error) {
	if len(buf) < InnerNodeHeaderSize {
		return InnerNodeHeader{}, ErrTruncated
	}
	var h InnerNodeHeader
	h.ChildTypes = order.Uint32(buf[offChildTypes : offChildTypes+szChildTypes])
	h.DepthPlus = order.Uint16(buf[offDepthPlus : offDepthPlus+szDepthPlus])
	h.OverlayMask = order.Uint16(buf[offOverlayMask : offOverlayMask+szOverlayMask])
	copy(h.Hash[:], buf[offInnerHash:offInnerHash+szHash256])
	return h, nil
}

// ---------------------------------------------------------------------------
// LeafHeader (68 bytes header; payload follows)
// ---------------------------------------------------------------------------

const (
	offLeafKey          = 0
	offLeafHash         = offLeafKey + szHash256
	offSizeAndFlags     = offLeafHash + szHash256
	szSizeAndFlags      = 4

	LeafHeaderSize = offSizeAndFlags + szSizeAndFlags
)

// LeafHeader is the fixed 68-byte prefix of every leaf node. Its payload
// follows immediately, DataSize() bytes long.
type LeafHeader struct {
	Key          Hash256
	Hash         Hash256
	SizeAndFlags uint32 // bits 0-23 size, 24-27 compression tag, 28-31 reserved
}

// DataSize returns the payload byte length (bits 0-23).
func (h LeafHeader) DataSize() uint32 { return h.SizeAndFlags & 0x00FFFFFF }

// CompressionType returns the codec tag (bits 24-27).
func (h LeafHeader) CompressionType() CompressionType {
	return CompressionType((h.SizeAndFlags >> 24) & 0x0F)
}

// NewLeafHeader builds a LeafHeader, panicking if size exceeds the 24-bit
// field (a programming error per §4.4).
func NewLeafHeader(key, hash Hash256, size uint32, ct CompressionType) LeafHeader {
	if size > MaxLeafPayloadSize {
		panic("catl2: leaf payload exceeds 16 MiB")
	}
	return LeafHeader{
		Key:          key,
		Hash:         hash,
		SizeAndFlags: (size & 0x00FFFFFF) | (uint32(ct&0xF) << 24),
	}
}

func (h LeafHeader) Encode(buf []byte) {
	_ = buf[:LeafHeaderSize]
	copy(buf[offLeafKey:offLeafKey+szHash256], h.Key[:])
	copy(buf[offLeafHash:offLeafHash+szHash256], h.Hash[:])
	order.PutUint32(buf[offSizeAndFlags:offSizeAndFlags+szSizeAndFlags], h.SizeAndFlags)
}

func DecodeLeafHeader(buf []byte) (LeafHeader, error) {
	if len(buf) < LeafHeaderSize {
		return LeafHeader{}, ErrTruncated
	}
	var h LeafHeader
	copy(h.Key[:], buf[offLeafKey:offLeafKey+szHash256])
	copy(h.Hash[:], buf[offLeafHash:offLeafHash+szHash256])
	h.SizeAndFlags = order.Uint32(buf[offSizeAndFlags : offSizeAndFlags+szSizeAndFlags])
	return h, nil
}

// ---------------------------------------------------------------------------
// IndexEntry (28 bytes)
// ---------------------------------------------------------------------------

const (
	offIdxSequence    = 0
	szIdxSequence     = 4
	offIdxHeader      = offIdxSequence + szIdxSequence
	szIdxOffset       = 8
	offIdxStateRoot   = offIdxHeader + szIdxOffset
	offIdxTxRoot      = offIdxStateRoot + szIdxOffset

	IndexEntrySize = offIdxTxRoot + szIdxOffset
)

// IndexEntry is one row of the trailing ledger index: a ledger sequence
// plus the absolute offsets of its header and trie roots.
type IndexEntry struct {
	Sequence        uint32
	HeaderOffset    uint64
	StateTreeOffset uint64
	TxTreeOffset    uint64 // 0 => no tx tree
}

func (e IndexEntry) Encode(buf []byte) {
	_ = buf[:IndexEntrySize]
	order.PutUint32(buf[offIdxSequence:offIdxSequence+szIdxSequence], e.Sequence)
	order.PutUint64(buf[offIdxHeader:offIdxHeader+szIdxOffset], e.HeaderOffset)
	order.PutUint64(buf[offIdxStateRoot:offIdxStateRoot+szIdxOffset], e.StateTreeOffset)
	order.PutUint64(buf[offIdxTxRoot:offIdxTxRoot+szIdxOffset], e.TxTreeOffset)
}

func DecodeIndexEntry(buf []byte) (IndexEntry, error) {
	if len(buf) < IndexEntrySize {
		return IndexEntry{}, ErrTruncated
	}
	var e IndexEntry
	e.Sequence = order.Uint32(buf[offIdxSequence : offIdxSequence+szIdxSequence])
	e.HeaderOffset = order.Uint64(buf[offIdxHeader : offIdxHeader+szIdxOffset])
	e.StateTreeOffset = order.Uint64(buf[offIdxStateRoot : offIdxStateRoot+szIdxOffset])
	e.TxTreeOffset = order.Uint64(buf[offIdxTxRoot : offIdxTxRoot+szIdxOffset])
	return e, nil
}

// ---------------------------------------------------------------------------
// Compile-time layout verification.
//
// Each pair below has negative length (a compile error) unless the declared
// size constant exactly matches the wire-format total from spec §3. This is
// the idiomatic Go analogue of the source's static_assert(sizeof(T) == N).
// ---------------------------------------------------------------------------

var (
	_ [FileHeaderSize - 48]byte
	_ [48 - FileHeaderSize]byte

	_ [LedgerInfoSize - 118]byte
	_ [118 - LedgerInfoSize]byte

	_ [TreesHeaderSize - 16]byte
	_ [16 - TreesHeaderSize]byte

	_ [InnerNodeHeaderSize - 40]byte
	_ [40 - InnerNodeHeaderSize]byte

	_ [LeafHeaderSize - 68]byte
	_ [68 - LeafHeaderSize]byte

	_ [IndexEntrySize - 28]byte
	_ [28 - IndexEntrySize]byte
)

// PerLedgerFixedSize is the byte span of a ledger's LedgerInfo + TreesHeader
// prefix: a ledger's state trie region begins at header_offset +
// PerLedgerFixedSize. The state root sits there when it was newly written
// for that ledger; a root already on disk from an earlier ledger keeps its
// original offset, which the index entry records.
const PerLedgerFixedSize = LedgerInfoSize + TreesHeaderSize

var _ [PerLedgerFixedSize - 134]byte
var _ [134 - PerLedgerFixedSize]byte
