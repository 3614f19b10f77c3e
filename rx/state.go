package rx

// State is the receive context's current position in the framing state
// machine (spec.md §3, §4.3). It returns to StateIdle on every terminal
// or error edge; no state is entered except from its listed predecessor.
type State int32

const (
	StateIdle State = iota
	StateBreak
	StateDMXData
	StateRDMData
	StateChecksumHigh
	StateChecksumLow
	StateDiscPreamble
	StateDiscEUID
	StateDiscChecksum
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateBreak:
		return "BREAK"
	case StateDMXData:
		return "DMX_DATA"
	case StateRDMData:
		return "RDM_DATA"
	case StateChecksumHigh:
		return "CHECKSUM_H"
	case StateChecksumLow:
		return "CHECKSUM_L"
	case StateDiscPreamble:
		return "DISC_FE"
	case StateDiscEUID:
		return "DISC_EUID"
	case StateDiscChecksum:
		return "DISC_CS"
	default:
		return "UNKNOWN"
	}
}

// maxDiscoveryPreambleBytes bounds the 0xFE preamble run of a discovery
// reply; E1.20 allows 0-7 preamble bytes ahead of the 0xAA delimiter.
const maxDiscoveryPreambleBytes = 7
