package domain

// KeyType is the role of an installed key.
type KeyType int

const (
	KeyPairwise KeyType = iota
	KeyGroup
	KeyIgtk
	KeyPeer
)

func (k KeyType) String() string {
	switch k {
	case KeyPairwise:
		return "pairwise"
	case KeyGroup:
		return "group"
	case KeyIgtk:
		return "igtk"
	case KeyPeer:
		return "peer"
	default:
		return "unknown"
	}
}

// Protection is the direction a key protects.
type Protection int

const (
	ProtectNone Protection = iota
	ProtectRx
	ProtectTx
	ProtectRxTx
)

// KeyConfig is a key handed to the device for hardware crypto.
type KeyConfig struct {
	Protection Protection
	CipherOUI  [3]byte
	CipherType uint8
	KeyType    KeyType
	PeerAddr   MacAddr
	KeyIndex   uint8
	Key        []byte
	Rsc        uint64
}
