package frame

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/lcalzada-xor/wsta/internal/core/domain"
)

// KeyMessage identifies an EAPOL-Key frame within the 4-way or group key
// handshake.
type KeyMessage struct {
	// Number is 1-4 for the 4-way handshake, 0 when it cannot be told.
	Number        int
	Pairwise      bool
	Install       bool
	Secure        bool
	ReplayCounter uint64
	KeyDataLength uint16
}

func (k KeyMessage) String() string {
	if !k.Pairwise {
		return "group"
	}
	if k.Number == 0 {
		return "unknown"
	}
	return fmt.Sprintf("M%d", k.Number)
}

// InspectEapolKey decodes an EAPOL PDU and, if it is an EAPOL-Key frame,
// infers which handshake message it is. Used for logging and metrics only;
// the SME owns the handshake.
func InspectEapolKey(pdu []byte) (KeyMessage, error) {
	eapol := &layers.EAPOL{}
	if err := eapol.DecodeFromBytes(pdu, gopacket.NilDecodeFeedback); err != nil {
		return KeyMessage{}, malformed("eapol: %v", err)
	}
	if eapol.Type != layers.EAPOLTypeKey {
		return KeyMessage{}, fmt.Errorf("not an EAPOL-Key frame (type %d)", eapol.Type)
	}
	key := &layers.EAPOLKey{}
	if err := key.DecodeFromBytes(eapol.Payload, gopacket.NilDecodeFeedback); err != nil {
		return KeyMessage{}, malformed("eapol-key: %v", err)
	}

	msg := KeyMessage{
		Pairwise:      key.KeyType == layers.EAPOLKeyTypePairwise,
		Install:       key.Install,
		Secure:        key.Secure,
		ReplayCounter: key.ReplayCounter,
		KeyDataLength: key.KeyDataLength,
	}
	msg.Number = messageNumber(key)
	return msg, nil
}

// messageNumber applies the Key Info heuristics: M1 has ACK without MIC, M3
// has both, and M2 is the MIC-only frame that still carries key data.
func messageNumber(k *layers.EAPOLKey) int {
	if k.KeyType != layers.EAPOLKeyTypePairwise {
		return 0
	}
	if !k.KeyMIC {
		if k.KeyACK {
			return 1
		}
		return 0
	}
	if k.KeyACK {
		return 3
	}
	if k.KeyDataLength > 0 {
		// M2 carries the station's RSNE.
		return 2
	}
	return 4
}

// BuildEapolKey serializes an EAPOL-Key PDU. The simulated access point
// uses it to start a handshake.
func BuildEapolKey(key *layers.EAPOLKey) ([]byte, error) {
	if key.KeyDescriptorType == 0 {
		key.KeyDescriptorType = layers.EAPOLKeyDescriptorTypeDot11
	}
	if len(key.Nonce) == 0 {
		key.Nonce = make([]byte, 32)
	}
	if len(key.IV) == 0 {
		key.IV = make([]byte, 16)
	}
	if len(key.MIC) == 0 {
		key.MIC = make([]byte, 16)
	}
	key.KeyDataLength = uint16(len(key.EncryptedKeyData))
	buf := gopacket.NewSerializeBuffer()
	body := 95 + len(key.EncryptedKeyData)
	header := &layers.EAPOL{Version: 2, Type: layers.EAPOLTypeKey, Length: uint16(body)}
	if err := gopacket.SerializeLayers(buf, serializeOpts, header, key); err != nil {
		return nil, fmt.Errorf("%w: serialize eapol-key: %v", domain.ErrInternal, err)
	}
	return buf.Bytes(), nil
}
