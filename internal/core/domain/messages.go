package domain

// MlmeRequest is a request from the SME to the station. The set of
// implementations is closed.
type MlmeRequest interface {
	Name() string
	mlmeRequest()
}

// MlmeMsg is a confirmation or indication sent from the station to the SME.
// The set of implementations is closed.
type MlmeMsg interface {
	Name() string
	mlmeMsg()
}

// JoinRequest selects the BSS subsequent requests refer to.
type JoinRequest struct {
	Bss            BssDescription `json:"bss"`
	Phy            Phy            `json:"phy"`
	ListenInterval uint16         `json:"listen_interval"`
}

// AuthenticateRequest starts authentication with the joined BSS.
type AuthenticateRequest struct {
	PeerSta  MacAddr  `json:"peer_sta"`
	AuthType AuthType `json:"auth_type"`
	// FailureTimeout is expressed in beacon periods.
	FailureTimeout uint32 `json:"failure_timeout"`
}

// DeauthenticateRequest leaves the BSS.
type DeauthenticateRequest struct {
	PeerSta    MacAddr    `json:"peer_sta"`
	ReasonCode ReasonCode `json:"reason_code"`
}

// AssociateRequest asks the authenticated BSS for association.
type AssociateRequest struct {
	PeerSta MacAddr `json:"peer_sta"`
	RSNE    []byte  `json:"rsne,omitempty"`
}

// SetKeysRequest installs keys derived by the SME.
type SetKeysRequest struct {
	Keys []KeyConfig `json:"keys"`
}

// UpdateControlledPortRequest opens or closes the 802.1X port.
type UpdateControlledPortRequest struct {
	State ControlledPortState `json:"state"`
}

// EapolRequest transmits an EAPOL frame on behalf of the SME.
type EapolRequest struct {
	Src  MacAddr `json:"src"`
	Dst  MacAddr `json:"dst"`
	Data []byte  `json:"data"`
}

func (JoinRequest) Name() string                 { return "join_request" }
func (AuthenticateRequest) Name() string         { return "authenticate_request" }
func (DeauthenticateRequest) Name() string       { return "deauthenticate_request" }
func (AssociateRequest) Name() string            { return "associate_request" }
func (SetKeysRequest) Name() string              { return "set_keys_request" }
func (UpdateControlledPortRequest) Name() string { return "update_controlled_port_request" }
func (EapolRequest) Name() string                { return "eapol_request" }

func (JoinRequest) mlmeRequest()                 {}
func (AuthenticateRequest) mlmeRequest()         {}
func (DeauthenticateRequest) mlmeRequest()       {}
func (AssociateRequest) mlmeRequest()            {}
func (SetKeysRequest) mlmeRequest()              {}
func (UpdateControlledPortRequest) mlmeRequest() {}
func (EapolRequest) mlmeRequest()                {}

// JoinConfirm answers a JoinRequest.
type JoinConfirm struct {
	ResultCode JoinResultCode `json:"result_code"`
}

// AuthenticateConfirm answers an AuthenticateRequest.
type AuthenticateConfirm struct {
	PeerSta    MacAddr                `json:"peer_sta"`
	AuthType   AuthType               `json:"auth_type"`
	ResultCode AuthenticateResultCode `json:"result_code"`
}

// AssociateConfirm answers an AssociateRequest. Aid is zero unless the
// association succeeded.
type AssociateConfirm struct {
	ResultCode AssociateResultCode `json:"result_code"`
	Aid        uint16              `json:"aid,omitempty"`
}

// DeauthenticateConfirm answers a DeauthenticateRequest.
type DeauthenticateConfirm struct {
	PeerSta MacAddr `json:"peer_sta"`
}

// DeauthenticateIndication reports a deauthentication the SME did not ask for.
type DeauthenticateIndication struct {
	PeerSta          MacAddr    `json:"peer_sta"`
	ReasonCode       ReasonCode `json:"reason_code"`
	LocallyInitiated bool       `json:"locally_initiated"`
}

// DisassociateIndication reports a disassociation from the AP.
type DisassociateIndication struct {
	PeerSta    MacAddr    `json:"peer_sta"`
	ReasonCode ReasonCode `json:"reason_code"`
}

// EapolIndication hands a received EAPOL frame to the SME.
type EapolIndication struct {
	Src  MacAddr `json:"src"`
	Dst  MacAddr `json:"dst"`
	Data []byte  `json:"data"`
}

// EapolConfirm answers an EapolRequest.
type EapolConfirm struct {
	ResultCode EapolResultCode `json:"result_code"`
}

// SignalReportIndication carries the rolling RSSI average.
type SignalReportIndication struct {
	RssiDbm int8 `json:"rssi_dbm"`
}

// SetKeysConfirm lists the key indexes the device refused.
type SetKeysConfirm struct {
	Installed int     `json:"installed"`
	Failed    []uint8 `json:"failed,omitempty"`
}

func (JoinConfirm) Name() string              { return "join_confirm" }
func (AuthenticateConfirm) Name() string      { return "authenticate_confirm" }
func (AssociateConfirm) Name() string         { return "associate_confirm" }
func (DeauthenticateConfirm) Name() string    { return "deauthenticate_confirm" }
func (DeauthenticateIndication) Name() string { return "deauthenticate_indication" }
func (DisassociateIndication) Name() string   { return "disassociate_indication" }
func (EapolIndication) Name() string          { return "eapol_indication" }
func (EapolConfirm) Name() string             { return "eapol_confirm" }
func (SignalReportIndication) Name() string   { return "signal_report_indication" }
func (SetKeysConfirm) Name() string           { return "set_keys_confirm" }

func (JoinConfirm) mlmeMsg()              {}
func (AuthenticateConfirm) mlmeMsg()      {}
func (AssociateConfirm) mlmeMsg()         {}
func (DeauthenticateConfirm) mlmeMsg()    {}
func (DeauthenticateIndication) mlmeMsg() {}
func (DisassociateIndication) mlmeMsg()   {}
func (EapolIndication) mlmeMsg()          {}
func (EapolConfirm) mlmeMsg()             {}
func (SignalReportIndication) mlmeMsg()   {}
func (SetKeysConfirm) mlmeMsg()           {}
