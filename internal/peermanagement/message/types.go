// Package message decodes XRPL peer protocol frame headers. Payloads are
// relayed opaquely; headers are only decoded for diagnostics.
package message

// MessageType is the type field of a frame header.
type MessageType uint16

const (
	TypeUnknown                 MessageType = 0
	TypeManifests               MessageType = 2
	TypePing                    MessageType = 3
	TypeCluster                 MessageType = 5
	TypeEndpoints               MessageType = 15
	TypeTransaction             MessageType = 30
	TypeGetLedger               MessageType = 31
	TypeLedgerData              MessageType = 32
	TypeProposeLedger           MessageType = 33
	TypeStatusChange            MessageType = 34
	TypeHaveSet                 MessageType = 35
	TypeValidation              MessageType = 41
	TypeGetObjects              MessageType = 42
	TypeValidatorList           MessageType = 54
	TypeSquelch                 MessageType = 55
	TypeValidatorListCollection MessageType = 56
	TypeProofPathReq            MessageType = 57
	TypeProofPathResponse       MessageType = 58
	TypeReplayDeltaReq          MessageType = 59
	TypeReplayDeltaResponse     MessageType = 60
	TypeHaveTransactions        MessageType = 63
	TypeTransactions            MessageType = 64
)

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case TypeManifests:
		return "mtMANIFESTS"
	case TypePing:
		return "mtPING"
	case TypeCluster:
		return "mtCLUSTER"
	case TypeEndpoints:
		return "mtENDPOINTS"
	case TypeTransaction:
		return "mtTRANSACTION"
	case TypeGetLedger:
		return "mtGET_LEDGER"
	case TypeLedgerData:
		return "mtLEDGER_DATA"
	case TypeProposeLedger:
		return "mtPROPOSE_LEDGER"
	case TypeStatusChange:
		return "mtSTATUS_CHANGE"
	case TypeHaveSet:
		return "mtHAVE_SET"
	case TypeValidation:
		return "mtVALIDATION"
	case TypeGetObjects:
		return "mtGET_OBJECTS"
	case TypeValidatorList:
		return "mtVALIDATORLIST"
	case TypeSquelch:
		return "mtSQUELCH"
	case TypeValidatorListCollection:
		return "mtVALIDATORLISTCOLLECTION"
	case TypeProofPathReq:
		return "mtPROOF_PATH_REQ"
	case TypeProofPathResponse:
		return "mtPROOF_PATH_RESPONSE"
	case TypeReplayDeltaReq:
		return "mtREPLAY_DELTA_REQ"
	case TypeReplayDeltaResponse:
		return "mtREPLAY_DELTA_RESPONSE"
	case TypeHaveTransactions:
		return "mtHAVE_TRANSACTIONS"
	case TypeTransactions:
		return "mtTRANSACTIONS"
	default:
		return "mtUNKNOWN"
	}
}
