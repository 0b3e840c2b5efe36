package errors

import "strconv"

// ERR is the numeric error code carried by every Error.
type ERR int32

const (
	ERR_UNKNOWN             ERR = 0
	ERR_INVALID_ARGUMENT    ERR = 1
	ERR_NOT_FOUND           ERR = 2
	ERR_PROCESSING          ERR = 3
	ERR_CONFIGURATION       ERR = 4
	ERR_CONTEXT             ERR = 5
	ERR_CONTEXT_CANCELED    ERR = 6
	ERR_ERROR               ERR = 9
	ERR_STATE_ERROR         ERR = 10
	ERR_BLOCK_NOT_FOUND     ERR = 20
	ERR_BLOCK_INVALID       ERR = 21
	ERR_BLOCK_EXISTS        ERR = 22
	ERR_NO_BLOCK_AVAILABLE  ERR = 23
	ERR_TX_NOT_FOUND        ERR = 30
	ERR_TX_INVALID          ERR = 31
	ERR_SERVICE_UNAVAILABLE ERR = 40
	ERR_SERVICE_ERROR       ERR = 41
	ERR_NOT_SYNCHRONIZED    ERR = 42
	ERR_STORAGE_UNAVAILABLE ERR = 50
	ERR_STORAGE_ERROR       ERR = 51
	ERR_NETWORK_ERROR       ERR = 60
	ERR_NETWORK_TIMEOUT     ERR = 61
	ERR_KAFKA_ERROR         ERR = 70
)

var ERR_name = map[int32]string{
	0:  "UNKNOWN",
	1:  "INVALID_ARGUMENT",
	2:  "NOT_FOUND",
	3:  "PROCESSING",
	4:  "CONFIGURATION",
	5:  "CONTEXT",
	6:  "CONTEXT_CANCELED",
	9:  "ERROR",
	10: "STATE_ERROR",
	20: "BLOCK_NOT_FOUND",
	21: "BLOCK_INVALID",
	22: "BLOCK_EXISTS",
	23: "NO_BLOCK_AVAILABLE",
	30: "TX_NOT_FOUND",
	31: "TX_INVALID",
	40: "SERVICE_UNAVAILABLE",
	41: "SERVICE_ERROR",
	42: "NOT_SYNCHRONIZED",
	50: "STORAGE_UNAVAILABLE",
	51: "STORAGE_ERROR",
	60: "NETWORK_ERROR",
	61: "NETWORK_TIMEOUT",
	70: "KAFKA_ERROR",
}

func (x ERR) String() string {
	if name, ok := ERR_name[int32(x)]; ok {
		return name
	}

	return "ERR(" + strconv.Itoa(int(x)) + ")"
}

// Enum returns the code itself, mirroring generated enum accessors.
func (x ERR) Enum() *ERR {
	p := new(ERR)
	*p = x

	return p
}
