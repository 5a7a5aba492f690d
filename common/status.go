package common

//go:generate go run github.com/dmarkham/enumer -json -sql -type Status -trimprefix Status

type Status int

const (
	StatusNEW Status = iota
	StatusPENDING
	StatusOBSERVED
	StatusREJECTED
	StatusFAILED
	StatusSYNTHESIZED
	// StatusDONE is the terminal status of a run; dates never reach it.
	StatusDONE
)

func (s Status) Color() string {
	switch s {
	case StatusNEW:
		return "gray"
	case StatusPENDING:
		return "blue"
	case StatusOBSERVED:
		return "green"
	case StatusREJECTED:
		return "orange"
	case StatusFAILED:
		return "red"
	case StatusSYNTHESIZED:
		return "purple"
	case StatusDONE:
		return "darkgreen"
	}
	return "white"
}

// Terminal returns true if no further processing can change the status.
func (s Status) Terminal() bool {
	return s != StatusNEW && s != StatusPENDING
}
