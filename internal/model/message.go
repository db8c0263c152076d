package model

import "time"

// Direction tells whether the appliance received or sent a message.
type Direction string

const (
	DirIn  Direction = "IN"
	DirOut Direction = "OUT"
)

// Message represents a single SIP message extracted from a trace log.
// It is a value: created once per framed record and never mutated.
type Message struct {
	Timestamp time.Time `json:"timestamp"` // microsecond precision
	Direction Direction `json:"direction"` // IN or OUT, empty if unknown
	SrcIP     string    `json:"srcip"`
	SrcPort   int       `json:"srcport"`
	DstIP     string    `json:"dstip"`
	DstPort   int       `json:"dstport"`
	Proto     string    `json:"proto"`  // transport label, e.g. UDP, TCP
	Method    string    `json:"method"` // from the CSeq line, empty if absent
	Body      string    `json:"body"`   // message text without header/trailer
	Source    string    `json:"source"` // originating trace file path
}

// RawRecord is one framed multi-line record as cut out of the byte stream:
// the bracketed timestamp line, the address line and the message lines,
// with the dash trailer already stripped.
type RawRecord struct {
	Lines  []string
	Source string
}
