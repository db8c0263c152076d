package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sszokoly/sbctail/internal/model"
)

// addrCacheSize bounds the memoized address-line results. A busy appliance
// recycles a small set of socket pairs, so even bursty traffic stays well
// under this.
const addrCacheSize = 512

// reAddr matches the second record line, e.g.
// "IN: 10.10.48.58:5060 --> 10.10.32.60:5060 (UDP)".
var reAddr = regexp.MustCompile(`(IN|OUT): ([0-9.]*):(\d+) --> ([0-9.]*):(\d+) \((\D+)\)`)

// fnuMarkers flag feature-notification requests worth suppressing.
var fnuMarkers = []string{"avaya-cm-fnu=off-hook", "avaya-cm-fnu=ec500"}

// Parser converts a framed RawRecord into a Message, optionally filtering
// records by method or feature-notification markers before construction.
type Parser struct {
	addrCache *lru.Cache[string, addr]
	methods   map[string]struct{}
	ignoreFNU bool
}

// addr holds the parsed fields of an address line. It is cached per
// literal line text, which is sound because the mapping is a pure function
// of that text.
type addr struct {
	direction model.Direction
	srcIP     string
	srcPort   int
	dstIP     string
	dstPort   int
	proto     string
}

// New creates a Parser. A non-empty methods list acts as an allow-list;
// ignoreFNU drops off-hook/ec500 feature-notification requests.
func New(methods []string, ignoreFNU bool) *Parser {
	cache, _ := lru.New[string, addr](addrCacheSize)
	p := &Parser{addrCache: cache, ignoreFNU: ignoreFNU}
	if len(methods) > 0 {
		p.methods = make(map[string]struct{}, len(methods))
		for _, m := range methods {
			p.methods[strings.ToUpper(strings.TrimSpace(m))] = struct{}{}
		}
	}
	return p
}

// Parse extracts a Message from a record. The second return value is false
// when the record was dropped by a configured filter. Malformed records
// are never dropped for shape reasons: unparsable fields default to
// empty/zero values.
func (p *Parser) Parse(rec model.RawRecord) (model.Message, bool) {
	lines := rec.Lines
	if len(lines) == 0 {
		return model.Message{}, false
	}

	var body []string
	if len(lines) > 2 {
		body = lines[2:]
	}

	// Filters run before Message construction to avoid the allocation.
	method := cseqMethod(body)
	if p.methods != nil {
		if _, ok := p.methods[method]; !ok {
			return model.Message{}, false
		}
	}
	if p.ignoreFNU && len(body) > 0 && isFNU(body[0]) {
		return model.Message{}, false
	}

	var a addr
	if len(lines) > 1 {
		a = p.splitAddr(lines[1])
	}

	return model.Message{
		Timestamp: stampOf(lines[0]),
		Direction: a.direction,
		SrcIP:     a.srcIP,
		SrcPort:   a.srcPort,
		DstIP:     a.dstIP,
		DstPort:   a.dstPort,
		Proto:     a.proto,
		Method:    method,
		Body:      joinBody(body),
		Source:    rec.Source,
	}, true
}

// splitAddr parses the address/direction/protocol line, memoized through a
// bounded LRU keyed by the literal line text. A line that does not match
// yields the zero addr; the miss is cached too.
func (p *Parser) splitAddr(line string) addr {
	if a, ok := p.addrCache.Get(line); ok {
		return a
	}

	var a addr
	if m := reAddr.FindStringSubmatch(line); m != nil {
		a.direction = model.Direction(m[1])
		a.srcIP = m[2]
		a.srcPort, _ = strconv.Atoi(m[3])
		a.dstIP = m[4]
		a.dstPort, _ = strconv.Atoi(m[5])
		a.proto = m[6]
	}
	p.addrCache.Add(line, a)
	return a
}

// stampOf pulls the fixed-width timestamp out of the bracketed first line
// of a record, e.g. "[01-15-2024:13:45:09:123456 ...".
func stampOf(line string) time.Time {
	if len(line) < 27 || line[0] != '[' {
		return time.Time{}
	}
	return parseStamp(line[1:27])
}

// parseStamp converts an SSYNDI timestamp by direct character-offset
// slicing. The column layout is fixed:
//
//	01-15-2024:13:45:09:123456
//	MM DD YYYY HH MM SS micro
//
// This is deliberately not a general date parser; under high line rates
// the fixed-offset form is several times faster than time.Parse.
func parseStamp(s string) time.Time {
	if len(s) < 26 {
		return time.Time{}
	}
	month, ok1 := digits(s[0:2])
	day, ok2 := digits(s[3:5])
	year, ok3 := digits(s[6:10])
	hour, ok4 := digits(s[11:13])
	min, ok5 := digits(s[14:16])
	sec, ok6 := digits(s[17:19])
	micro, ok7 := digits(s[20:26])
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6 && ok7) {
		return time.Time{}
	}
	return time.Date(year, time.Month(month), day, hour, min, sec, micro*1000, time.UTC)
}

// digits parses an all-digit substring without the strconv error path.
func digits(s string) (int, bool) {
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// cseqMethod extracts the method from the first CSeq line: the line is
// split on whitespace and the method is the third of exactly three tokens.
func cseqMethod(lines []string) string {
	for _, line := range lines {
		if !strings.HasPrefix(line, "CSeq") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 3 {
			return fields[2]
		}
		return ""
	}
	return ""
}

// isFNU reports whether the request line carries a feature-notification
// marker.
func isFNU(line string) bool {
	for _, marker := range fnuMarkers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

// joinBody concatenates the non-empty message lines.
func joinBody(lines []string) string {
	var b strings.Builder
	for _, line := range lines {
		if line == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	return b.String()
}
