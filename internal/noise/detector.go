// Package noise implements the Layer-0 noise detector (C2): a
// multi-pattern substring matcher over a small, frozen, high-confidence
// dictionary. It is built once at startup and never mutated afterward,
// so lookups are read-only and allocation-free on the hot path.
package noise

import "bytes"

// Group is the category a matched pattern belongs to.
type Group int

const (
	GroupScanner Group = iota
	GroupExploit
	GroupSpray
	GroupBinaryJunk
)

func (g Group) String() string {
	switch g {
	case GroupScanner:
		return "scanner"
	case GroupExploit:
		return "exploit"
	case GroupSpray:
		return "spray"
	case GroupBinaryJunk:
		return "binary_junk"
	default:
		return "unknown"
	}
}

// pattern pairs a frozen byte string with the group it signals.
type pattern struct {
	bytes []byte
	group Group
}

// patterns is the fixed compact dictionary (<=20 entries), ordered by
// group: scanner names, exploit-kit markers, credential sprays, binary
// garbage markers. The order and membership are frozen — tests assert
// both the count and the group partition, since callers key hint
// replies off the matched index.
var patterns = []pattern{
	// scanner names (0-4)
	{[]byte("nmap"), GroupScanner},
	{[]byte("masscan"), GroupScanner},
	{[]byte("zgrab"), GroupScanner},
	{[]byte("shodan"), GroupScanner},
	{[]byte("censys"), GroupScanner},

	// exploit-kit markers (5-9)
	{[]byte("metasploit"), GroupExploit},
	{[]byte("msfconsole"), GroupExploit},
	{[]byte("exploit/"), GroupExploit},
	{[]byte("payload/"), GroupExploit},
	{[]byte("\x90\x90\x90\x90"), GroupExploit}, // NOP sled

	// credential sprays (10-14)
	{[]byte("admin:admin"), GroupSpray},
	{[]byte("root:root"), GroupSpray},
	{[]byte("test:test"), GroupSpray},
	{[]byte("password:password"), GroupSpray},
	{[]byte("123456"), GroupSpray},

	// binary garbage markers (15-19)
	{[]byte("\x00\x00\x00\x00"), GroupBinaryJunk},
	{[]byte("\x7fELF"), GroupBinaryJunk},
	{[]byte("AAAA"), GroupBinaryJunk},
	{[]byte("%s%s%s%s"), GroupBinaryJunk},
	{[]byte("../../../../"), GroupBinaryJunk},
}

// groupRanges partitions the frozen pattern list; construction-time
// invariant checked by TestGroupRangesMatchPartition.
var groupRanges = map[Group][2]int{
	GroupScanner:    {0, 5},
	GroupExploit:    {5, 10},
	GroupSpray:      {10, 15},
	GroupBinaryJunk: {15, 20},
}

// MatchResult identifies which frozen pattern matched.
type MatchResult struct {
	Index int
	Group Group
}

// Detector is the read-only, allocation-free multi-pattern matcher.
// The zero value is ready to use — there is no per-instance state,
// only the frozen package-level table.
type Detector struct{}

// NewDetector returns a Detector. Construction never fails; the
// pattern table is frozen at package init.
func NewDetector() *Detector { return &Detector{} }

// Match scans payload against the frozen dictionary in order and
// returns the first match, or ok=false if nothing matched.
func (d *Detector) Match(payload []byte) (MatchResult, bool) {
	for i, p := range patterns {
		if bytes.Contains(payload, p.bytes) {
			return MatchResult{Index: i, Group: p.group}, true
		}
	}
	return MatchResult{}, false
}

// HintReply maps a match to its advisory hint-reply string. The
// orchestrator decides whether to use it; the detector never sends
// anything itself.
func HintReply(m MatchResult) string {
	switch m.Group {
	case GroupScanner:
		return "Connection timed out\n"
	case GroupExploit:
		return "Segmentation fault (core dumped)\n"
	case GroupSpray:
		return "Authentication failed\n"
	default:
		return "Bad request\n"
	}
}
