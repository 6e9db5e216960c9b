package noise

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternTableFrozen(t *testing.T) {
	require.LessOrEqual(t, len(patterns), 20, "C2 dictionary must stay bounded")
	assert.Equal(t, 20, len(patterns))
}

func TestGroupRangesMatchPartition(t *testing.T) {
	for i, p := range patterns {
		r, ok := groupRanges[p.group]
		require.True(t, ok, "pattern %d has a group with no range entry", i)
		assert.GreaterOrEqual(t, i, r[0])
		assert.Less(t, i, r[1])
	}
}

func TestMatchScannerGroup(t *testing.T) {
	d := NewDetector()
	m, ok := d.Match([]byte("nmap -sV -p- 10.0.0.1"))
	require.True(t, ok)
	assert.Equal(t, GroupScanner, m.Group)
	assert.Equal(t, "Connection timed out\n", HintReply(m))
}

func TestMatchExploitGroup(t *testing.T) {
	d := NewDetector()
	m, ok := d.Match([]byte("POST /x metasploit payload/whatever"))
	require.True(t, ok)
	assert.Equal(t, GroupExploit, m.Group)
	assert.Equal(t, "Segmentation fault (core dumped)\n", HintReply(m))
}

func TestMatchSprayGroup(t *testing.T) {
	d := NewDetector()
	m, ok := d.Match([]byte("login admin:admin"))
	require.True(t, ok)
	assert.Equal(t, GroupSpray, m.Group)
	assert.Equal(t, "Authentication failed\n", HintReply(m))
}

func TestMatchBinaryJunkGroup(t *testing.T) {
	d := NewDetector()
	m, ok := d.Match([]byte("\x00\x00\x00\x00garbage"))
	require.True(t, ok)
	assert.Equal(t, GroupBinaryJunk, m.Group)
	assert.Equal(t, "Bad request\n", HintReply(m))
}

func TestMatchNone(t *testing.T) {
	d := NewDetector()
	_, ok := d.Match([]byte("GET /index.html HTTP/1.1\r\n\r\n"))
	assert.False(t, ok)
}

func TestMatchFirstPatternWins(t *testing.T) {
	d := NewDetector()
	// Contains both a scanner name and an exploit marker; scanner
	// group is ordered first so it must win.
	m, ok := d.Match([]byte("nmap script running metasploit module"))
	require.True(t, ok)
	assert.Equal(t, GroupScanner, m.Group)
}
