package lookup

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// IdenTable is an in-memory ChannelIdentityTable loaded from the host's
// iden_table.dat bandplan file: one whitespace-separated row per
// identity, "<id> <baseFreqHz> <channelSpaceHz> <txOffsetHz>".
type IdenTable struct {
	entries map[int]ChannelIdentity
}

// NewIdenTable builds an empty table; use LoadIdenTable to populate one
// from a file, or Add to build one up programmatically (e.g. in tests).
func NewIdenTable() *IdenTable {
	return &IdenTable{entries: make(map[int]ChannelIdentity)}
}

// Add inserts or replaces a single channel identity.
func (t *IdenTable) Add(ci ChannelIdentity) {
	t.entries[ci.ID] = ci
}

// Lookup implements ChannelIdentityTable.
func (t *IdenTable) Lookup(id int) (ChannelIdentity, bool) {
	ci, ok := t.entries[id]
	return ci, ok
}

// LoadIdenTable parses r as an iden_table.dat bandplan file, skipping
// blank lines and lines starting with '#'.
func LoadIdenTable(r io.Reader) (*IdenTable, error) {
	t := NewIdenTable()
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 4 {
			return nil, fmt.Errorf("iden_table line %d: expected 4 fields, got %d", lineNo, len(fields))
		}

		id, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("iden_table line %d: invalid id %q: %w", lineNo, fields[0], err)
		}
		baseFreq, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("iden_table line %d: invalid base frequency %q: %w", lineNo, fields[1], err)
		}
		space, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("iden_table line %d: invalid channel space %q: %w", lineNo, fields[2], err)
		}
		offset, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("iden_table line %d: invalid tx offset %q: %w", lineNo, fields[3], err)
		}

		t.Add(ChannelIdentity{
			ID:           id,
			BaseFreqHz:   baseFreq,
			ChannelSpace: uint32(space),
			TXOffsetHz:   offset,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return t, nil
}
