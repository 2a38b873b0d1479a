// Package harness drives the external benchmark server through one run
// per configuration and turns its log into a throughput figure.
package harness

import (
	"strconv"
	"strings"
)

// Column names in the server's status table.
const (
	columnConn = "conn"
	columnRecv = "s_recv"
)

// ParseThroughput extracts the server's receive throughput from its log.
//
// The server prints a status table once per second: a header row naming
// the columns, then rows such as
//
//	     3 |     10 |      0 MB |      0 MB |    118 MB | ...
//
// The result is the mean s_recv value, in MB per interval, over rows with
// at least one connection. Lines outside the table are ignored. ok is
// false when no such row exists.
func ParseThroughput(lines []string) (mbPerSec float64, ok bool) {
	var (
		connCol = -1
		recvCol = -1
		width   int
		sum     float64
		n       int
	)

	for _, line := range lines {
		if !strings.Contains(line, "|") {
			continue
		}

		cells := splitRow(line)

		if c, r, found := headerColumns(cells); found {
			connCol, recvCol, width = c, r, len(cells)
			continue
		}

		if connCol < 0 || len(cells) != width {
			continue
		}

		conn, err := strconv.Atoi(cells[connCol])
		if err != nil || conn <= 0 {
			continue
		}

		recv, err := parseMB(cells[recvCol])
		if err != nil {
			continue
		}

		sum += recv
		n++
	}

	if n == 0 {
		return 0, false
	}

	return sum / float64(n), true
}

func splitRow(line string) []string {
	cells := strings.Split(line, "|")
	for i, c := range cells {
		cells[i] = strings.TrimSpace(c)
	}

	return cells
}

func headerColumns(cells []string) (conn, recv int, found bool) {
	conn, recv = -1, -1

	for i, c := range cells {
		switch c {
		case columnConn:
			conn = i
		case columnRecv:
			recv = i
		}
	}

	return conn, recv, conn >= 0 && recv >= 0
}

func parseMB(cell string) (float64, error) {
	cell = strings.TrimSpace(strings.TrimSuffix(cell, "MB"))

	return strconv.ParseFloat(cell, 64)
}
