package scanner

import (
	"strconv"
	"strings"
	"time"

	"tinygo.org/x/bluetooth"
)

// Sample is one parsed advertisement seen by one scanner.
type Sample struct {
	Direction Direction
	DeviceID  string
	RSSI      int
	Name      string
	Time      time.Time
}

const (
	macField  = "MAC:"
	rssiField = "RSSI:"
	nameField = "Name:"
	bootTag   = "Starting BLE scan... ["
)

// ParseLive extracts a live-form record from a scanner line:
//
//	MAC: <hex/colon id> | RSSI: <int> [| Name: <text>]
//
// The record may appear anywhere in the line. Direction and Time are left
// for the caller to stamp.
func ParseLive(line string) (Sample, bool) {
	for offset := 0; ; {
		i := strings.Index(line[offset:], macField)
		if i < 0 {
			return Sample{}, false
		}
		offset += i
		if s, ok := parseLiveAt(line[offset:]); ok {
			return s, true
		}
		offset += len(macField)
	}
}

func parseLiveAt(text string) (Sample, bool) {
	c := cursor{s: text}
	if !c.literal(macField) {
		return Sample{}, false
	}
	c.skipSpace()
	id := c.span(isMACByte)
	if id == "" {
		return Sample{}, false
	}
	c.skipSpace()
	if !c.literal("|") {
		return Sample{}, false
	}
	c.skipSpace()
	if !c.literal(rssiField) {
		return Sample{}, false
	}
	c.skipSpace()

	start := c.i
	c.literal("-")
	if c.span(isDigit) == "" {
		return Sample{}, false
	}
	rssi, err := strconv.Atoi(c.s[start:c.i])
	if err != nil {
		return Sample{}, false
	}

	s := Sample{DeviceID: NormalizeID(id), RSSI: rssi}

	// Optional trailing name; anything else after the RSSI is ignored.
	c.skipSpace()
	if c.literal("|") {
		c.skipSpace()
		if c.literal(nameField) {
			c.skipSpace()
			s.Name = strings.TrimSpace(c.rest())
		}
	}
	return s, true
}

// ParseCalibration extracts the RSSI of a calibration-form line: the line
// starts with "MAC:", contains "RSSI:", and the text after the last "RSSI:"
// is an integer.
func ParseCalibration(line string) (int, bool) {
	if !strings.HasPrefix(line, macField) {
		return 0, false
	}
	i := strings.LastIndex(line, rssiField)
	if i < 0 {
		return 0, false
	}
	rssi, err := strconv.Atoi(strings.TrimSpace(line[i+len(rssiField):]))
	if err != nil {
		return 0, false
	}
	return rssi, true
}

// ParseBoot extracts the direction tag and boot timestamp (ms) of a firmware
// boot announcement:
//
//	Starting BLE scan... [NORTH] | 123456
func ParseBoot(line string) (Direction, uint64, bool) {
	i := strings.Index(line, bootTag)
	if i < 0 {
		return 0, 0, false
	}
	c := cursor{s: line[i+len(bootTag):]}
	tag := c.span(isWordByte)
	if tag == "" || !c.literal("] | ") {
		return 0, 0, false
	}
	digits := c.span(isDigit)
	if digits == "" {
		return 0, 0, false
	}
	dir, ok := ParseDirection(tag)
	if !ok {
		return 0, 0, false
	}
	millis, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return dir, millis, true
}

// DetectDirection identifies the scanner that produced a line, either from a
// boot announcement or from a bare direction keyword.
func DetectDirection(line string) (Direction, bool) {
	if d, _, ok := ParseBoot(line); ok {
		return d, true
	}
	for _, d := range Directions {
		if strings.Contains(line, d.Tag()) {
			return d, true
		}
	}
	return 0, false
}

// NormalizeID upper-cases a device id and canonicalizes it to colon form when
// it is a 6-byte MAC address.
func NormalizeID(id string) string {
	id = strings.ToUpper(strings.TrimSpace(id))
	if mac, err := bluetooth.ParseMAC(id); err == nil {
		return mac.String()
	}
	return id
}

type cursor struct {
	s string
	i int
}

func (c *cursor) skipSpace() {
	for c.i < len(c.s) && isSpace(c.s[c.i]) {
		c.i++
	}
}

func (c *cursor) literal(lit string) bool {
	if strings.HasPrefix(c.s[c.i:], lit) {
		c.i += len(lit)
		return true
	}
	return false
}

func (c *cursor) span(pred func(byte) bool) string {
	start := c.i
	for c.i < len(c.s) && pred(c.s[c.i]) {
		c.i++
	}
	return c.s[start:c.i]
}

func (c *cursor) rest() string {
	r := c.s[c.i:]
	c.i = len(c.s)
	return r
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n' || b == '\f' || b == '\v'
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isMACByte(b byte) bool {
	return isDigit(b) || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F') || b == ':'
}

func isWordByte(b byte) bool {
	return isDigit(b) || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b == '_'
}
