package camctl

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Mode selects how frames are acquired.
type Mode string

const (
	ModeCallback Mode = "callback"
	ModeActive   Mode = "active"
	ModeInvalid  Mode = ""
)

// ParseMode accepts the menu digits as well as the mode names.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "callback":
		return ModeCallback
	case "1", "active":
		return ModeActive
	}
	return ModeInvalid
}

const (
	devicePrompt = "please input the number of the device to connect:"
	modePrompt   = "enter 0 for callback acquisition, 1 for active acquisition:"
)

// Prompter reads operator choices line by line.
type Prompter struct {
	con *Console
	in  *bufio.Scanner
}

// NewPrompter reads from r.
func NewPrompter(r io.Reader, con *Console) *Prompter {
	return &Prompter{con: con, in: bufio.NewScanner(r)}
}

func (p *Prompter) line(prompt string) (string, error) {
	p.con.Printf("%s", prompt)
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", fmt.Errorf("read input: %w", err)
		}
		return "", io.EOF
	}
	return strings.TrimSpace(p.in.Text()), nil
}

// SelectDevice asks for a 0-based device number until one in [0, n) is
// entered. It returns io.EOF if input ends first.
func (p *Prompter) SelectDevice(n int) (int, error) {
	for {
		text, err := p.line(devicePrompt)
		if err != nil {
			return 0, err
		}

		num, err := strconv.Atoi(text)
		if err != nil {
			p.con.Warn("Invalid input! Please enter a valid integer.", "input", text)
			continue
		}
		if num < 0 || num >= n {
			p.con.Warn("input error! Please try again.", "input", num, "devices", n)
			continue
		}
		return num, nil
	}
}

// SelectMode asks once for the acquisition mode. Anything other than
// 0 or 1 is reported and returned as ModeInvalid.
func (p *Prompter) SelectMode() (Mode, error) {
	text, err := p.line(modePrompt)
	if err != nil {
		return ModeInvalid, err
	}
	m := ParseMode(text)
	if m == ModeInvalid {
		p.con.Warn("Invalid input!", "input", text)
	}
	return m, nil
}
