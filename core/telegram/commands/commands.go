package commands

import (
	"strings"

	"github.com/m3rciful/chartbot/chart"
	"github.com/m3rciful/chartbot/core/telegram/callbacks"
)

// Kind enumerates recognized commands.
type Kind int

const (
	Invalid Kind = iota
	Start
	Example
	Price
	Chart
)

func (k Kind) String() string {
	switch k {
	case Start:
		return "start"
	case Example:
		return "example"
	case Price:
		return "price"
	case Chart:
		return "chart"
	default:
		return "invalid"
	}
}

// ChartKind maps Price and Chart onto the chart kind; other commands map to zero.
func (k Kind) ChartKind() chart.Kind {
	switch k {
	case Price:
		return chart.KindPrice
	case Chart:
		return chart.KindChart
	}
	return 0
}

// Command is the result of parsing one message text.
type Command struct {
	Kind Kind
	// Query holds the user supplied fields only; defaults are applied later.
	Query chart.Query
	// WithSymbols is set for a bare /price or /chart.
	WithSymbols bool
}

// Parser tokenizes message text into commands.
type Parser struct {
	// Username is the bot username without '@'. When set, "/cmd@other_bot" is Invalid.
	Username string
}

// Parse is Parser.Parse without a username filter.
func Parse(text string) Command {
	return Parser{}.Parse(text)
}

// Parse splits text on whitespace; the first token selects the command.
func (p Parser) Parse(text string) Command {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Command{}
	}
	name, ok := p.commandName(fields[0])
	if !ok {
		return Command{}
	}
	args := fields[1:]
	if (name == "price" || name == "chart") && hasReserved(args) {
		return Command{}
	}

	switch name {
	case "start":
		return Command{Kind: Start}
	case "example":
		return Command{Kind: Example}
	case "price":
		cmd := Command{Kind: Price, WithSymbols: len(args) == 0}
		if len(args) > 0 {
			cmd.Query.Symbol = strings.ToUpper(args[0])
		}
		if len(args) > 1 {
			cmd.Query.Interval = args[1]
		}
		return cmd
	case "chart":
		cmd := Command{Kind: Chart, WithSymbols: len(args) == 0}
		if len(args) > 0 {
			cmd.Query.Symbol = strings.ToUpper(args[0])
		}
		if len(args) > 1 {
			cmd.Query.Interval = args[1]
		}
		if len(args) > 2 {
			cmd.Query.Studies = chart.SplitStudies(strings.ToUpper(args[2]))
		}
		if len(args) > 3 {
			cmd.Query.Style = args[3]
		}
		return cmd
	}
	return Command{}
}

// hasReserved reports whether an argument contains the callback field separator.
func hasReserved(args []string) bool {
	for _, a := range args {
		if strings.Contains(a, callbacks.Delimiter) {
			return true
		}
	}
	return false
}

// commandName strips the leading slash and an optional @botname suffix.
func (p Parser) commandName(token string) (string, bool) {
	if !strings.HasPrefix(token, "/") {
		return "", false
	}
	name, mention, found := strings.Cut(token[1:], "@")
	if found && p.Username != "" && !strings.EqualFold(mention, p.Username) {
		return "", false
	}
	return strings.ToLower(name), name != ""
}
