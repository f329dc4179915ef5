package command

import (
	"strings"

	"pkt.systems/tabstack/schema"
)

// Command represents a parsed slash command.
type Command struct {
	Name string
	Args []string
	Raw  string
}

// Parse parses a line and returns a Command if it starts with "/".
func Parse(input string) (Command, bool) {
	trimmed := strings.TrimLeft(input, " \t")
	if !strings.HasPrefix(trimmed, "/") {
		return Command{}, false
	}
	raw := strings.TrimSpace(trimmed[1:])
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return Command{Name: "", Raw: raw}, true
	}
	return Command{
		Name: strings.ToLower(fields[0]),
		Args: fields[1:],
		Raw:  raw,
	}, true
}

// TabArgs parses every argument as a tab id. Commas are accepted as separators.
func (c Command) TabArgs() ([]schema.TabID, error) {
	values := make([]string, 0, len(c.Args))
	for _, arg := range c.Args {
		for _, part := range strings.Split(arg, ",") {
			if part = strings.TrimSpace(part); part != "" {
				values = append(values, part)
			}
		}
	}
	return schema.ParseTabIDs(values)
}
