package sshserver

import "strconv"

// ThemeName selects a console color theme.
type ThemeName string

// DefaultTheme is used when no theme is configured.
const DefaultTheme ThemeName = "outrun"

type rgb struct {
	r int
	g int
	b int
}

type tuiTheme struct {
	Name     ThemeName
	NoticeFG rgb
	ErrorFG  rgb
	MetaFG   rgb
	PromptFG rgb
	HostFG   rgb
	GuestFG  rgb
}

const (
	ansiReset = "\x1b[0m"
	ansiBold  = "\x1b[1m"
)

var tuiThemes = map[ThemeName]tuiTheme{
	"outrun": {
		Name:     "outrun",
		NoticeFG: rgb{r: 0, g: 229, b: 255},
		ErrorFG:  rgb{r: 255, g: 107, b: 107},
		MetaFG:   rgb{r: 154, g: 163, b: 178},
		PromptFG: rgb{r: 255, g: 255, b: 255},
		HostFG:   rgb{r: 255, g: 91, b: 189},
		GuestFG:  rgb{r: 110, g: 136, b: 255},
	},
	"gruvbox": {
		Name:     "gruvbox",
		NoticeFG: rgb{r: 250, g: 189, b: 47},
		ErrorFG:  rgb{r: 251, g: 73, b: 52},
		MetaFG:   rgb{r: 146, g: 131, b: 116},
		PromptFG: rgb{r: 255, g: 255, b: 255},
		HostFG:   rgb{r: 214, g: 93, b: 14},
		GuestFG:  rgb{r: 131, g: 165, b: 152},
	},
	"tokyo-midnight": {
		Name:     "tokyo-midnight",
		NoticeFG: rgb{r: 122, g: 162, b: 247},
		ErrorFG:  rgb{r: 247, g: 118, b: 142},
		MetaFG:   rgb{r: 127, g: 133, b: 163},
		PromptFG: rgb{r: 255, g: 255, b: 255},
		HostFG:   rgb{r: 187, g: 154, b: 247},
		GuestFG:  rgb{r: 158, g: 206, b: 106},
	},
}

func themeForName(name ThemeName) tuiTheme {
	if name == "" {
		name = DefaultTheme
	}
	if theme, ok := tuiThemes[name]; ok {
		return theme
	}
	return tuiThemes[DefaultTheme]
}

func ansiFgRGB(c rgb) string {
	return "\x1b[38;2;" + strconv.Itoa(c.r) + ";" + strconv.Itoa(c.g) + ";" + strconv.Itoa(c.b) + "m"
}

func colorize(text string, c rgb) string {
	return ansiFgRGB(c) + text + ansiReset
}
